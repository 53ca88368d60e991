package pulse

import "github.com/domulab/pulse/id"

// ID is the primary identifier type for all Pulse entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
