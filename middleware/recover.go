package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to errors and logged with a stack trace.
// The bus already isolates panics at the outermost invocation boundary;
// add this middleware when the stack trace should be captured inside the
// chain, before outer middleware observe the failure.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, d *Delivery, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("handler panicked",
					slog.String("event_type", d.Event.EventType()),
					slog.String("subscription_id", d.Entry.ID),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic handling %s: %v", d.Event.EventType(), r)
			}
		}()
		return next(ctx)
	}
}
