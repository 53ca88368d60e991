package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs delivery start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, d *Delivery, next Handler) error {
		logger.Debug("delivery started",
			slog.String("event_type", d.Event.EventType()),
			slog.String("event_id", d.Event.EventID()),
			slog.String("subscription_id", d.Entry.ID),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("delivery failed",
				slog.String("event_type", d.Event.EventType()),
				slog.String("event_id", d.Event.EventID()),
				slog.String("subscription_id", d.Entry.ID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("delivery completed",
				slog.String("event_type", d.Event.EventType()),
				slog.String("event_id", d.Event.EventID()),
				slog.String("subscription_id", d.Entry.ID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
