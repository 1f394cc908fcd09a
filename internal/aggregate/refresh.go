package aggregate

import (
	"context"
	"log/slog"
	"time"
)

// ActiveFunc reports whether a mode is active and fetching makes sense.
type ActiveFunc func() bool

// StartRefreshWorker runs a background goroutine that re-fetches every
// source each interval while active reports true. A non-positive interval
// disables the worker.
func StartRefreshWorker(ctx context.Context, o *Orchestrator, interval time.Duration, active ActiveFunc) {
	if interval <= 0 {
		slog.Debug("Refresh worker disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Refresh worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				if active != nil && !active() {
					continue
				}
				o.FetchAll(ctx)
			case <-ctx.Done():
				slog.Info("Refresh worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
