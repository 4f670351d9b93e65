// Package heartbeat sends a fire-and-forget GET to an external liveness
// endpoint every 30 seconds. It never terminates on failure: the response
// is discarded and a request error is only logged at debug level — a
// heartbeat is not a substitute for
// the quoter's own error handling, it's just evidence the process is alive.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const interval = 30 * time.Second

// Run pings url every 30 seconds until ctx is cancelled. If url is empty,
// heartbeating is disabled entirely.
func Run(ctx context.Context, url string, logger *slog.Logger) {
	if url == "" {
		return
	}

	logger = logger.With("component", "heartbeat")
	client := resty.New()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := client.R().SetContext(ctx).Get(url); err != nil {
			logger.Debug("heartbeat request failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
