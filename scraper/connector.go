package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/scrollsettle/engine"
	"github.com/use-agent/scrollsettle/models"
)

// Acquire opens a live session to endpoint, retrying up to maxRetries times.
//
// After failed attempt n it waits baseDelay * 2^(n-1) before trying again.
// A connection that does not pass the liveness check is disconnected and
// counts as a failed attempt. When every attempt fails the returned
// *models.ScrapeError (CONNECTION_FAILED) wraps the last underlying error.
func Acquire(ctx context.Context, connector engine.Connector, endpoint string, maxRetries int, baseDelay time.Duration, logger *slog.Logger) (engine.Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	var (
		lastErr error
		made    int
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		made = attempt
		session, err := connector.Connect(ctx, endpoint)
		if err == nil {
			if session.Alive(ctx) {
				if attempt > 1 {
					logger.Info("connected to remote browser", "attempt", attempt)
				}
				return session, nil
			}
			if derr := session.Disconnect(); derr != nil {
				logger.Warn("failed to disconnect dead session", "error", derr)
			}
			err = fmt.Errorf("session not live after connect")
		}
		lastErr = err

		logger.Warn("remote browser connection failed",
			"attempt", attempt,
			"maxRetries", maxRetries,
			"error", err,
		)
		if attempt == maxRetries {
			break
		}
		if err := sleepCtx(ctx, backoffDelay(baseDelay, attempt)); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	return nil, models.NewScrapeError(
		models.ErrCodeConnection,
		fmt.Sprintf("could not connect to remote browser after %d attempts", made),
		lastErr,
	)
}

// backoffDelay returns base * 2^(attempt-1).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// sleepCtx waits for d or until ctx ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
