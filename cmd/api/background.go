package main

import (
	"context"
	"time"
)

const sweepInterval = 30 * time.Minute

// sweepExpiredEvery30Mins removes lapsed credentials and share links and
// forgets idle rate limiter windows until ctx is cancelled.
func (app *application) sweepExpiredEvery30Mins(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		// Run once immediately
		app.sweepExpired(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				app.sweepExpired(ctx)
			}
		}
	}()
}

func (app *application) sweepExpired(ctx context.Context) {
	now := app.tokens.Now()

	creds, err := app.store.Credentials.DeleteExpired(ctx, now)
	if err != nil {
		app.logger.Errorf("Error removing expired credentials: %v", err)
	}

	links, err := app.store.Shares.DeleteExpired(ctx, now)
	if err != nil {
		app.logger.Errorf("Error removing expired share links: %v", err)
	}

	var windows int
	if s, ok := app.rateLimiter.(interface{ Sweep() int }); ok {
		windows = s.Sweep()
	}

	app.logger.Infow("expired records swept",
		"credentials", creds,
		"share_links", links,
		"rate_limit_windows", windows,
		"at", now.Format(time.RFC1123),
	)
}
