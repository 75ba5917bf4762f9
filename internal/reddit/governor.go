package reddit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/reddit-scraper-fleet/internal/logger"
	"github.com/onnwee/reddit-scraper-fleet/internal/metrics"
)

// Governor gates Reddit calls on the account's live request budget. A token
// bucket paces individual requests; CheckBudget blocks before a batch of work
// when the remaining header budget has dropped below the safety threshold.
type Governor struct {
	transport *CountingTransport
	limiter   *rate.Limiter

	// sleep is swappable so budget waits are testable without real time.
	sleep func(ctx context.Context, d time.Duration)
}

// NewGovernor builds a governor over the transport's header snapshots.
func NewGovernor(t *CountingTransport, rps float64, burst int) *Governor {
	if burst < 1 {
		burst = 1
	}
	return &Governor{
		transport: t,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		sleep:     sleepCtx,
	}
}

// Wait blocks until the pacing limiter releases a token.
func (g *Governor) Wait(ctx context.Context) error {
	return g.limiter.Wait(ctx)
}

// CheckBudget inspects the latest rate-limit snapshot. When remaining has
// fallen to minRemaining or below and the window has not reset yet, it sleeps
// out the window plus a 5s safety margin. With no snapshot observed yet it
// sleeps 1s as a precaution. It never returns an error.
func (g *Governor) CheckBudget(ctx context.Context, minRemaining int) {
	snap, ok := g.transport.Snapshot()
	if !ok {
		g.sleep(ctx, time.Second)
		return
	}
	if snap.Remaining <= float64(minRemaining) && snap.ResetIn > 0 {
		wait := snap.ResetIn + 5*time.Second
		logger.WithComponent("governor").Warn("rate budget low, sleeping",
			"remaining", snap.Remaining, "wait", wait.String())
		metrics.RedditBudgetWaits.Inc()
		g.sleep(ctx, wait)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
