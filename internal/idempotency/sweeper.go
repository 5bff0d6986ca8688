package idempotency

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweep evicts records past their TTL every interval until ctx is
// cancelled. In-flight records are never evicted; the store guards that.
// Run it in its own goroutine, decoupled from request handling.
func (g *Guard) Sweep(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := g.store.DeleteExpired(ctx, g.now())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency: sweep failed")
				continue
			}
			if n > 0 {
				sweepEvicted.Add(float64(n))
				log.Debug().Int64("evicted", n).Msg("idempotency: sweep")
			}
		}
	}
}
