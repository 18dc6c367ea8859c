package sweeper

import (
	"context"
	"time"

	"github.com/beamdrop/beamdrop/internal/logger"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

// Sweeper periodically fails transfers that sat in PENDING or ACCEPTED
// past their expiry and drops their stored signaling data.
type Sweeper struct {
	svc      *transfer.Service
	interval time.Duration
}

func New(svc *transfer.Service, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.svc.SweepExpired(ctx)
			if err != nil {
				logger.Log.Error().Err(err).Msg("expiry sweep")
				continue
			}
			if n > 0 {
				logger.Log.Info().Int("failed", n).Msg("expired transfers swept")
			}
		}
	}
}
