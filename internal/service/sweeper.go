package service

import (
	"context"
	"time"

	"github.com/nexusoptimizer/nexus/internal/logger"
	"github.com/nexusoptimizer/nexus/internal/repository"
)

// Sweeper periodically purges used and expired reset tickets so the
// store does not grow indefinitely. It gives no ordering guarantee
// relative to concurrent reset attempts beyond the ticket repository's
// own consume-exactly-once rule.
type Sweeper struct {
	tickets  repository.ResetTicketRepository
	interval time.Duration
	log      *logger.Logger
}

// NewSweeper creates a new Sweeper
func NewSweeper(tickets repository.ResetTicketRepository, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{
		tickets:  tickets,
		interval: interval,
		log:      log.WithComponent("sweeper"),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep purges finished tickets once.
func (s *Sweeper) Sweep(ctx context.Context) {
	purged, err := s.tickets.PurgeFinished(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to purge reset tickets")
		return
	}
	if purged > 0 {
		s.log.Info().Int64("purged", purged).Msg("purged finished reset tickets")
	}
}
