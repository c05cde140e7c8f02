package periodclose

import (
	"context"
	"time"

	"github.com/xaviergoby/bstdethintg-sub000/internal/domain"
	"github.com/xaviergoby/bstdethintg-sub000/internal/logger"
)

// Scheduler fires a full close run shortly after each period boundary.
// Grace delays the run past the boundary so that late trade and rate
// snapshots have settled.
type Scheduler struct {
	Closer *Closer
	Grace  time.Duration
	Log    *logger.Logger
}

// NewScheduler creates a new Scheduler instance.
func NewScheduler(closer *Closer, grace time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{Closer: closer, Grace: grace, Log: log}
}

// Run blocks until ctx is done, closing the just-ended period after
// every boundary. A run that reports failures does not stop the
// scheduler; CloseFund is restartable, so the next attempt picks up
// where the failed one left off.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := time.Now().UTC()
		current := domain.PeriodOf(now)
		boundary := current.Next().Start().Add(s.Grace)

		timer := time.NewTimer(boundary.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.Log.Infow("scheduled period close starting", "period", current.String())
		if err := s.Closer.Run(ctx, current); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.Log.Errorw("scheduled period close finished with failures",
				"period", current.String(), "error", err)
		}
	}
}
