package service

import (
	"context"
	"time"

	"github.com/transitra/transitra/pkg/slogx"
)

// DefaultHousekeepingInterval is how often defunct sessions and stale
// throttle records are swept.
const DefaultHousekeepingInterval = 15 * time.Minute

// HousekeepingService periodically removes defunct sessions and sweeps the
// login throttle. Start launches the worker; Stop blocks until it exits.
type HousekeepingService struct {
	Sessions *SessionService
	Throttle LoginThrottle
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func (s *HousekeepingService) interval() time.Duration {
	if s.Interval > 0 {
		return s.Interval
	}
	return DefaultHousekeepingInterval
}

func (s *HousekeepingService) Start(ctx context.Context) {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval())
		defer ticker.Stop()

		// One pass at startup so a restart does not defer cleanup by a
		// full interval.
		s.RunOnce(ctx)

		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *HousekeepingService) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

// RunOnce performs a single housekeeping pass.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	log := slogx.FromContext(ctx)

	removed, err := s.Sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		log.Error("session cleanup failed", "error", err)
	} else if removed > 0 {
		log.Info("removed defunct sessions", "count", removed)
	}

	if err := s.Throttle.Sweep(ctx); err != nil {
		log.Error("throttle sweep failed", "error", err)
	}
}
