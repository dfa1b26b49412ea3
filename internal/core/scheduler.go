package core

// scheduler.go runs background maintenance for the session service.
//
// The janitor expires sessions that have been idle for longer than the
// configured timeout. It is long-running and context-aware for graceful
// shutdown; a sweep never fails the application.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when StartJanitor gets a non-positive interval.
const DefaultSweepInterval = 5 * time.Minute

// StartJanitor blocks, sweeping idle sessions every interval until ctx is
// cancelled. Run it in its own goroutine.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("session janitor started",
		"interval", interval.String(),
		"idle_timeout", s.opts.IdleTimeout.String(),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session janitor stopped")
			return
		case <-ticker.C:
			s.runSweep()
		}
	}
}

// runSweep performs one expiry pass.
func (s *Service) runSweep() {
	start := time.Now()
	expired := s.ExpireIdle(s.opts.Now())
	if expired == 0 {
		slog.Debug("session sweep completed", "expired", 0)
		return
	}
	slog.Info("expired idle sessions",
		"expired", expired,
		"remaining", s.SessionCount(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
