package aggregator

import (
	"context"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
)

// SignalSource yields external "something may have changed" notifications.
// Next blocks until a signal arrives and returns a short description of it.
type SignalSource interface {
	Next(ctx context.Context) (string, error)
}

// WatchSignals turns every signal from src into a TriggerNow until ctx is
// cancelled. Read errors back off exponentially from 200ms up to 5s.
func (s *Service) WatchSignals(ctx context.Context, src SignalSource) {
	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		reason, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("read change signal failed", "error", err, "retry_in", backoff)
			if !s.sleep(ctx, backoff) {
				return
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}

		backoff = 200 * time.Millisecond
		s.metrics.SignalsConsumed.Inc()
		s.TriggerNow("signal:" + reason)
	}
}

// sleep is retry.SleepWithContext on the injected clock.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
