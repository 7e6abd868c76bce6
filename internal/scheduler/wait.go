package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errWaitTimeout = errors.New("wait timed out")

// newPollBackOff builds the randomized exponential delay used between checks
// of every master wait. It never gives up on its own.
func newPollBackOff(minInterval, maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minInterval
	b.MaxInterval = maxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 1.5
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// waitUntil polls cond until it returns true. Between checks the master keeps
// handling worker messages; a message cuts the current delay short.
// timeout <= 0 waits until ctx is done. Outside shutdown a fatal error
// recorded by a message ends the wait.
func (s *Scheduler) waitUntil(ctx context.Context, timeout time.Duration, cond func() (bool, error)) error {
	b := newPollBackOff(s.cfg.PollMinInterval, s.cfg.PollMaxInterval)

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		s.pump()
		if s.fatal != nil && s.phase != PhaseShutdown {
			return s.fatal
		}

		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		delay := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			delay.Stop()
			return ctx.Err()
		case <-deadline:
			delay.Stop()
			return errWaitTimeout
		case msg := <-s.inbox:
			delay.Stop()
			s.handle(msg)
		case <-delay.C:
		}
	}
}

// pump handles every message already queued without blocking.
func (s *Scheduler) pump() {
	for {
		select {
		case msg := <-s.inbox:
			s.handle(msg)
		default:
			return
		}
	}
}
