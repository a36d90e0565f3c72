package worker

import (
	"context"
	"errors"
	"time"

	"kucoin-depth-viewer/apperrors"
	"kucoin-depth-viewer/logging"
)

// SessionRunner runs one complete session: token, open, drain.
type SessionRunner interface {
	Run(ctx context.Context) error
}

// Supervisor re-runs sessions that end on a transport failure or end of
// stream, with exponential backoff between attempts.
type Supervisor struct {
	runner      SessionRunner
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *logging.Logger

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewSupervisor creates a supervisor allowing maxAttempts consecutive failures
func NewSupervisor(runner SessionRunner, maxAttempts int, baseDelay, maxDelay time.Duration, logger *logging.Logger) *Supervisor {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Supervisor{
		runner:      runner,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		logger:      logger,
		sleep:       sleepContext,
		now:         time.Now,
	}
}

// Run loops until a non-retryable error, cancellation, or too many
// consecutive failures. A session that stayed up for at least maxDelay
// resets the failure count.
func (s *Supervisor) Run(ctx context.Context) error {
	failures := 0
	for {
		started := s.now()
		err := s.runner.Run(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err == nil || !Retryable(err) {
			return err
		}

		if s.now().Sub(started) >= s.maxDelay {
			failures = 0
		}
		failures++
		if failures > s.maxAttempts {
			s.logger.Error("giving up after consecutive session failures", logging.Int("failures", failures-1), logging.Err(err))
			return err
		}

		delay := s.Backoff(failures)
		s.logger.Warn("session ended, reconnecting",
			logging.Err(err),
			logging.Int("attempt", failures),
			logging.Duration("backoff", delay))

		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Backoff returns the delay before the given attempt (1-based).
func (s *Supervisor) Backoff(attempt int) time.Duration {
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.maxDelay {
			return s.maxDelay
		}
	}
	return delay
}

// Retryable reports whether a fresh session could succeed after err.
func Retryable(err error) bool {
	if errors.Is(err, apperrors.ErrEndOfStream) {
		return true
	}
	return apperrors.Is(err, apperrors.Transport)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
