package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	defaultAttempts   = 5
	defaultBackoff    = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// RetryPolicy controls [Retry].
type RetryPolicy struct {
	// Name labels log messages.
	Name string

	// Attempts is the total number of calls, including the first. Default: 5.
	Attempts int

	// Backoff is the wait after the first failure. It doubles after every
	// further failure. Default: 1s.
	Backoff time.Duration

	// MaxBackoff caps the wait between attempts. Default: 30s.
	MaxBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = defaultAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. [Retry] returns the wrapped
// error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}

// Retry calls fn until it returns nil, a [Permanent] error, [ErrCircuitOpen],
// or the policy runs out of attempts. The last error is returned. Waiting
// between attempts stops early when ctx is cancelled.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	wait := p.Backoff

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if errors.Is(err, ErrCircuitOpen) || attempt >= p.Attempts {
			return err
		}

		slog.Debug("resilience: retrying",
			"name", p.Name,
			"attempt", attempt,
			"backoff", wait,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > p.MaxBackoff {
			wait = p.MaxBackoff
		}
	}
}
