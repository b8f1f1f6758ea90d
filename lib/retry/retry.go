// Package retry provides the two bounded wait loops the client needs:
// transient-error retry for HTTP calls and deadline-bounded polling for
// asynchronous server-side state (stamp usability).
package retry

import (
	"context"
	"errors"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/jpillora/backoff"
)

var log = logging.Logger("retry")

// Retryable marks error types that are worth retrying. Implemented by
// transport-level errors; everything else fails on the first attempt.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err (or anything it wraps) opts into retry.
func IsRetryable(err error) bool {
	var r Retryable
	return errors.As(err, &r) && r.Retryable()
}

// Do invokes f up to attempts times, sleeping with capped exponential backoff
// between failures. Non-retryable errors abort immediately.
func Do[T any](ctx context.Context, attempts int, minDelay, maxDelay time.Duration, f func() (T, error)) (result T, err error) {
	b := &backoff.Backoff{Min: minDelay, Max: maxDelay, Factor: 2, Jitter: true}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			d := b.Duration()
			log.Infow("retrying after error", "attempt", i+1, "delay", d, "err", err)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
		result, err = f()
		if err == nil || !IsRetryable(err) {
			return result, err
		}
	}
	log.Errorf("giving up after %d attempts: %s", attempts, err)
	return result, err
}

// ErrDeadline is returned by Poll when the condition never became true.
var ErrDeadline = errors.New("poll deadline exceeded")

// Poll calls check every interval until it reports done, fails, or the
// timeout elapses. Errors from check are returned as-is; expiry of the
// deadline returns ErrDeadline wrapped around nothing else, so callers can
// map it onto their own taxonomy.
func Poll[T any](ctx context.Context, timeout, interval time.Duration, check func(ctx context.Context) (T, bool, error)) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		v, done, err := check(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			return v, nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return zero, ErrDeadline
			}
			return zero, ctx.Err()
		}
	}
}
