// Package retry runs an operation a bounded number of times, waiting between attempts according
// to a Policy, until it produces a result the caller accepts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gopkg.in/matryer/try.v1"

	"github.com/xeptore/teradl/ctxutil"
	"github.com/xeptore/teradl/errutil"
)

var (
	ErrExhausted = errors.New("retry attempts exhausted")
	ErrRejected  = errors.New("attempt result rejected")
)

// Policy returns how long to wait before the given attempt. It is never called for the first one.
type Policy func(attempt int) time.Duration

func None(int) time.Duration { return 0 }

func Fixed(d time.Duration) Policy {
	return func(int) time.Duration { return d }
}

// Jittered waits base plus a uniformly random amount in [minJitter, maxJitter).
func Jittered(base, minJitter, maxJitter time.Duration) Policy {
	return func(int) time.Duration {
		if maxJitter <= minJitter {
			return base + minJitter
		}
		return base + minJitter + rand.N(maxJitter-minJitter) //nolint:gosec
	}
}

type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as not worth another attempt.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do calls fn until it returns a nil error and a value accepted by ok, up to maxAttempts times.
// A nil ok accepts every value. maxAttempts is clamped to [1, try.MaxRetries].
// It returns the accepted value and the number of attempts made. When every attempt fails, the
// error is an *ExhaustedError wrapping the last failure. Context errors and errors marked with
// Permanent stop the loop immediately and are returned as is.
func Do[T any](
	ctx context.Context,
	maxAttempts int,
	wait Policy,
	ok func(T) bool,
	fn func(ctx context.Context, attempt int) (T, error),
) (res T, attempts int, err error) {
	maxAttempts = max(1, min(maxAttempts, try.MaxRetries))
	if nil == wait {
		wait = None
	}

	err = try.Do(func(attempt int) (retry bool, err error) {
		attempts = attempt
		if attempt > 1 {
			if err := ctxutil.Sleep(ctx, wait(attempt)); nil != err {
				return false, err
			}
		}

		attemptRemained := attempt < maxAttempts
		v, err := fn(ctx, attempt)
		if nil != err {
			if errutil.IsContext(ctx) {
				return false, ctx.Err()
			}
			if permanent := new(PermanentError); errors.As(err, &permanent) {
				return false, permanent.Err
			}
			return attemptRemained, &ExhaustedError{Attempts: attempt, Last: err}
		}
		if nil != ok && !ok(v) {
			return attemptRemained, &ExhaustedError{Attempts: attempt, Last: ErrRejected}
		}
		res = v
		return false, nil
	})
	return res, attempts, err
}
