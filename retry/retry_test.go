package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/matryer/try.v1"

	"github.com/xeptore/teradl/retry"
)

var errFlaky = errors.New("flaky")

func TestDo(t *testing.T) {
	t.Parallel()

	t.Run("SucceedsOnThirdAttempt", func(t *testing.T) {
		t.Parallel()

		calls := 0
		res, attempts, err := retry.Do(t.Context(), 5, retry.None, nil, func(_ context.Context, attempt int) (string, error) {
			calls++
			if attempt < 3 {
				return "", errFlaky
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", res)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("Exhausted", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, attempts, err := retry.Do(t.Context(), 3, retry.None, nil, func(context.Context, int) (int, error) {
			calls++
			return 0, errFlaky
		})
		require.ErrorIs(t, err, retry.ErrExhausted)
		require.ErrorIs(t, err, errFlaky)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)

		exhausted := new(retry.ExhaustedError)
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 3, exhausted.Attempts)
	})

	t.Run("RejectedByPredicate", func(t *testing.T) {
		t.Parallel()

		accept := func(v int) bool { return v >= 2 }
		res, attempts, err := retry.Do(t.Context(), 4, retry.None, accept, func(_ context.Context, attempt int) (int, error) {
			return attempt, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, res)
		assert.Equal(t, 2, attempts)

		_, _, err = retry.Do(t.Context(), 2, retry.None, func(int) bool { return false }, func(context.Context, int) (int, error) {
			return 1, nil
		})
		require.ErrorIs(t, err, retry.ErrRejected)
	})

	t.Run("Permanent", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, attempts, err := retry.Do(t.Context(), 5, retry.None, nil, func(context.Context, int) (int, error) {
			calls++
			return 0, retry.Permanent(errFlaky)
		})
		require.ErrorIs(t, err, errFlaky)
		require.NotErrorIs(t, err, retry.ErrExhausted)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("ContextCanceledDuringWait", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		calls := 0
		start := time.Now()
		_, _, err := retry.Do(ctx, 3, retry.Fixed(time.Hour), nil, func(context.Context, int) (int, error) {
			calls++
			cancel()
			return 0, errFlaky
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("ClampsAttempts", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, attempts, err := retry.Do(t.Context(), 1000, retry.None, nil, func(context.Context, int) (int, error) {
			calls++
			return 0, errFlaky
		})
		require.ErrorIs(t, err, retry.ErrExhausted)
		assert.Equal(t, try.MaxRetries, calls)
		assert.Equal(t, try.MaxRetries, attempts)

		calls = 0
		_, _, err = retry.Do(t.Context(), 0, retry.None, nil, func(context.Context, int) (int, error) {
			calls++
			return 0, errFlaky
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestJittered(t *testing.T) {
	t.Parallel()

	policy := retry.Jittered(2*time.Second, time.Second, 3*time.Second)
	for attempt := range 100 {
		d := policy(attempt + 2)
		if d < 3*time.Second || d >= 5*time.Second {
			t.Errorf("expected 3s <= wait < 5s, got %s", d)
		}
	}

	assert.Equal(t, 3*time.Second, retry.Jittered(2*time.Second, time.Second, time.Second)(2))
	assert.Equal(t, 4*time.Second, retry.Fixed(4*time.Second)(7))
	assert.Zero(t, retry.None(2))
}
