package ratelimit_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/teradl/ratelimit"
)

func TestCooldown(t *testing.T) {
	t.Parallel()

	const window = 30 * time.Second
	base := time.Now()

	t.Run("WindowBoundaries", func(t *testing.T) {
		t.Parallel()

		c := ratelimit.NewCooldown(window)
		t.Cleanup(c.Close)

		assert.True(t, c.Allow(1, base))
		c.Record(1, base)

		for _, offset := range []time.Duration{0, time.Second, 15 * time.Second, window - time.Millisecond} {
			assert.False(t, c.Allow(1, base.Add(offset)), "offset %s", offset)
		}
		for _, offset := range []time.Duration{window, window + time.Second, time.Hour} {
			assert.True(t, c.Allow(1, base.Add(offset)), "offset %s", offset)
		}

		assert.True(t, c.Allow(2, base), "other users are unaffected")
	})

	t.Run("RejectionKeepsOriginalTimestamp", func(t *testing.T) {
		t.Parallel()

		c := ratelimit.NewCooldown(window)
		t.Cleanup(c.Close)

		ok, _ := c.TryAcquire(7, base)
		require.True(t, ok)

		ok, left := c.TryAcquire(7, base.Add(20*time.Second))
		require.False(t, ok)
		assert.Equal(t, 10*time.Second, left)

		ok, _ = c.TryAcquire(7, base.Add(window))
		assert.True(t, ok, "a rejected attempt must not extend the window")
		assert.Equal(t, window, c.Remaining(7, base.Add(window)))
	})

	t.Run("Remaining", func(t *testing.T) {
		t.Parallel()

		c := ratelimit.NewCooldown(window)
		t.Cleanup(c.Close)

		assert.Zero(t, c.Remaining(3, base))
		c.Record(3, base)
		assert.Equal(t, 25*time.Second, c.Remaining(3, base.Add(5*time.Second)))
		assert.Zero(t, c.Remaining(3, base.Add(31*time.Second)))
		assert.Equal(t, window, c.Window())
	})

	t.Run("ConcurrentAcquireAdmitsOne", func(t *testing.T) {
		t.Parallel()

		c := ratelimit.NewCooldown(window)
		t.Cleanup(c.Close)

		var (
			wg       sync.WaitGroup
			admitted atomic.Int32
		)
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := c.TryAcquire(9, base); ok {
					admitted.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, admitted.Load())
	})

	t.Run("Sweep", func(t *testing.T) {
		t.Parallel()

		c := ratelimit.NewCooldown(50 * time.Millisecond)
		t.Cleanup(c.Close)

		c.Record(1, time.Now())
		c.Record(2, time.Now())
		assert.Equal(t, 2, c.Len())

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 2, c.Sweep())
		assert.Zero(t, c.Len())
	})
}
