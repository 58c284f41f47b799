package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"
)

// Cooldown allows a user one request per fixed window. A rejected request keeps the timestamp of
// the last accepted one, so retrying inside the window never extends it.
type Cooldown struct {
	window time.Duration
	c      *ccache.Cache[time.Time]
	mux    sync.Mutex
}

func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		c: ccache.New(
			ccache.Configure[time.Time]().
				MaxSize(100_000).
				GetsPerPromote(3).
				ItemsToPrune(100),
		),
		mux: sync.Mutex{},
	}
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (c *Cooldown) Window() time.Duration {
	return c.window
}

func (c *Cooldown) remaining(userID int64, now time.Time) time.Duration {
	item := c.c.Get(key(userID))
	if nil == item {
		return 0
	}
	if elapsed := now.Sub(item.Value()); elapsed < c.window {
		return c.window - elapsed
	}
	return 0
}

func (c *Cooldown) Allow(userID int64, now time.Time) bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.remaining(userID, now) == 0
}

func (c *Cooldown) Remaining(userID int64, now time.Time) time.Duration {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.remaining(userID, now)
}

func (c *Cooldown) Record(userID int64, now time.Time) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.c.Set(key(userID), now, c.window)
}

// TryAcquire records now for userID if the window has elapsed. Otherwise it reports how long the
// user still has to wait.
func (c *Cooldown) TryAcquire(userID int64, now time.Time) (bool, time.Duration) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if left := c.remaining(userID, now); left > 0 {
		return false, left
	}
	c.c.Set(key(userID), now, c.window)
	return true, 0
}

// Sweep drops entries whose window has passed and returns how many were removed.
func (c *Cooldown) Sweep() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.c.DeleteFunc(func(_ string, item *ccache.Item[time.Time]) bool {
		return item.Expired()
	})
}

func (c *Cooldown) Len() int {
	return c.c.ItemCount()
}

func (c *Cooldown) Close() {
	c.c.Stop()
}
