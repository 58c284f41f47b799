// Package cache remembers the access hashes the chat platform hands out with every update, so
// that users and chats seen earlier can be addressed again.
package cache

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/tg"
	"github.com/karlseguin/ccache/v3"
)

var DefaultPeerTTL = 24 * time.Hour

type PeerKind int

const (
	PeerUser PeerKind = iota + 1
	PeerChat
	PeerChannel
)

func (k PeerKind) String() string {
	switch k {
	case PeerUser:
		return "user"
	case PeerChat:
		return "chat"
	case PeerChannel:
		return "channel"
	default:
		return "unknown"
	}
}

type PeerCache struct {
	c   *ccache.Cache[tg.InputPeerClass]
	ttl time.Duration
	mux sync.Mutex
}

func NewPeerCache(ttl time.Duration) *PeerCache {
	c := ccache.New(
		ccache.Configure[tg.InputPeerClass]().
			MaxSize(10_000).
			GetsPerPromote(3).
			ItemsToPrune(100),
	)
	return &PeerCache{c: c, ttl: ttl, mux: sync.Mutex{}}
}

func key(kind PeerKind, id int64) string {
	return kind.String() + ":" + strconv.FormatInt(id, 10)
}

// Remember stores every addressable peer in e. Min constructors carry hashes that are only valid
// in their original context and are skipped.
func (c *PeerCache) Remember(e tg.Entities) {
	c.mux.Lock()
	defer c.mux.Unlock()

	for id, u := range e.Users {
		if u.Min {
			continue
		}
		c.c.Set(key(PeerUser, id), &tg.InputPeerUser{UserID: id, AccessHash: u.AccessHash}, c.ttl)
	}
	for id := range e.Chats {
		c.c.Set(key(PeerChat, id), &tg.InputPeerChat{ChatID: id}, c.ttl)
	}
	for id, ch := range e.Channels {
		if ch.Min {
			continue
		}
		c.c.Set(key(PeerChannel, id), &tg.InputPeerChannel{ChannelID: id, AccessHash: ch.AccessHash}, c.ttl)
	}
}

func (c *PeerCache) Get(kind PeerKind, id int64) (tg.InputPeerClass, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()

	item := c.c.Get(key(kind, id))
	if nil == item || item.Expired() {
		return nil, false
	}
	return item.Value(), true
}

func (c *PeerCache) User(id int64) (*tg.InputPeerUser, bool) {
	p, ok := c.Get(PeerUser, id)
	if !ok {
		return nil, false
	}
	u, ok := p.(*tg.InputPeerUser)
	return u, ok
}

// Fetch returns the cached peer or stores the one returned by fetch.
func (c *PeerCache) Fetch(kind PeerKind, id int64, fetch func() (tg.InputPeerClass, error)) (tg.InputPeerClass, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	item, err := c.c.Fetch(key(kind, id), c.ttl, fetch)
	if nil != err {
		return nil, err
	}
	return item.Value(), nil
}

// ResolveUsername returns the cached peer behind username or stores the one returned by fetch.
func (c *PeerCache) ResolveUsername(username string, fetch func() (tg.InputPeerClass, error)) (tg.InputPeerClass, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	item, err := c.c.Fetch("@"+strings.ToLower(strings.TrimPrefix(username, "@")), c.ttl, fetch)
	if nil != err {
		return nil, err
	}
	return item.Value(), nil
}

func (c *PeerCache) Len() int {
	return c.c.ItemCount()
}

func (c *PeerCache) Stop() {
	c.c.Stop()
}
