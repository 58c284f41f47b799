// Package session keeps the most recent resolved link of every user until it is relayed once or
// expires.
package session

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/xeptore/teradl/records"
	"github.com/xeptore/teradl/resolver"
)

var ErrExpired = errors.New("session expired")

type Session struct {
	UserID    int64
	Link      resolver.ResolvedLink
	User      records.UserInfo
	CreatedAt time.Time
}

type Store struct {
	ttl time.Duration
	c   *ccache.Cache[Session]
	mux sync.Mutex
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl: ttl,
		c: ccache.New(
			ccache.Configure[Session]().
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

// Put stores s, replacing any earlier session of the same user.
func (s *Store) Put(sess Session) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.c.Set(key(sess.UserID), sess, s.ttl)
}

// Peek returns the user's live session without consuming it.
func (s *Store) Peek(userID int64) (*Session, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	item := s.c.Get(key(userID))
	if nil == item || item.Expired() {
		return nil, false
	}
	sess := item.Value()
	return &sess, true
}

// Consume removes and returns the user's session. Of any number of concurrent callers exactly one
// gets the session, the rest get ErrExpired.
func (s *Store) Consume(userID int64) (*Session, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	k := key(userID)
	item := s.c.Get(k)
	if nil == item {
		return nil, ErrExpired
	}
	s.c.Delete(k)
	if item.Expired() {
		return nil, ErrExpired
	}
	sess := item.Value()
	return &sess, nil
}

func (s *Store) Len() int {
	return s.c.ItemCount()
}

func (s *Store) Sweep() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.c.DeleteFunc(func(_ string, item *ccache.Item[Session]) bool {
		return item.Expired()
	})
}

func (s *Store) Close() {
	s.c.Stop()
}
