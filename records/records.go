// Package records persists one record per user in a single JSON object keyed by user id. The
// whole file is rewritten atomically on every update.
package records

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/teradl/errutil"
	"github.com/xeptore/teradl/resolver"
)

const TimeLayout = "2006-01-02 15:04:05"

const (
	noUsername  = "No Username"
	noFirstName = "No First Name"
	noTitle     = "Unknown"
)

type UserInfo struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

func (u UserInfo) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Record struct {
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	OriginalLink string `json:"original_link"`
	DirectLink   string `json:"direct_link"`
	Title        string `json:"title"`
	Timestamp    string `json:"timestamp"`
	LastActivity string `json:"last_activity"`
}

type Store struct {
	path string
	mux  sync.RWMutex
	data map[string]Record
	now  func() time.Time
}

// Open loads the records file at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		mux:  sync.RWMutex{},
		data: make(map[string]Record),
		now:  time.Now,
	}

	b, err := os.ReadFile(path)
	if nil != err {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to read records file: %v", err)).Append(flawP)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return s, nil
	}

	if err := json.Unmarshal(b, &s.data); nil != err {
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to decode records file: %v", err)).Append(flawP)
	}
	if nil == s.data {
		s.data = make(map[string]Record)
	}
	return s, nil
}

// Put records the latest resolution of a user. The first-seen timestamp of an existing record is
// kept, last_activity is always refreshed.
func (s *Store) Put(user UserInfo, link resolver.ResolvedLink) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	k := strconv.FormatInt(user.ID, 10)
	now := s.now().Format(TimeLayout)

	rec := Record{
		Username:     orDefault(user.Username, noUsername),
		FirstName:    orDefault(user.FirstName, noFirstName),
		LastName:     user.LastName,
		OriginalLink: link.SourceURL,
		DirectLink:   link.DirectURL,
		Title:        orDefault(link.Title, noTitle),
		Timestamp:    now,
		LastActivity: now,
	}
	if prev, ok := s.data[k]; ok && prev.Timestamp != "" {
		rec.Timestamp = prev.Timestamp
	}
	s.data[k] = rec

	return s.flush()
}

func (s *Store) Get(userID int64) (Record, bool) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	rec, ok := s.data[strconv.FormatInt(userID, 10)]
	return rec, ok
}

func (s *Store) Len() int {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return len(s.data)
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) flush() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if nil != err {
		return flaw.From(fmt.Errorf("failed to encode records: %v", err))
	}
	if err := writeFileAtomic(s.path, b); nil != err {
		flawP := flaw.P{"path": s.path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to write records file: %v", err)).Append(flawP)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".records-*.tmp")
	if nil != err {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); nil != err {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); nil != err {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); nil != err {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
