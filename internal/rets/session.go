package rets

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session is the state every component function threads through instead
// of reaching for a process-global (spec.md §9: "reject a process-global
// session"). The disk cache at cachePath is the only long-lived state;
// every other copy in memory is a plain value.
type Session struct {
	SessionID      string            `json:"sessionId"`
	SessionExpires time.Time         `json:"sessionExpires"`
	Capabilities   map[string]string `json:"capabilities"`
}

// Expired reports whether the session should no longer be reused.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.SessionExpires)
}

// sessionCache guards the on-disk JSON cache with a single-writer mutex,
// matching the "shared state" contract in spec.md §5 (the C1 client is its
// only writer and serializes on this lock within the process; the C3
// catalog keeps its own file and mutex).
type sessionCache struct {
	mu   sync.Mutex
	path string
}

func newSessionCache(path string) *sessionCache {
	return &sessionCache{path: path}
}

func (c *sessionCache) load() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *sessionCache) save(s *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}

func (c *sessionCache) clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
