package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/birdseye/internal/pipeline"
)

var (
	errSessionNotFound = errors.New("session not found")
	errTooManySessions = errors.New("session limit reached")
)

// sessionEntry is one tracking session plus its bookkeeping.
type sessionEntry struct {
	mu      sync.Mutex // serialises all access to sess
	sess    *pipeline.Session
	created time.Time

	lastUsed atomic.Int64 // unix nanoseconds
}

func (e *sessionEntry) touch(now time.Time) { e.lastUsed.Store(now.UnixNano()) }

func (e *sessionEntry) idleSince() time.Time { return time.Unix(0, e.lastUsed.Load()) }

// response snapshots the session under its lock.
func (e *sessionEntry) response() SessionResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SessionResponse{
		ID:        e.sess.ID,
		Name:      e.sess.Name,
		CreatedAt: e.created.UTC().Format(time.RFC3339),
		LastUsed:  e.idleSince().UTC().Format(time.RFC3339),
		Stats:     e.sess.Stats(),
		State:     e.sess.State(),
	}
}

// sessionStore holds the live sessions by id.
type sessionStore struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func newSessionStore(ttl time.Duration, maxSessions int) *sessionStore {
	return &sessionStore{
		entries: make(map[string]*sessionEntry),
		ttl:     ttl,
		max:     maxSessions,
		now:     time.Now,
	}
}

func (st *sessionStore) create(p pipelineInterface, name string) (*sessionEntry, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.max > 0 && len(st.entries) >= st.max {
		return nil, errTooManySessions
	}

	now := st.now()
	e := &sessionEntry{sess: p.NewSession(name), created: now}
	e.touch(now)
	st.entries[e.sess.ID] = e
	activeSessions.Set(float64(len(st.entries)))
	return e, nil
}

// get returns the session and marks it as used.
func (st *sessionStore) get(id string) (*sessionEntry, error) {
	st.mu.RLock()
	e, ok := st.entries[id]
	st.mu.RUnlock()
	if !ok {
		return nil, errSessionNotFound
	}
	e.touch(st.now())
	return e, nil
}

func (st *sessionStore) remove(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.entries[id]; !ok {
		return false
	}
	delete(st.entries, id)
	activeSessions.Set(float64(len(st.entries)))
	return true
}

func (st *sessionStore) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.entries)
}

func (st *sessionStore) clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	clear(st.entries)
	activeSessions.Set(0)
}

// evictIdle removes sessions not used for longer than the TTL and returns
// their ids.
func (st *sessionStore) evictIdle() []string {
	if st.ttl <= 0 {
		return nil
	}
	cutoff := st.now().Add(-st.ttl)

	st.mu.Lock()
	defer st.mu.Unlock()
	var evicted []string
	for id, e := range st.entries {
		if e.idleSince().Before(cutoff) {
			delete(st.entries, id)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		sessionsEvicted.Add(float64(len(evicted)))
		activeSessions.Set(float64(len(st.entries)))
	}
	return evicted
}

// runJanitor evicts idle sessions every interval until ctx is done.
func (st *sessionStore) runJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range st.evictIdle() {
				slog.Info("Evicted idle session", "session", id, "ttl", st.ttl)
			}
		}
	}
}

// janitorInterval checks twice per TTL, at most once a second.
func janitorInterval(ttl time.Duration) time.Duration {
	return max(ttl/2, time.Second)
}
