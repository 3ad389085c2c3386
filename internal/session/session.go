// Package session keeps the caller-held "last input / last result" state for
// each client session. Entries live in memory only.
package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/eugenenazirov/digitsum/internal/digitsum"
)

// DefaultCapacity bounds the number of sessions tracked at once.
const DefaultCapacity = 1024

var (
	// ErrNotFound indicates the session has no recorded computation.
	ErrNotFound = errors.New("session has no recorded computation")
	// ErrInvalidSession indicates an entry without a session ID.
	ErrInvalidSession = errors.New("session id must not be empty")
)

// Entry is the last computation recorded for a session. Exactly one of
// Result and Failure is set.
type Entry struct {
	SessionID  string            `json:"sessionId"`
	Input      string            `json:"input"`
	Result     *digitsum.Result  `json:"result,omitempty"`
	Failure    *digitsum.Failure `json:"failure,omitempty"`
	ComputedAt time.Time         `json:"computedAt"`
}

// Store provides access to per-session computation state.
type Store interface {
	Record(entry Entry) error
	Last(sessionID string) (Entry, error)
	Reset(sessionID string) error
	Len() int
}

// MemoryStore keeps entries in a map guarded by a RWMutex. When full, the
// least recently recorded session is evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	entries  map[string]Entry
	order    []string
}

// NewMemoryStore creates a store that tracks at most capacity sessions.
// A non-positive capacity falls back to DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		entries:  make(map[string]Entry),
	}
}

// Record stores entry as the latest computation of its session.
func (s *MemoryStore) Record(entry Entry) error {
	if entry.SessionID == "" {
		return ErrInvalidSession
	}
	entry = cloneEntry(entry)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entry.SessionID]; ok {
		s.removeFromOrder(entry.SessionID)
	} else if len(s.entries) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}

	s.entries[entry.SessionID] = entry
	s.order = append(s.order, entry.SessionID)
	return nil
}

// Last returns a copy of the latest entry for sessionID.
func (s *MemoryStore) Last(sessionID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return cloneEntry(entry), nil
}

// Reset returns sessionID to the idle state. Resetting an idle session is a no-op.
func (s *MemoryStore) Reset(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[sessionID]; !ok {
		return nil
	}
	delete(s.entries, sessionID)
	s.removeFromOrder(sessionID)
	return nil
}

// Len reports the number of sessions holding a computation.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) removeFromOrder(sessionID string) {
	if i := slices.Index(s.order, sessionID); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}

func cloneEntry(src Entry) Entry {
	out := src
	if src.Result != nil {
		result := *src.Result
		result.Digits = slices.Clone(src.Result.Digits)
		result.Steps = slices.Clone(src.Result.Steps)
		out.Result = &result
	}
	if src.Failure != nil {
		failure := *src.Failure
		out.Failure = &failure
	}
	return out
}
