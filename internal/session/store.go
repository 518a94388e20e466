// Package session keeps bounded conversation histories in process memory.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cvrag/internal/domain"
)

// DefaultWindow is the number of turns kept per session when none is configured.
const DefaultWindow = 10

// Session is one conversation. Its fields are guarded by mu.
type Session struct {
	mu           sync.Mutex
	id           string
	turns        []domain.Turn
	createdAt    time.Time
	lastAccessed time.Time
}

// Info returns a snapshot of the session.
func (s *Session) Info() domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.SessionInfo{
		ID:           s.id,
		Turns:        len(s.turns),
		CreatedAt:    s.createdAt,
		LastAccessed: s.lastAccessed,
	}
}

// Store maps session ids to sessions. The map lock is held only while
// looking up or inserting; turn lists are guarded per session.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	window   int
	now      func() time.Time
}

// NewStore returns a store keeping at most window turns per session.
func NewStore(window int) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Store{sessions: make(map[string]*Session), window: window, now: time.Now}
}

// NewID returns a fresh random session identifier.
func NewID() string { return uuid.NewString() }

// Resolve returns the id to use for a request and a copy of its history
// without creating anything. An empty id gets a fresh identifier.
func (s *Store) Resolve(id string) (string, []domain.Turn) {
	if id == "" {
		return NewID(), nil
	}
	s.mu.RLock()
	sess := s.sessions[id]
	s.mu.RUnlock()
	if sess == nil {
		return id, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastAccessed = s.now()
	return id, append([]domain.Turn(nil), sess.turns...)
}

// GetOrCreate returns the session for id, creating it if needed.
func (s *Store) GetOrCreate(id string) (string, *Session) {
	if id == "" {
		id = NewID()
	}
	s.mu.RLock()
	sess := s.sessions[id]
	s.mu.RUnlock()
	if sess != nil {
		return id, sess
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess = s.sessions[id]; sess == nil {
		now := s.now()
		sess = &Session{id: id, createdAt: now, lastAccessed: now}
		s.sessions[id] = sess
	}
	return id, sess
}

// Append adds turns to the session, creating it on first use, and drops
// the oldest turns beyond the window.
func (s *Store) Append(id string, turns ...domain.Turn) {
	_, sess := s.GetOrCreate(id)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, turns...)
	if over := len(sess.turns) - s.window; over > 0 {
		sess.turns = append([]domain.Turn(nil), sess.turns[over:]...)
	}
	sess.lastAccessed = s.now()
}

// History returns a copy of the session turns, oldest first.
func (s *Store) History(id string) []domain.Turn {
	s.mu.RLock()
	sess := s.sessions[id]
	s.mu.RUnlock()
	if sess == nil {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]domain.Turn(nil), sess.turns...)
}

// Reset forgets the session and reports whether it existed.
func (s *Store) Reset(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// ListActive returns session ids ordered by creation time.
func (s *Store) ListActive() []string {
	s.mu.RLock()
	infos := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, sess)
	}
	s.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].createdAt.Equal(infos[j].createdAt) {
			return infos[i].createdAt.Before(infos[j].createdAt)
		}
		return infos[i].id < infos[j].id
	})
	ids := make([]string, len(infos))
	for i, sess := range infos {
		ids[i] = sess.id
	}
	return ids
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Window is the configured turn limit.
func (s *Store) Window() int { return s.window }
