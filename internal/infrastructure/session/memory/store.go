// Package memory keeps per-session conversation turns in an expiring LRU.
// Sessions handed out by Open stay pinned until their holder unlocks them,
// so capacity eviction never splits one conversation into two buffers.
package memory

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
)

const (
	DefaultTTL         = 2 * time.Hour
	DefaultMaxSessions = 10000
)

type Store struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]
	pinned   map[string]*Session
}

func NewStore(maxSessions int, ttl time.Duration) *Store {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: expirable.NewLRU[string, *Session](maxSessions, nil, ttl),
		pinned:   make(map[string]*Session),
	}
}

// Open returns the live session or creates one seeded with prior. The
// session is pinned until the matching Unlock and its expiry is refreshed.
func (s *Store) Open(sessionID string, prior []domain.Turn) ports.SessionMemory {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.pinned[sessionID]
	if !ok {
		sess, ok = s.sessions.Get(sessionID)
		if !ok {
			sess = &Session{
				store: s,
				id:    sessionID,
				turns: append([]domain.Turn(nil), prior...),
			}
		}
		s.pinned[sessionID] = sess
	}
	sess.holders++
	s.sessions.Add(sessionID, sess)
	return sess
}

// release unpins sess once its last holder is done and puts it back at the
// front of the LRU, even if capacity pressure dropped it meanwhile.
func (s *Store) release(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.holders > 0 {
		sess.holders--
	}
	if sess.holders > 0 || s.pinned[sess.id] != sess {
		return
	}
	delete(s.pinned, sess.id)
	s.sessions.Add(sess.id, sess)
}

func (s *Store) Evict(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pinned, sessionID)
	s.sessions.Remove(sessionID)
}

// Len reports sessions held by the LRU; pinned sessions pushed out by
// capacity are not counted until released.
func (s *Store) Len() int {
	return s.sessions.Len()
}

// Session is a single conversation buffer. Callers hold its lock for the
// whole read-answer-append exchange.
type Session struct {
	mu    sync.Mutex
	store *Store
	id    string
	turns []domain.Turn

	// guarded by store.mu
	holders int
}

func (s *Session) Lock() {
	s.mu.Lock()
}

func (s *Session) Unlock() {
	s.mu.Unlock()
	if s.store != nil {
		s.store.release(s)
	}
}

// Turns returns a copy of the buffered turns.
func (s *Session) Turns() []domain.Turn {
	return append([]domain.Turn(nil), s.turns...)
}

func (s *Session) Append(turns ...domain.Turn) {
	s.turns = append(s.turns, turns...)
}
