package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nestzone-clara-backend/internal/dialogue"
)

var (
	// ErrBusy is returned by Begin while another turn holds the session.
	ErrBusy = errors.New("store: session is busy")
	// ErrInvalidID is returned by Begin for ids NewSessionID cannot produce.
	ErrInvalidID = errors.New("store: malformed session id")
)

type session struct {
	state    *dialogue.State
	busy     bool
	lastSeen time.Time
}

// MemoryStore keeps conversations in process memory. A session is only
// changed between Begin and End, one turn at a time; readers get copies.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*session
	maxMessages int
	ttl         time.Duration
	newState    func() *dialogue.State
	now         func() time.Time
}

func NewMemoryStore(maxMessages int, ttl time.Duration, newState func() *dialogue.State) *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*session),
		maxMessages: maxMessages,
		ttl:         ttl,
		newState:    newState,
		now:         time.Now,
	}
}

const sessionPrefix = "s_"

// NewSessionID returns a fresh opaque session id.
func NewSessionID() string { return sessionPrefix + uuid.NewString() }

// ValidSessionID reports whether id has the shape NewSessionID produces.
func ValidSessionID(id string) bool {
	rest, ok := strings.CutPrefix(id, sessionPrefix)
	if !ok || len(rest) != 36 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// Ensure returns id when it names a live session, or creates a new session
// and returns its id. created reports the latter. A well-formed id that is
// not known, say from before a restart, is kept; anything else is replaced
// by a fresh id.
func (m *MemoryStore) Ensure(id string) (sessionID string, created bool) {
	if !ValidSessionID(id) {
		id = NewSessionID()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.lastSeen = m.now()
		return id, false
	}
	m.createLocked(id)
	return id, true
}

func (m *MemoryStore) createLocked(id string) *session {
	s := &session{state: m.newState(), lastSeen: m.now()}
	m.sessions[id] = s
	return s
}

// Snapshot returns a copy of the last committed state.
func (m *MemoryStore) Snapshot(id string) (dialogue.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return dialogue.State{}, false
	}
	return s.state.Clone(), true
}

// Begin marks the session busy and hands out a working copy of its state.
// Unknown well-formed ids get a fresh session. Every successful Begin must
// be paired with End.
func (m *MemoryStore) Begin(id string) (*dialogue.State, error) {
	if !ValidSessionID(id) {
		return nil, ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = m.createLocked(id)
	}
	if s.busy {
		return nil, ErrBusy
	}
	s.busy = true
	s.lastSeen = m.now()
	st := s.state.Clone()
	return &st, nil
}

// End commits st, trimmed to the message limit, and releases the session.
// A nil st discards the turn.
func (m *MemoryStore) End(id string, st *dialogue.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.busy = false
	s.lastSeen = m.now()
	if st == nil {
		return
	}
	st.Trim(m.maxMessages)
	s.state = st
}

func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// went. Busy sessions are never dropped.
func (m *MemoryStore) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-m.ttl)
	n := 0
	for id, s := range m.sessions {
		if !s.busy && s.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Janitor sweeps every interval until ctx is done.
func (m *MemoryStore) Janitor(ctx context.Context, interval time.Duration, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				log.Info("expired idle sessions", zap.Int("count", n), zap.Int("remaining", m.Len()))
			}
		}
	}
}
