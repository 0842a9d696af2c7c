package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shinyyama/abracadabra/internal/session"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one live enhancement session. It exists only in process memory.
type Session struct {
	ID         string
	OwnerUID   string
	CreatedAt  time.Time
	Controller *session.Controller

	lastSeen atomic.Int64
}

func (s *Session) Touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

type SessionRepository interface {
	Create(ctx context.Context, ownerUID string, ctrl *session.Controller) (*Session, error)
	FindByID(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteIdle(ctx context.Context, before time.Time) int
	Count() int
}

type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewSessionRepository() SessionRepository {
	return &memorySessionRepository{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (r *memorySessionRepository) Create(ctx context.Context, ownerUID string, ctrl *session.Controller) (*Session, error) {
	now := r.now()
	s := &Session{
		ID:         uuid.NewString(),
		OwnerUID:   ownerUID,
		CreatedAt:  now,
		Controller: ctrl,
	}
	s.Touch(now)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return s, nil
}

func (r *memorySessionRepository) FindByID(ctx context.Context, id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.Touch(r.now())
	return s, nil
}

func (r *memorySessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

// DeleteIdle drops sessions not seen since before and reports how many went.
// Sessions with a submission in flight are kept.
func (r *memorySessionRepository) DeleteIdle(ctx context.Context, before time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.LastSeen().Before(before) && !s.Controller.State().Loading {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *memorySessionRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
