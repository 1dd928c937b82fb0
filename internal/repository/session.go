package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

// SessionRepository keeps the authoritative state of every live session.
type SessionRepository interface {
	GetOrCreate(ctx context.Context, id string) (*entity.Session, error)
	Get(ctx context.Context, id string) (*entity.Session, error)
	Update(ctx context.Context, id string, fn func(session *entity.Session) error) (*entity.Session, error)
	Evict(ctx context.Context, idleFor time.Duration) ([]*entity.Session, error)
	Ping(ctx context.Context) error
}

type sessionEntry struct {
	mu      sync.Mutex
	session *entity.Session
	evicted bool
}

type memorySession struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	now     func() time.Time
}

func NewMemorySessionRepository() SessionRepository {
	return newMemorySessionRepository(time.Now)
}

func newMemorySessionRepository(now func() time.Time) *memorySession {
	return &memorySession{
		entries: make(map[string]*sessionEntry),
		now:     now,
	}
}

func (that *memorySession) GetOrCreate(_ context.Context, id string) (*entity.Session, error) {
	entry := that.entry(id, true)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return entry.session.Clone(), nil
}

func (that *memorySession) Get(_ context.Context, id string) (*entity.Session, error) {
	entry := that.entry(id, false)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return entry.session.Clone(), nil
}

// Update - runs fn on a copy of the session and stores the copy only if fn succeeds.
func (that *memorySession) Update(_ context.Context, id string, fn func(session *entity.Session) error) (*entity.Session, error) {
	entry := that.entry(id, false)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.evicted {
		return nil, fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, id)
	}

	draft := entry.session.Clone()
	if err := fn(draft); err != nil {
		return nil, err
	}

	draft.UpdatedAt = that.now()
	entry.session = draft

	return draft.Clone(), nil
}

// Evict - drops sessions untouched for idleFor and returns what was dropped.
func (that *memorySession) Evict(_ context.Context, idleFor time.Duration) ([]*entity.Session, error) {
	deadline := that.now().Add(-idleFor)

	that.mu.Lock()
	defer that.mu.Unlock()

	var evicted []*entity.Session
	for id, entry := range that.entries {
		entry.mu.Lock()
		if entry.session.UpdatedAt.Before(deadline) {
			entry.evicted = true
			delete(that.entries, id)
			evicted = append(evicted, entry.session.Clone())
		}
		entry.mu.Unlock()
	}

	return evicted, nil
}

func (that *memorySession) Ping(_ context.Context) error {
	return nil
}

func (that *memorySession) entry(id string, create bool) *sessionEntry {
	that.mu.RLock()
	entry, ok := that.entries[id]
	that.mu.RUnlock()

	if ok || !create {
		return entry
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if entry, ok = that.entries[id]; ok {
		return entry
	}

	entry = &sessionEntry{session: entity.NewSession(id, that.now())}
	that.entries[id] = entry

	return entry
}
