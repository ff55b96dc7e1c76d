package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atom-ai-labs/cataloger/internal/chat/session"
	"github.com/atom-ai-labs/cataloger/internal/warehouse"
	"github.com/atom-ai-labs/cataloger/provider"
)

type Store struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

func NewInMemorySessionStore() session.Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (store *Store) EnsureSession(ctx context.Context, id string, ttl time.Duration, ref warehouse.TableRef) (session.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if id != "" {
		if sess, ok := store.sessions[id]; ok && !sess.expired() {
			sess.expire(ttl)
			return sess, nil
		}
	}
	sess := &Session{
		id:        uuid.NewString(),
		table:     ref,
		expiresAt: time.Now().Add(ttl),
	}
	store.sessions[sess.id] = sess
	return sess, nil
}

func (store *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()
	sess, ok := store.sessions[id]
	if !ok || sess.expired() {
		return nil, nil
	}
	return sess, nil
}

type Session struct {
	id        string
	table     warehouse.TableRef
	history   []provider.Message
	expiresAt time.Time
	mu        sync.RWMutex
}

func (s *Session) ID() string                { return s.id }
func (s *Session) Table() warehouse.TableRef { return s.table }

func (s *Session) expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Now().After(s.expiresAt)
}

func (s *Session) expire(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiresAt = time.Now().Add(ttl)
}

func (s *Session) History(ctx context.Context) ([]provider.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]provider.Message, len(s.history))
	copy(out, s.history)
	return out, nil
}

func (s *Session) Append(ctx context.Context, messages ...provider.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, messages...)
	return nil
}
