package redis_session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atom-ai-labs/cataloger/internal/chat/session"
	"github.com/atom-ai-labs/cataloger/internal/warehouse"
	"github.com/atom-ai-labs/cataloger/provider"
)

type Store struct {
	client *redis.Client
}

func NewRedisSessionStore(addr, password string, db int) session.Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: rdb}
}

// NewStore wraps an existing client, mainly for tests.
func NewStore(client *redis.Client) session.Store {
	return &Store{client: client}
}

type meta struct {
	Table warehouse.TableRef `json:"table"`
}

func metaKey(id string) string    { return fmt.Sprintf("session:%s:meta", id) }
func historyKey(id string) string { return fmt.Sprintf("session:%s:history", id) }

func (store *Store) EnsureSession(ctx context.Context, id string, ttl time.Duration, ref warehouse.TableRef) (session.Session, error) {
	if id != "" {
		val, err := store.client.Get(ctx, metaKey(id)).Result()
		if err == nil {
			var m meta
			if err := json.Unmarshal([]byte(val), &m); err == nil {
				_ = store.client.Expire(ctx, metaKey(id), ttl).Err()
				_ = store.client.Expire(ctx, historyKey(id), ttl).Err()
				return &Session{client: store.client, id: id, table: m.Table, ttl: ttl}, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session lookup: %w", err)
		}
	}

	newID := uuid.NewString()
	data, err := json.Marshal(meta{Table: ref})
	if err != nil {
		return nil, err
	}
	if err := store.client.Set(ctx, metaKey(newID), data, ttl).Err(); err != nil {
		return nil, fmt.Errorf("session init: %w", err)
	}
	return &Session{client: store.client, id: newID, table: ref, ttl: ttl}, nil
}

func (store *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	val, err := store.client.Get(ctx, metaKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	var m meta
	if err := json.Unmarshal([]byte(val), &m); err != nil {
		return nil, fmt.Errorf("session meta corrupt: %w", err)
	}
	return &Session{client: store.client, id: id, table: m.Table, ttl: session.DefaultTTL}, nil
}

type Session struct {
	client *redis.Client
	id     string
	table  warehouse.TableRef
	ttl    time.Duration
}

func (s *Session) ID() string                { return s.id }
func (s *Session) Table() warehouse.TableRef { return s.table }

func (s *Session) History(ctx context.Context) ([]provider.Message, error) {
	raw, err := s.client.LRange(ctx, historyKey(s.id), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("history read: %w", err)
	}
	out := make([]provider.Message, 0, len(raw))
	for _, item := range raw {
		var msg provider.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("history entry corrupt: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Session) Append(ctx context.Context, messages ...provider.Message) error {
	if len(messages) == 0 {
		return nil
	}
	items := make([]any, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		items = append(items, data)
	}
	if err := s.client.RPush(ctx, historyKey(s.id), items...).Err(); err != nil {
		return fmt.Errorf("history append: %w", err)
	}
	return s.client.Expire(ctx, historyKey(s.id), s.ttl).Err()
}
