package session

import (
	"context"
	"time"

	"github.com/atom-ai-labs/cataloger/internal/warehouse"
	"github.com/atom-ai-labs/cataloger/provider"
)

// DefaultTTL is how long an idle conversation is kept before it expires.
const DefaultTTL = 30 * time.Minute

// Session is one conversation: the table it is scoped to, captured when the
// session is created, plus the running transcript.
type Session interface {
	ID() string
	Table() warehouse.TableRef
	History(ctx context.Context) ([]provider.Message, error)
	Append(ctx context.Context, messages ...provider.Message) error
}

// Store hands out sessions. EnsureSession returns the existing session when
// the id is known (refreshing its TTL and keeping its original table scope),
// otherwise it creates a fresh one bound to ref.
type Store interface {
	EnsureSession(ctx context.Context, id string, ttl time.Duration, ref warehouse.TableRef) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
}
