package interfaces

import (
	"context"
	"time"

	"taiyari/internal/entities"
)

// Generator is the external language-generation service: given a persona
// instruction and an ordered message history it returns the reply text.
type Generator interface {
	Generate(ctx context.Context, instruction string, history []entities.Message) (string, error)
}

// PageFetcher returns the raw body of a web page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// TenantStore persists tenant records. Update runs fn against the current
// record and swaps in the result as a whole.
type TenantStore interface {
	Get(ctx context.Context, id string) (*entities.Tenant, error)
	List(ctx context.Context) ([]entities.Tenant, error)
	Create(ctx context.Context, t *entities.Tenant) error
	Update(ctx context.Context, id string, fn func(*entities.Tenant) error) (*entities.Tenant, error)
}

// TranscriptStore is the append-only conversation log.
type TranscriptStore interface {
	Save(ctx context.Context, tr entities.Transcript) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]entities.Transcript, error)
	CountConversations(ctx context.Context, tenantID string) (int, error)
}

// Locker guards work that must not run concurrently across replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
