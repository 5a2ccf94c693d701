package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"taiyari/internal/entities"
	"taiyari/internal/interfaces"
)

// MaxListedConversations bounds the admin conversation listing.
const MaxListedConversations = 50

var ErrInvalidTenantID = errors.New("invalid client id")

type Stats struct {
	TotalClients       int `json:"totalClients"`
	TotalConversations int `json:"totalConversations"`
	ActiveClients      int `json:"activeClients"`
}

// DashboardUsecase serves tenant administration and the client dashboard.
type DashboardUsecase struct {
	tenants     interfaces.TenantStore
	transcripts interfaces.TranscriptStore
	knowledge   *KnowledgeService
	now         func() time.Time
}

func NewDashboardUsecase(tenants interfaces.TenantStore, transcripts interfaces.TranscriptStore, knowledge *KnowledgeService) *DashboardUsecase {
	return &DashboardUsecase{
		tenants:     tenants,
		transcripts: transcripts,
		knowledge:   knowledge,
		now:         time.Now,
	}
}

func (u *DashboardUsecase) ListTenants(ctx context.Context) ([]entities.Tenant, error) {
	return u.tenants.List(ctx)
}

func (u *DashboardUsecase) GetTenant(ctx context.Context, id string) (*entities.Tenant, error) {
	return u.tenants.Get(ctx, id)
}

// CreateTenant onboards a tenant. Persona fields not given take the defaults
// and the knowledge record starts empty with a manual source.
func (u *DashboardUsecase) CreateTenant(ctx context.Context, id string, in entities.TenantUpdate) (*entities.Tenant, error) {
	id = strings.TrimSpace(id)
	if !entities.ValidTenantID(id) {
		return nil, ErrInvalidTenantID
	}

	now := u.now().UTC()
	t := entities.Tenant{
		ID:        id,
		Persona:   entities.DefaultPersona(),
		Knowledge: entities.Knowledge{Source: entities.SourceManual, LastUpdated: now},
		CreatedAt: now,
	}
	t = t.Apply(entities.TenantUpdate{Persona: in.Persona, Knowledge: in.Knowledge}, now)
	if in.ClientPassword != nil && *in.ClientPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.ClientPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash client password: %w", err)
		}
		t.ClientPasswordHash = string(hash)
	}

	if err := u.tenants.Create(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTenant merges in onto the stored tenant.
func (u *DashboardUsecase) UpdateTenant(ctx context.Context, id string, in entities.TenantUpdate) (*entities.Tenant, error) {
	var hash string
	if in.ClientPassword != nil && *in.ClientPassword != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(*in.ClientPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash client password: %w", err)
		}
		hash = string(h)
	}

	return u.tenants.Update(ctx, id, func(t *entities.Tenant) error {
		*t = t.Apply(in, u.now().UTC())
		if in.ClientPassword != nil {
			// an empty password removes the protection
			t.ClientPasswordHash = hash
		}
		return nil
	})
}

// UpdateClientKnowledge is the client dashboard write. When the tenant has a
// password it must match.
func (u *DashboardUsecase) UpdateClientKnowledge(ctx context.Context, id, content, password string) (*entities.Tenant, error) {
	t, err := u.tenants.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.ClientPasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(t.ClientPasswordHash), []byte(password)); err != nil {
			return nil, entities.ErrInvalidCredentials
		}
	}
	return u.knowledge.Put(ctx, id, entities.KnowledgeUpdate{Content: &content}, entities.SourceManual)
}

// ListConversations returns the latest version of each of the tenant's
// conversations, newest first.
func (u *DashboardUsecase) ListConversations(ctx context.Context, id string) ([]entities.Transcript, error) {
	if _, err := u.tenants.Get(ctx, id); err != nil {
		return nil, err
	}
	return u.transcripts.ListByTenant(ctx, id, MaxListedConversations)
}

func (u *DashboardUsecase) Stats(ctx context.Context) (Stats, error) {
	tenants, err := u.tenants.List(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{TotalClients: len(tenants)}
	for _, t := range tenants {
		if t.Persona.IsActive() {
			stats.ActiveClients++
		}
		n, err := u.transcripts.CountConversations(ctx, t.ID)
		if err != nil {
			return Stats{}, fmt.Errorf("count conversations for %s: %w", t.ID, err)
		}
		stats.TotalConversations += n
	}
	return stats, nil
}
