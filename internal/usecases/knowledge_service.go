package usecases

import (
	"context"
	"fmt"
	"time"

	"taiyari/internal/entities"
	"taiyari/internal/interfaces"
)

// KnowledgeService owns the merge policy of the per-tenant knowledge record.
type KnowledgeService struct {
	tenants interfaces.TenantStore
	now     func() time.Time
}

func NewKnowledgeService(tenants interfaces.TenantStore) *KnowledgeService {
	return &KnowledgeService{tenants: tenants, now: time.Now}
}

// Get returns the knowledge record of a tenant.
func (s *KnowledgeService) Get(ctx context.Context, tenantID string) (*entities.Knowledge, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	k := t.Knowledge
	return &k, nil
}

// Put merges u into the tenant's knowledge record and stamps source and a
// fresh lastUpdated. Fields absent from u are kept, and so is the persona.
func (s *KnowledgeService) Put(ctx context.Context, tenantID string, u entities.KnowledgeUpdate, source entities.KnowledgeSource) (*entities.Tenant, error) {
	u.Source = &source
	t, err := s.tenants.Update(ctx, tenantID, func(t *entities.Tenant) error {
		now := s.now().UTC()
		t.Knowledge = t.Knowledge.Merge(u, now)
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("put knowledge for %s: %w", tenantID, err)
	}
	return t, nil
}
