package usecases

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taiyari/internal/entities"
)

func TestKnowledgeService_PutMergesAndStamps(t *testing.T) {
	store := newMemTenants(entities.Tenant{
		ID:      "acme",
		Persona: entities.Persona{Name: "Acme", Language: "en"},
		Knowledge: entities.Knowledge{
			Content:       "old",
			AutoUpdateURL: "https://acme.example",
			ScrapeType:    entities.ModeMenu,
			Source:        entities.SourceManual,
		},
	})
	svc := NewKnowledgeService(store)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	tenant, err := svc.Put(context.Background(), "acme", entities.KnowledgeUpdate{Content: strPtr("new")}, entities.SourceAutoScraping)
	require.NoError(t, err)

	assert.Equal(t, "new", tenant.Knowledge.Content)
	assert.Equal(t, entities.SourceAutoScraping, tenant.Knowledge.Source)
	assert.Equal(t, now, tenant.Knowledge.LastUpdated)
	assert.Equal(t, "https://acme.example", tenant.Knowledge.AutoUpdateURL)
	assert.Equal(t, entities.ModeMenu, tenant.Knowledge.ScrapeType)
	assert.Equal(t, "Acme", tenant.Persona.Name)

	k, err := svc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "new", k.Content)
}

func TestKnowledgeService_PutStampsFreshTimestamp(t *testing.T) {
	store := newMemTenants(entities.Tenant{ID: "acme"})
	svc := NewKnowledgeService(store)

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }
	_, err := svc.Put(context.Background(), "acme", entities.KnowledgeUpdate{}, entities.SourceManual)
	require.NoError(t, err)

	second := first.Add(time.Hour)
	svc.now = func() time.Time { return second }
	tenant, err := svc.Put(context.Background(), "acme", entities.KnowledgeUpdate{}, entities.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, second, tenant.Knowledge.LastUpdated)
}

func TestKnowledgeService_PutCapsContent(t *testing.T) {
	store := newMemTenants(entities.Tenant{ID: "acme"})
	svc := NewKnowledgeService(store)

	huge := strings.Repeat("a", entities.MaxKnowledgeChars*3)
	tenant, err := svc.Put(context.Background(), "acme", entities.KnowledgeUpdate{Content: &huge}, entities.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, entities.MaxKnowledgeChars, utf8.RuneCountInString(tenant.Knowledge.Content))
}

func TestKnowledgeService_UnknownTenant(t *testing.T) {
	svc := NewKnowledgeService(newMemTenants())

	_, err := svc.Get(context.Background(), "ghost")
	assert.True(t, errors.Is(err, entities.ErrTenantNotFound))

	_, err = svc.Put(context.Background(), "ghost", entities.KnowledgeUpdate{Content: strPtr("x")}, entities.SourceManual)
	assert.True(t, errors.Is(err, entities.ErrTenantNotFound))
}
