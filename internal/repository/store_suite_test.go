package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taiyari/internal/entities"
	"taiyari/internal/interfaces"
)

// storeFactory returns empty stores backed by one fresh database.
type storeFactory func(t *testing.T) (interfaces.TenantStore, interfaces.TranscriptStore)

// runStoreSuite checks the behaviour every TenantStore and TranscriptStore
// implementation shares.
func runStoreSuite(t *testing.T, newStores storeFactory) {
	tenantCases := map[string]func(*testing.T, interfaces.TenantStore){
		"tenants crud":              testTenantsCRUD,
		"tenants update":            testTenantsUpdate,
		"tenants update rollback":   testTenantsUpdateErrorRollsBack,
		"tenants concurrent update": testTenantsConcurrentUpdates,
	}
	for name, fn := range tenantCases {
		t.Run(name, func(t *testing.T) {
			tenants, _ := newStores(t)
			fn(t, tenants)
		})
	}
	t.Run("transcripts", func(t *testing.T) {
		_, transcripts := newStores(t)
		testTranscripts(t, transcripts)
	})
}

func testTenantsCRUD(t *testing.T, repo interfaces.TenantStore) {
	ctx := context.Background()

	acme := &entities.Tenant{
		ID:        "acme",
		Persona:   entities.Persona{Name: "Acme", Language: "en"},
		Knowledge: entities.Knowledge{Content: "Our store opens at 9am.", Source: entities.SourceManual},
	}
	require.NoError(t, repo.Create(ctx, acme))
	require.NoError(t, repo.Create(ctx, &entities.Tenant{ID: "beta"}))

	err := repo.Create(ctx, &entities.Tenant{ID: "acme"})
	assert.True(t, errors.Is(err, entities.ErrTenantExists))

	got, err := repo.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Persona.Name)
	assert.Equal(t, "Our store opens at 9am.", got.Knowledge.Content)

	_, err = repo.Get(ctx, "ghost")
	assert.True(t, errors.Is(err, entities.ErrTenantNotFound))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "acme", list[0].ID)
	assert.Equal(t, "beta", list[1].ID)
}

func testTenantsUpdate(t *testing.T, repo interfaces.TenantStore) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &entities.Tenant{ID: "acme", Persona: entities.Persona{Name: "Acme"}}))

	updated, err := repo.Update(ctx, "acme", func(t *entities.Tenant) error {
		t.Knowledge.Content = "fresh"
		t.ID = "renamed"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", updated.ID)

	got, err := repo.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Knowledge.Content)
	assert.Equal(t, "Acme", got.Persona.Name)

	_, err = repo.Update(ctx, "ghost", func(*entities.Tenant) error { return nil })
	assert.True(t, errors.Is(err, entities.ErrTenantNotFound))
}

func testTenantsUpdateErrorRollsBack(t *testing.T, repo interfaces.TenantStore) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &entities.Tenant{ID: "acme", Knowledge: entities.Knowledge{Content: "keep"}}))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "acme", func(t *entities.Tenant) error {
		t.Knowledge.Content = "lost"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "keep", got.Knowledge.Content)
}

func testTenantsConcurrentUpdates(t *testing.T, repo interfaces.TenantStore) {
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &entities.Tenant{ID: "acme"}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "acme", func(t *entities.Tenant) error {
				t.Knowledge.Links = append(t.Knowledge.Links, entities.Link{Text: "x"})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, got.Knowledge.Links, 10)
}

func testTranscripts(t *testing.T, repo interfaces.TranscriptStore) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	save := func(id, tenant, conv string, at time.Time, n int) {
		msgs := make([]entities.Message, n)
		for i := range msgs {
			msgs[i] = entities.Message{Role: entities.RoleUser, Content: fmt.Sprintf("m%d", i)}
		}
		require.NoError(t, repo.Save(ctx, entities.Transcript{
			ID: id, TenantID: tenant, ConversationID: conv, Messages: msgs, Timestamp: at,
		}))
	}
	save("v1", "acme", "c1", base, 2)
	save("v2", "acme", "c1", base.Add(time.Minute), 4)
	save("v3", "acme", "c2", base.Add(2*time.Minute), 2)
	save("v4", "beta", "c1", base.Add(3*time.Minute), 2)

	list, err := repo.ListByTenant(ctx, "acme", 50)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "v3", list[0].ID)
	assert.Equal(t, "v2", list[1].ID)
	assert.Len(t, list[1].Messages, 4)
	assert.True(t, base.Add(time.Minute).Equal(list[1].Timestamp))
	assert.Equal(t, "acme", list[1].TenantID)

	limited, err := repo.ListByTenant(ctx, "acme", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "v3", limited[0].ID)

	n, err := repo.CountConversations(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	empty, err := repo.ListByTenant(ctx, "ghost", 50)
	require.NoError(t, err)
	assert.Empty(t, empty)

	err = repo.Save(ctx, entities.Transcript{ID: "v1", TenantID: "acme", ConversationID: "c9", Timestamp: base})
	assert.Error(t, err, "versions are never overwritten")
}
