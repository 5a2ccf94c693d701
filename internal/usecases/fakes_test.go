package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"taiyari/internal/entities"
)

// memTenants keeps each tenant as a JSON document, like the SQL stores do.
type memTenants struct {
	mu      sync.Mutex
	docs    map[string][]byte
	listErr error
}

func newMemTenants(tenants ...entities.Tenant) *memTenants {
	m := &memTenants{docs: map[string][]byte{}}
	for i := range tenants {
		if err := m.Create(context.Background(), &tenants[i]); err != nil {
			panic(err)
		}
	}
	return m
}

func (m *memTenants) raw(id string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.docs[id]...)
}

func (m *memTenants) Get(_ context.Context, id string) (*entities.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, entities.ErrTenantNotFound)
	}
	var t entities.Tenant
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (m *memTenants) List(_ context.Context) ([]entities.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]entities.Tenant, 0, len(ids))
	for _, id := range ids {
		var t entities.Tenant
		if err := json.Unmarshal(m.docs[id], &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memTenants) Create(_ context.Context, t *entities.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[t.ID]; ok {
		return entities.ErrTenantExists
	}
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	m.docs[t.ID] = doc
	return nil
}

func (m *memTenants) Update(_ context.Context, id string, fn func(*entities.Tenant) error) (*entities.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", id, entities.ErrTenantNotFound)
	}
	var t entities.Tenant
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, err
	}
	if err := fn(&t); err != nil {
		return nil, err
	}
	t.ID = id
	next, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	m.docs[id] = next
	return &t, nil
}

type memTranscripts struct {
	mu    sync.Mutex
	saved []entities.Transcript
	err   error
}

func (m *memTranscripts) Save(_ context.Context, tr entities.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, tr)
	return nil
}

func (m *memTranscripts) ListByTenant(_ context.Context, tenantID string, limit int) ([]entities.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := map[string]entities.Transcript{}
	for _, tr := range m.saved {
		if tr.TenantID == tenantID {
			latest[tr.ConversationID] = tr
		}
	}
	out := make([]entities.Transcript, 0, len(latest))
	for _, tr := range latest {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTranscripts) CountConversations(_ context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for _, tr := range m.saved {
		if tenantID == "" || tr.TenantID == tenantID {
			seen[tr.TenantID+"/"+tr.ConversationID] = true
		}
	}
	return len(seen), nil
}

func (m *memTranscripts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type generateCall struct {
	instruction string
	history     []entities.Message
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []generateCall
	reply string
	err   error
	block bool // wait for the context to end
}

func (g *fakeGenerator) Generate(ctx context.Context, instruction string, history []entities.Message) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, generateCall{instruction: instruction, history: history})
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.reply, g.err
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fetchCall struct {
	url  string
	at   time.Time
	done time.Time
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	delay time.Duration
	calls []fetchCall
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	start := time.Now()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{url: url, at: start, done: time.Now()})
	if err := f.errs[url]; err != nil {
		return "", err
	}
	body, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("GET %s: status 404: %w", url, entities.ErrFetchFailed)
	}
	return body, nil
}

func (f *fakeFetcher) fetched() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

type fakeLocker struct {
	held     bool
	released int
}

func (l *fakeLocker) TryLock(_ context.Context, _ string, _ time.Duration) (func(), bool, error) {
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func() { l.held = false; l.released++ }, true, nil
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
