package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"taiyari/internal/entities"
	"taiyari/internal/infrastructure"
	"taiyari/internal/metrics"
	"taiyari/internal/repository"
	"taiyari/internal/usecases"
)

const testSecret = "test-secret"

type stubGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (g *stubGenerator) Generate(context.Context, string, []entities.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.reply, g.err
}

type stubFetcher struct {
	pages map[string]string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (string, error) {
	if body, ok := f.pages[url]; ok {
		return body, nil
	}
	return "", entities.ErrFetchFailed
}

type testServer struct {
	router  *gin.Engine
	gen     *stubGenerator
	fetcher *stubFetcher
	tenants *repository.SQLiteTenantRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := infrastructure.NewSQLiteClient(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	tenants := repository.NewSQLiteTenantRepository(db.DB)
	transcripts := repository.NewSQLiteTranscriptRepository(db.DB)
	knowledge := usecases.NewKnowledgeService(tenants)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := zerolog.Nop()

	gen := &stubGenerator{reply: "We open at 9am."}
	fetcher := &stubFetcher{pages: map[string]string{}}
	prompts := usecases.NewPromptBuilder("fr")
	chat := usecases.NewChatService(tenants, transcripts, gen, prompts, usecases.ChatOptions{}, log, m)
	scraper, err := usecases.NewScraperService(tenants, knowledge, fetcher, usecases.NewExtractor(), nil, usecases.ScraperOptions{}, log, m)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("adminpw"), bcrypt.MinCost)
	require.NoError(t, err)

	r := gin.New()
	SetupRoutes(r, Deps{
		Chat:           chat,
		Dashboard:      usecases.NewDashboardUsecase(tenants, transcripts, knowledge),
		Auth:           usecases.NewAuthUsecase("admin", string(hash), testSecret),
		Scraper:        scraper,
		Middleware:     NewMiddleware(testSecret),
		ChatRate:       rate.Every(time.Minute),
		ChatBurst:      3,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HealthCheck:    db.Ping,
		Log:            log,
	})
	return &testServer{router: r, gen: gen, fetcher: fetcher, tenants: tenants}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api/admin/login", "", gin.H{"username": "admin", "password": "adminpw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (s *testServer) seed(t *testing.T, tenant entities.Tenant) {
	t.Helper()
	require.NoError(t, s.tenants.Create(context.Background(), &tenant))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestChat(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, entities.Tenant{
		ID:        "acme",
		Persona:   entities.Persona{Name: "Acme", Language: "en"},
		Knowledge: entities.Knowledge{Content: "Our store opens at 9am. We sell shoes and hats."},
	})

	w := s.do(http.MethodPost, "/api/chat/acme", "", gin.H{
		"messages":       []gin.H{{"role": "user", "content": "what time do you open"}},
		"conversationId": "conv-1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "We open at 9am.", body["message"])
	assert.Equal(t, "acme", body["clientId"])
	assert.Equal(t, true, body["ragUsed"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestChat_Errors(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, entities.Tenant{ID: "acme"})
	s.seed(t, entities.Tenant{ID: "limits"})

	tooMany := make([]gin.H, 101)
	for i := range tooMany {
		tooMany[i] = gin.H{"role": "user", "content": "hi"}
	}

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown tenant", "/api/chat/ghost", gin.H{"messages": []gin.H{{"role": "user", "content": "hi"}}}, http.StatusNotFound},
		{"no messages", "/api/chat/acme", gin.H{"messages": []gin.H{}}, http.StatusBadRequest},
		{"bad role", "/api/chat/acme", gin.H{"messages": []gin.H{{"role": "system", "content": "hi"}}}, http.StatusBadRequest},
		{"bad tenant id", "/api/chat/a.b", gin.H{"messages": []gin.H{{"role": "user", "content": "hi"}}}, http.StatusBadRequest},
		{"too many messages", "/api/chat/limits", gin.H{"messages": tooMany}, http.StatusBadRequest},
		{"message too long", "/api/chat/limits", gin.H{"messages": []gin.H{{"role": "user", "content": strings.Repeat("a", 10001)}}}, http.StatusBadRequest},
		{"conversation id too long", "/api/chat/limits", gin.H{"messages": []gin.H{{"role": "user", "content": "hi"}}, "conversationId": strings.Repeat("c", 129)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
	assert.Zero(t, s.gen.calls)
}

func TestChat_GenerationFailureIsHidden(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, entities.Tenant{ID: "acme", Persona: entities.Persona{Language: "en"}})
	s.gen.err = errors.New("upstream exploded: secret detail")

	w := s.do(http.MethodPost, "/api/chat/acme", "", gin.H{"messages": []gin.H{{"role": "user", "content": "hi"}}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret detail")
	assert.Equal(t, usecases.NewPromptBuilder("fr").Fallback("en"), decode(t, w)["message"])
}

func TestChat_RateLimitPerTenant(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, entities.Tenant{ID: "acme"})
	s.seed(t, entities.Tenant{ID: "beta"})
	msg := gin.H{"messages": []gin.H{{"role": "user", "content": "hi"}}}

	var last int
	for i := 0; i < 10; i++ {
		last = s.do(http.MethodPost, "/api/chat/acme", "", msg).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
	assert.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/chat/beta", "", msg).Code)
}

func TestAdmin_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/admin/clients", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/admin/clients", "garbage", nil).Code)

	w := s.do(http.MethodPost, "/api/admin/login", "", gin.H{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_ClientLifecycle(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	w := s.do(http.MethodPost, "/api/admin/clients", token, gin.H{
		"clientId":       "acme",
		"config":         gin.H{"name": "Acme", "language": "en"},
		"clientPassword": "pw",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "clientPasswordHash")

	w = s.do(http.MethodPost, "/api/admin/clients", token, gin.H{"clientId": "acme"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/admin/clients", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/admin/clients/acme", token, gin.H{"config": gin.H{"primaryColor": "#111111"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/admin/clients/acme", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cfg := decode(t, w)["clientConfig"].(map[string]any)["config"].(map[string]any)
	assert.Equal(t, "Acme", cfg["name"])
	assert.Equal(t, "#111111", cfg["primaryColor"])

	w = s.do(http.MethodGet, "/api/admin/clients/ghost", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/admin/clients", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["clients"], 1)

	w = s.do(http.MethodGet, "/api/admin/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.Equal(t, 1.0, stats["totalClients"])
	assert.Equal(t, 1.0, stats["activeClients"])
}

func TestAdmin_Conversations(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)
	s.seed(t, entities.Tenant{ID: "acme"})

	for _, conv := range []string{"c-1", "c-2"} {
		w := s.do(http.MethodPost, "/api/chat/acme", "", gin.H{
			"messages":       []gin.H{{"role": "user", "content": "hello"}},
			"conversationId": conv,
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := s.do(http.MethodGet, "/api/admin/clients/acme/conversations", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["conversations"], 2)
}

func TestAdmin_Refresh(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)
	s.seed(t, entities.Tenant{ID: "acme", Knowledge: entities.Knowledge{
		Content:       "stale",
		AutoUpdateURL: "https://acme.example/",
	}})
	s.seed(t, entities.Tenant{ID: "broken", Knowledge: entities.Knowledge{
		Content:       "keep me",
		AutoUpdateURL: "https://broken.example/",
	}})
	s.fetcher.pages["https://acme.example/"] = "<html><body><p>Now open on Sundays.</p></body></html>"

	w := s.do(http.MethodPost, "/api/admin/clients/acme/refresh", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Now open on Sundays.")
	assert.Contains(t, w.Body.String(), `"source":"auto-scraping"`)

	w = s.do(http.MethodPost, "/api/admin/clients/broken/refresh", token, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	tenant, err := s.tenants.Get(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, "keep me", tenant.Knowledge.Content)
}

func TestClientUpdateKnowledge(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)
	w := s.do(http.MethodPost, "/api/admin/clients", token, gin.H{"clientId": "acme", "clientPassword": "pw"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/api/client/acme/update-rag", "", gin.H{"content": "new text", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/client/acme/update-rag", "", gin.H{"password": "pw"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/client/acme/update-rag", "", gin.H{"content": "new text", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	tenant, err := s.tenants.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "new text", tenant.Knowledge.Content)
	assert.Equal(t, entities.SourceManual, tenant.Knowledge.Source)

	w = s.do(http.MethodPost, "/api/client/ghost/update-rag", "", gin.H{"content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "taiyari", body["service"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)

	s.seed(t, entities.Tenant{ID: "acme"})
	s.do(http.MethodPost, "/api/chat/acme", "", gin.H{"messages": []gin.H{{"role": "user", "content": "hi"}}})

	w = s.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `taiyari_chat_requests_total{outcome="ok"} 1`))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodOptions, "/api/chat/acme", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
