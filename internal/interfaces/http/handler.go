package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"taiyari/internal/entities"
	"taiyari/internal/logging"
	"taiyari/internal/usecases"
)

// Deps are the collaborators the routes need. Scraper, MetricsHandler and
// HealthCheck are optional.
type Deps struct {
	Chat           *usecases.ChatService
	Dashboard      *usecases.DashboardUsecase
	Auth           *usecases.AuthUsecase
	Scraper        *usecases.ScraperService
	Middleware     *Middleware
	ChatRate       rate.Limit
	ChatBurst      int
	MetricsHandler http.Handler
	HealthCheck    func(ctx context.Context) error
	Log            zerolog.Logger
}

type Handler struct {
	chat        *usecases.ChatService
	dashboard   *usecases.DashboardUsecase
	auth        *usecases.AuthUsecase
	scraper     *usecases.ScraperService
	healthCheck func(ctx context.Context) error
	log         zerolog.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		chat:        d.Chat,
		dashboard:   d.Dashboard,
		auth:        d.Auth,
		scraper:     d.Scraper,
		healthCheck: d.HealthCheck,
		log:         logging.Component(d.Log, "http"),
	}
}

func SetupRoutes(r *gin.Engine, d Deps) {
	h := NewHandler(d)
	middleware := d.Middleware

	// Apply Security Middleware
	r.Use(SecurityHeaders())
	r.Use(RequestSizeLimiter(maxRequestBodyBytes))
	r.Use(middleware.CORSMiddleware())

	// Public Routes
	r.GET("/health", h.Health)
	if d.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(d.MetricsHandler))
	}
	r.POST("/api/chat/:clientId", middleware.RateLimitPerTenant(d.ChatRate, d.ChatBurst), h.Chat)
	r.POST("/api/client/:clientId/update-rag", h.UpdateClientKnowledge)
	r.POST("/api/admin/login", h.Login)

	// Admin-only Routes
	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthRequired())
	admin.Use(middleware.AdminRequired())
	{
		admin.GET("/stats", h.GetStats)
		admin.GET("/clients", h.ListClients)
		admin.POST("/clients", h.CreateClient)
		admin.GET("/clients/:clientId", h.GetClient)
		admin.PUT("/clients/:clientId", h.UpdateClient)
		admin.GET("/clients/:clientId/conversations", h.ListConversations)
		admin.POST("/clients/:clientId/refresh", h.RefreshClient)
	}
}

type chatMessage struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required,max=10000"`
}

type chatRequest struct {
	Messages       []chatMessage `json:"messages" binding:"required,min=1,max=100,dive"`
	ConversationID string        `json:"conversationId" binding:"max=128"`
}

// Chat answers a widget message for :clientId.
func (h *Handler) Chat(c *gin.Context) {
	tenantID := c.Param("clientId")
	if !ValidSlug(tenantID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client id"})
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: messages must be a non-empty list of {role, content}"})
		return
	}

	history := make([]entities.Message, len(req.Messages))
	for i, m := range req.Messages {
		history[i] = entities.Message{Role: m.Role, Content: SanitizeString(m.Content)}
	}

	reply, err := h.chat.Handle(c.Request.Context(), tenantID, history, SanitizeString(req.ConversationID))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *Handler) Health(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if h.healthCheck != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.healthCheck(ctx); err != nil {
			h.log.Warn().Err(err).Msg("health check failed")
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":    status,
		"service":   "taiyari",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps domain errors to a status. Unknown errors are logged and
// answered with a generic body.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entities.ErrTenantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
	case errors.Is(err, entities.ErrTenantExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Client already exists"})
	case errors.Is(err, entities.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, usecases.ErrInvalidTenantID),
		errors.Is(err, usecases.ErrEmptyHistory),
		errors.Is(err, usecases.ErrNoSourceURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, entities.ErrFetchFailed), errors.Is(err, entities.ErrExtractionEmpty):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Refresh failed, existing knowledge kept"})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// publicTenant hides the client password hash.
func publicTenant(t entities.Tenant) entities.Tenant {
	t.ClientPasswordHash = ""
	return t
}
