package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taiyari/internal/entities"
	"taiyari/internal/usecases"
)

func (h *Handler) Login(c *gin.Context) {
	var loginReq struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, err := h.auth.Login(loginReq.Username, loginReq.Password)
	if err != nil {
		if errors.Is(err, usecases.ErrAdminNotConfigured) {
			h.log.Error().Msg("admin login attempted but ADMIN_PASSWORD_HASH is not set")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration missing"})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "username": loginReq.Username})
}

// GetStats returns platform statistics
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListClients(c *gin.Context) {
	tenants, err := h.dashboard.ListTenants(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	clients := make([]entities.Tenant, len(tenants))
	for i, t := range tenants {
		clients[i] = publicTenant(t)
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

func (h *Handler) CreateClient(c *gin.Context) {
	var req struct {
		ClientID string `json:"clientId"`
		entities.TenantUpdate
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.ClientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientId is required"})
		return
	}

	tenant, err := h.dashboard.CreateTenant(c.Request.Context(), req.ClientID, req.TenantUpdate)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Client created", "clientConfig": publicTenant(*tenant)})
}

func (h *Handler) GetClient(c *gin.Context) {
	tenant, err := h.dashboard.GetTenant(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientConfig": publicTenant(*tenant)})
}

func (h *Handler) UpdateClient(c *gin.Context) {
	var update entities.TenantUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	tenant, err := h.dashboard.UpdateTenant(c.Request.Context(), c.Param("clientId"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Client updated", "clientConfig": publicTenant(*tenant)})
}

func (h *Handler) ListConversations(c *gin.Context) {
	conversations, err := h.dashboard.ListConversations(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// RefreshClient scrapes the tenant's source page now.
func (h *Handler) RefreshClient(c *gin.Context) {
	if h.scraper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scraper disabled"})
		return
	}

	tenantID := c.Param("clientId")
	if err := h.scraper.RefreshTenant(c.Request.Context(), tenantID); err != nil {
		h.writeError(c, err)
		return
	}

	tenant, err := h.dashboard.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "clientConfig": publicTenant(*tenant)})
}
