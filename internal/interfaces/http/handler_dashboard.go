package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// UpdateClientKnowledge lets a tenant replace its knowledge text from the
// client dashboard.
func (h *Handler) UpdateClientKnowledge(c *gin.Context) {
	var req struct {
		Content  *string `json:"content" binding:"required"`
		Password string  `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	if len(*req.Content) > MaxKnowledgeLength {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "content too large"})
		return
	}

	_, err := h.dashboard.UpdateClientKnowledge(c.Request.Context(), c.Param("clientId"), SanitizeString(*req.Content), req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Knowledge base updated"})
}
