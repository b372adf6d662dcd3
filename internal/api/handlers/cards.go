package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cfinder/cfinder/backend/internal/services"
)

type CardHandler struct {
	catalog *services.JustTCGService
}

func NewCardHandler(catalog *services.JustTCGService) *CardHandler {
	return &CardHandler{catalog: catalog}
}

// SearchCards proxies a name query to the catalog API so the UI can offer
// cards to track.
func (h *CardHandler) SearchCards(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	if !h.catalog.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog API key not configured"})
		return
	}

	game := c.DefaultQuery("game", "pokemon")
	cards, err := h.catalog.SearchCards(c.Request.Context(), query, game, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cards})
}
