package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cfinder/cfinder/backend/internal/services"
)

type DealHandler struct {
	deals *services.DealsService
}

func NewDealHandler(deals *services.DealsService) *DealHandler {
	return &DealHandler{deals: deals}
}

// GetDeals serves one curated feed category. Upstream failures with a
// cached fallback are invisible here; a cold failure surfaces as 500.
func (h *DealHandler) GetDeals(c *gin.Context) {
	category := c.DefaultQuery("type", services.FeedTopGrade)
	game := c.DefaultQuery("game", "pokemon")

	listings, err := h.deals.Deals(c.Request.Context(), category, game)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deals feed unavailable: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": listings})
}
