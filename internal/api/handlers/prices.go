package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cfinder/cfinder/backend/internal/models"
	"github.com/cfinder/cfinder/backend/internal/services"
)

type PriceHandler struct {
	batch   *services.PriceBatchService
	worker  *services.PriceWorker
	catalog *services.JustTCGService
	db      *gorm.DB
}

func NewPriceHandler(batch *services.PriceBatchService, worker *services.PriceWorker, catalog *services.JustTCGService, db *gorm.DB) *PriceHandler {
	return &PriceHandler{
		batch:   batch,
		worker:  worker,
		catalog: catalog,
		db:      db,
	}
}

type refreshRequest struct {
	IDs         []string `json:"ids"`
	AuctionOnly bool     `json:"auction_only"`
}

// RefreshPrices resolves fresh prices for the tracked list (or a subset)
// and persists them. Individual card failures degrade to "source
// unavailable"; only missing credentials fail the request outright.
func (h *PriceHandler) RefreshPrices(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if !req.AuctionOnly && !h.catalog.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog API key not configured"})
		return
	}

	query := h.db.Order("created_at ASC")
	if len(req.IDs) > 0 {
		query = query.Where("id IN ?", req.IDs)
	}

	var cards []models.TrackedCard
	if err := query.Find(&cards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(cards) == 0 {
		c.JSON(http.StatusOK, gin.H{"data": []services.CardPriceResult{}})
		return
	}

	results := h.batch.PriceBatch(c.Request.Context(), cards, req.AuctionOnly)
	services.ApplyPriceResults(h.db, results, req.AuctionOnly)

	c.JSON(http.StatusOK, gin.H{"data": results})
}

// GetPriceStatus reports worker and catalog quota state.
func (h *PriceHandler) GetPriceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.worker.GetStatus())
}
