package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cfinder/cfinder/backend/internal/models"
	"github.com/cfinder/cfinder/backend/internal/services"
)

type AuctionHandler struct {
	scan *services.AuctionScanService
	db   *gorm.DB
}

func NewAuctionHandler(scan *services.AuctionScanService, db *gorm.DB) *AuctionHandler {
	return &AuctionHandler{scan: scan, db: db}
}

type auctionScanRequest struct {
	IDs         []string `json:"ids"`
	Category    string   `json:"category" binding:"required"`
	CustomGrade string   `json:"custom_grade"`
}

// ScanAuctions finds the soonest-ending live auction per tracked card for
// one grade category. Cards are scanned sequentially to protect the shared
// marketplace call budget, so large lists take a while.
func (h *AuctionHandler) ScanAuctions(c *gin.Context) {
	var req auctionScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
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

	auctions := h.scan.Scan(c.Request.Context(), cards, req.Category, req.CustomGrade)
	c.JSON(http.StatusOK, gin.H{"data": auctions})
}
