package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cfinder/cfinder/backend/internal/models"
)

type ListHandler struct {
	db *gorm.DB
}

func NewListHandler(db *gorm.DB) *ListHandler {
	return &ListHandler{db: db}
}

// GetList returns the tracked list, optionally filtered by lifecycle status.
func (h *ListHandler) GetList(c *gin.Context) {
	query := h.db.Order("created_at ASC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var cards []models.TrackedCard
	if err := query.Find(&cards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cards})
}

// AddCard creates a tracked card from a search result.
func (h *ListHandler) AddCard(c *gin.Context) {
	var req models.AddCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	card := newTrackedCard(req)
	if err := h.db.Create(&card).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, card)
}

// UpdateCard applies grade/edition/set edits to a tracked card.
func (h *ListHandler) UpdateCard(c *gin.Context) {
	id := c.Param("id")

	var card models.TrackedCard
	if err := h.db.First(&card, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}

	var req models.UpdateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Grade != nil {
		card.Grade = *req.Grade
	}
	if req.IsFirstEdition != nil {
		card.IsFirstEdition = *req.IsFirstEdition
	}
	if req.SetName != nil {
		card.SetName = *req.SetName
	}

	if err := h.db.Save(&card).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, card)
}

// DeleteCard removes a card from the list.
func (h *ListHandler) DeleteCard(c *gin.Context) {
	id := c.Param("id")

	result := h.db.Delete(&models.TrackedCard{}, "id = ?", id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// PurchaseCard moves a tracked card into the collection with its purchase
// price. The transition is one-way.
func (h *ListHandler) PurchaseCard(c *gin.Context) {
	id := c.Param("id")

	var card models.TrackedCard
	if err := h.db.First(&card, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		return
	}

	if card.Status == models.StatusCollection {
		c.JSON(http.StatusConflict, gin.H{"error": "card is already in the collection"})
		return
	}

	var req models.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	card.Status = models.StatusCollection
	card.PurchasePrice = req.PurchasePrice
	if err := h.db.Save(&card).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, card)
}

// ExportList serializes the tracked list without price fields; prices are
// refreshed on import, not preserved.
func (h *ListHandler) ExportList(c *gin.Context) {
	var cards []models.TrackedCard
	if err := h.db.Order("created_at ASC").Find(&cards).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	exported := make([]models.ExportedCard, len(cards))
	for i := range cards {
		exported[i] = cards[i].Export()
	}

	c.Header("Content-Disposition", "attachment; filename=cfinder_list.json")
	c.JSON(http.StatusOK, exported)
}

// ImportList replaces the tracked list with the uploaded one. The body must
// be a JSON array in the export shape.
func (h *ListHandler) ImportList(c *gin.Context) {
	var imported []models.ExportedCard
	if err := c.ShouldBindJSON(&imported); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON array of cards"})
		return
	}

	cards := make([]models.TrackedCard, len(imported))
	for i, e := range imported {
		cards[i] = newTrackedCard(models.AddCardRequest{
			CardID:         e.CardID,
			Name:           e.Name,
			SetName:        e.SetName,
			Grade:          e.Grade,
			IsFirstEdition: e.IsFirstEdition,
			ImageURL:       e.ImageURL,
		})
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.TrackedCard{}).Error; err != nil {
			return err
		}
		if len(cards) == 0 {
			return nil
		}
		return tx.Create(&cards).Error
	})
	if err != nil {
		log.Printf("List import failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"imported": len(cards)})
}

// newTrackedCard fills defaults for a fresh list entry.
func newTrackedCard(req models.AddCardRequest) models.TrackedCard {
	grade := req.Grade
	if grade == "" {
		grade = models.GradeRaw
	}
	setName := req.SetName
	if setName == "" {
		setName = models.UnknownSet
	}
	return models.TrackedCard{
		ID:             uuid.NewString(),
		CardID:         req.CardID,
		Name:           req.Name,
		SetName:        setName,
		Grade:          grade,
		IsFirstEdition: req.IsFirstEdition,
		ImageURL:       req.ImageURL,
		Status:         models.StatusTracked,
	}
}
