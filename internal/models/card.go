package models

import (
	"strings"
	"time"
)

// GradeRaw is the sentinel grade for ungraded cards. Any other grade value
// ("PSA 10", "CGC 9", ...) is treated as a graded tier and passed through
// to marketplace queries verbatim.
const GradeRaw = "Raw (Ungraded)"

// UnknownSet is the placeholder set name used when a search result carries
// no set information. It is never forwarded to marketplace queries.
const UnknownSet = "Unknown Set"

// PriceSource identifies which upstream produced the winning price.
type PriceSource string

const (
	SourceNone    PriceSource = ""
	SourceCatalog PriceSource = "TCGPlayer"
	SourceAuction PriceSource = "eBay"
)

// CardStatus is the lifecycle state of a tracked card.
type CardStatus string

const (
	StatusTracked    CardStatus = "tracked"
	StatusCollection CardStatus = "collection"
)

// TrackedCard is a card the user is watching. Price fields are refreshed by
// the price pipeline; everything else is user input from search results.
type TrackedCard struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	CardID         string     `json:"card_id" gorm:"index"` // catalog id, may be empty/unverified
	Name           string     `json:"name" gorm:"not null;index"`
	SetName        string     `json:"set_name"`
	Grade          string     `json:"grade" gorm:"default:'Raw (Ungraded)'"`
	IsFirstEdition bool       `json:"is_first_edition"`
	ImageURL       string     `json:"image_url"`
	Status         CardStatus `json:"status" gorm:"default:'tracked';index"`
	PurchasePrice  float64    `json:"purchase_price"`

	// Last resolved prices. Both sides are kept even when only one wins so
	// the UI can show the losing listing for transparency.
	BestSource       PriceSource `json:"best_source"`
	BestPrice        *float64    `json:"best_price"`
	BestLink         string      `json:"best_link"`
	CatalogPrice     *float64    `json:"catalog_price"`
	CatalogLink      string      `json:"catalog_link"`
	AuctionPrice     *float64    `json:"auction_price"`
	AuctionLink      string      `json:"auction_link"`
	AuctionDegraded  bool        `json:"auction_degraded"`
	PriceUpdatedAt   *time.Time  `json:"price_updated_at"`
	AuctionCheckedAt *time.Time  `json:"auction_checked_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchSet returns the set name to use in marketplace queries, or "" when
// the card has no usable set ("Unknown Set" placeholder or blank).
func (c *TrackedCard) SearchSet() string {
	if c.SetName == "" || strings.Contains(strings.ToLower(c.SetName), "unknown") {
		return ""
	}
	return strings.TrimSpace(c.SetName)
}

type AddCardRequest struct {
	CardID         string `json:"card_id"`
	Name           string `json:"name" binding:"required"`
	SetName        string `json:"set_name"`
	Grade          string `json:"grade"`
	IsFirstEdition bool   `json:"is_first_edition"`
	ImageURL       string `json:"image_url"`
}

type UpdateCardRequest struct {
	Grade          *string `json:"grade"`
	IsFirstEdition *bool   `json:"is_first_edition"`
	SetName        *string `json:"set_name"`
}

type PurchaseRequest struct {
	PurchasePrice float64 `json:"purchase_price" binding:"required"`
}

// ExportedCard is the import/export shape. Price fields are deliberately
// omitted: an imported list gets fresh prices on its next refresh.
type ExportedCard struct {
	CardID         string `json:"card_id"`
	Name           string `json:"name"`
	SetName        string `json:"set_name"`
	Grade          string `json:"grade"`
	IsFirstEdition bool   `json:"is_first_edition"`
	ImageURL       string `json:"image_url,omitempty"`
}

// Export strips a tracked card down to its importable identity.
func (c *TrackedCard) Export() ExportedCard {
	return ExportedCard{
		CardID:         c.CardID,
		Name:           c.Name,
		SetName:        c.SetName,
		Grade:          c.Grade,
		IsFirstEdition: c.IsFirstEdition,
		ImageURL:       c.ImageURL,
	}
}
