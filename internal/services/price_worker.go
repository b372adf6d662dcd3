package services

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/cfinder/cfinder/backend/internal/metrics"
	"github.com/cfinder/cfinder/backend/internal/models"
)

const (
	// refreshStaleness is how old a card's prices can get before the
	// background worker refreshes them. The request-path refresh endpoint
	// has no staleness guard; this threshold only drives the worker.
	refreshStaleness = 24 * time.Hour

	workerInterval  = 15 * time.Minute
	workerBatchSize = 25
)

// PriceWorker periodically refreshes stale tracked cards through the batch
// resolver and persists the outcome.
type PriceWorker struct {
	batch *PriceBatchService
	db    *gorm.DB

	mu             sync.RWMutex
	lastRunTime    time.Time
	cardsRefreshed int
}

type WorkerStatus struct {
	LastRunTime    time.Time `json:"last_run_time"`
	NextRunTime    time.Time `json:"next_run_time"`
	CardsRefreshed int       `json:"cards_refreshed"`
	BatchSize      int       `json:"batch_size"`

	// Catalog quota info
	DailyLimit int `json:"daily_limit"`
	Remaining  int `json:"remaining"`
}

func NewPriceWorker(batch *PriceBatchService, db *gorm.DB) *PriceWorker {
	return &PriceWorker{
		batch: batch,
		db:    db,
	}
}

// Start runs the refresh loop until ctx is cancelled.
func (w *PriceWorker) Start(ctx context.Context) {
	log.Printf("Price worker started (interval %s, batch size %d)", workerInterval, workerBatchSize)

	ticker := time.NewTicker(workerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Price worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// runOnce refreshes the stalest batch of tracked cards.
func (w *PriceWorker) runOnce(ctx context.Context) {
	cutoff := time.Now().Add(-refreshStaleness)

	var cards []models.TrackedCard
	err := w.db.
		Where("price_updated_at IS NULL OR price_updated_at < ?", cutoff).
		Order("price_updated_at ASC").
		Limit(workerBatchSize).
		Find(&cards).Error
	if err != nil {
		log.Printf("Price worker: failed to load stale cards: %v", err)
		return
	}
	if len(cards) == 0 {
		return
	}

	log.Printf("Price worker: refreshing %d stale cards", len(cards))
	results := w.batch.PriceBatch(ctx, cards, false)
	updated := ApplyPriceResults(w.db, results, false)

	w.mu.Lock()
	w.lastRunTime = time.Now()
	w.cardsRefreshed += updated
	w.mu.Unlock()

	w.publishListMetrics()
}

// GetStatus reports worker and quota state for the status endpoint.
func (w *PriceWorker) GetStatus() WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := WorkerStatus{
		LastRunTime:    w.lastRunTime,
		CardsRefreshed: w.cardsRefreshed,
		BatchSize:      workerBatchSize,
	}
	if !w.lastRunTime.IsZero() {
		status.NextRunTime = w.lastRunTime.Add(workerInterval)
	}
	if w.batch.catalog != nil {
		status.DailyLimit = w.batch.catalog.GetDailyLimit()
		status.Remaining = w.batch.catalog.GetRequestsRemaining()
	}
	return status
}

// publishListMetrics refreshes the tracked-list gauges.
func (w *PriceWorker) publishListMetrics() {
	var count int64
	if err := w.db.Model(&models.TrackedCard{}).Count(&count).Error; err == nil {
		metrics.TrackedCardsTotal.Set(float64(count))
	}

	var total float64
	var cards []models.TrackedCard
	if err := w.db.Select("best_price").Find(&cards).Error; err == nil {
		for i := range cards {
			if cards[i].BestPrice != nil {
				total += *cards[i].BestPrice
			}
		}
		metrics.TrackedListValueUSD.Set(total)
	}
}

// ApplyPriceResults writes batch results back onto their tracked rows.
// Returns the number of rows updated. Failures are logged per row; a bad
// row never blocks the rest. An auction-only refresh leaves the catalog
// fields and the full-refresh timestamp untouched.
func ApplyPriceResults(db *gorm.DB, results []CardPriceResult, auctionOnly bool) int {
	now := time.Now()
	updated := 0
	for i := range results {
		r := &results[i]
		updates := map[string]interface{}{
			"best_source":        r.BestSource,
			"best_price":         ParsePrice(r.BestPrice),
			"best_link":          r.BestLink,
			"auction_price":      ParsePrice(r.AuctionPrice),
			"auction_link":       r.AuctionLink,
			"auction_degraded":   r.AuctionDegraded,
			"auction_checked_at": &now,
		}
		if !auctionOnly {
			updates["catalog_price"] = ParsePrice(r.CatalogPrice)
			updates["catalog_link"] = r.CatalogLink
			updates["price_updated_at"] = &now
		}
		if err := db.Model(&models.TrackedCard{}).Where("id = ?", r.ID).Updates(updates).Error; err != nil {
			log.Printf("Failed to persist prices for card %s: %v", r.ID, err)
			continue
		}
		updated++
	}
	return updated
}
