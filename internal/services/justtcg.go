package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cfinder/cfinder/backend/internal/metrics"
)

const (
	justTCGBaseURL        = "https://api.justtcg.com/v1"
	justTCGDefaultTimeout = 10 * time.Second
)

// JustTCGService handles API calls to JustTCG for catalog pricing
type JustTCGService struct {
	client     *http.Client
	apiKey     string
	baseURL    string
	dailyLimit int

	// Rate limiting
	mu             sync.Mutex
	requestsToday  int
	lastRequestDay time.Time
}

// CatalogCard is one card entry from the catalog API, with its priced
// variants per condition.
type CatalogCard struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	SetName     string           `json:"setName"`
	TCGPlayerID string           `json:"tcgplayerId"`
	Variants    []CatalogVariant `json:"variants"`
}

// CatalogVariant is one condition/printing price row for a catalog card.
type CatalogVariant struct {
	Condition      string  `json:"condition"`
	LowPrice       float64 `json:"lowPrice"`
	ListingPrice   float64 `json:"listingPrice"`
	DirectLowPrice float64 `json:"directLowPrice"`
	Price          float64 `json:"price"`
}

// PriorityPrice picks the most trustworthy positive price field, preferring
// live listing lows over the generic market price. Unpriced variants map to
// +Inf so they lose every comparison.
func (v CatalogVariant) PriorityPrice() float64 {
	listing := v.LowPrice
	if listing <= 0 {
		listing = v.ListingPrice
	}
	if listing <= 0 {
		listing = v.DirectLowPrice
	}
	if listing > 0 {
		return listing
	}
	if v.Price > 0 {
		return v.Price
	}
	return math.Inf(1)
}

// NearMintPrice returns the cheapest priority price among this card's
// "near mint" variants. Other conditions are intentionally never used as a
// fallback: a card with no near-mint copies prices as +Inf, which forces
// the caller onto the auction source.
func (c CatalogCard) NearMintPrice() float64 {
	best := math.Inf(1)
	for _, v := range c.Variants {
		if !strings.Contains(strings.ToLower(v.Condition), "near mint") {
			continue
		}
		if p := v.PriorityPrice(); p < best {
			best = p
		}
	}
	return best
}

// ProductLink builds the storefront URL for this catalog entry.
func (c CatalogCard) ProductLink() string {
	id := c.TCGPlayerID
	if id == "" {
		id = c.ID
	}
	return "https://www.tcgplayer.com/product/" + id
}

type catalogListResponse struct {
	Data  []CatalogCard `json:"data"`
	Error string        `json:"error,omitempty"`
}

// NewJustTCGService creates a new JustTCG API service
func NewJustTCGService(apiKey string, dailyLimit int) *JustTCGService {
	if dailyLimit <= 0 {
		dailyLimit = 100 // Default free tier limit
	}
	metrics.CatalogQuotaLimit.Set(float64(dailyLimit))

	return &JustTCGService{
		client: &http.Client{
			Timeout: justTCGDefaultTimeout,
		},
		apiKey:     apiKey,
		baseURL:    justTCGBaseURL,
		dailyLimit: dailyLimit,
	}
}

// Configured reports whether an API key is present.
func (s *JustTCGService) Configured() bool {
	return s.apiKey != ""
}

// checkDailyLimit checks if we can make another request today
// Returns true if request can proceed, false if rate limited
func (s *JustTCGService) checkDailyLimit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	// Reset counter if new day
	if s.lastRequestDay.Before(today) {
		s.requestsToday = 0
		s.lastRequestDay = today
	}

	if s.requestsToday >= s.dailyLimit {
		return false
	}

	s.requestsToday++
	metrics.CatalogQuotaRemaining.Set(float64(s.dailyLimit - s.requestsToday))
	return true
}

// GetRequestsRemaining returns the number of requests remaining today
func (s *JustTCGService) GetRequestsRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if s.lastRequestDay.Before(today) {
		return s.dailyLimit
	}

	remaining := s.dailyLimit - s.requestsToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetDailyLimit returns the configured daily limit
func (s *JustTCGService) GetDailyLimit() int {
	return s.dailyLimit
}

// BatchLookup fetches catalog entries for a set of card IDs in one call.
func (s *JustTCGService) BatchLookup(ctx context.Context, cardIDs []string) ([]CatalogCard, error) {
	if len(cardIDs) == 0 {
		return nil, nil
	}
	if !s.checkDailyLimit() {
		return nil, fmt.Errorf("JustTCG daily rate limit exceeded")
	}

	type batchItem struct {
		CardID string `json:"cardId"`
	}
	payload := struct {
		Items []batchItem `json:"items"`
	}{}
	for _, id := range cardIDs {
		payload.Items = append(payload.Items, batchItem{CardID: id})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch payload: %w", err)
	}

	reqURL := fmt.Sprintf("%s/cards/batch", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("justtcg", "error").Inc()
		return nil, fmt.Errorf("failed to fetch batch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequestsTotal.WithLabelValues("justtcg", "error").Inc()
		return nil, fmt.Errorf("JustTCG API error: status %d", resp.StatusCode)
	}

	var listResp catalogListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("justtcg", "error").Inc()
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if listResp.Error != "" {
		metrics.UpstreamRequestsTotal.WithLabelValues("justtcg", "error").Inc()
		return nil, fmt.Errorf("JustTCG API error: %s", listResp.Error)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues("justtcg", "success").Inc()
	return listResp.Data, nil
}

// SearchCards searches the catalog by name.
func (s *JustTCGService) SearchCards(ctx context.Context, query, game string, limit int) ([]CatalogCard, error) {
	if !s.checkDailyLimit() {
		return nil, fmt.Errorf("JustTCG daily rate limit exceeded")
	}
	if game == "" {
		game = "pokemon"
	}
	if limit <= 0 {
		limit = 20
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("game", game)
	params.Set("limit", fmt.Sprintf("%d", limit))

	reqURL := fmt.Sprintf("%s/cards?%s", s.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("justtcg", "error").Inc()
		return nil, fmt.Errorf("failed to search cards: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequestsTotal.WithLabelValues("justtcg", "error").Inc()
		return nil, fmt.Errorf("JustTCG API error: status %d", resp.StatusCode)
	}

	var listResp catalogListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("justtcg", "error").Inc()
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if listResp.Error != "" {
		metrics.UpstreamRequestsTotal.WithLabelValues("justtcg", "error").Inc()
		return nil, fmt.Errorf("JustTCG API error: %s", listResp.Error)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues("justtcg", "success").Inc()
	return listResp.Data, nil
}
