package services

import (
	"context"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cfinder/cfinder/backend/internal/cache"
	"github.com/cfinder/cfinder/backend/internal/ebay"
	"github.com/cfinder/cfinder/backend/internal/metrics"
	"github.com/cfinder/cfinder/backend/internal/models"
)

const (
	// auctionResultTTL bounds how long one (name, set, grade, edition)
	// lookup is reused before a fresh marketplace search.
	auctionResultTTL  = 10 * time.Minute
	auctionCacheSize  = 512
	catalogTimeout    = 8 * time.Second
	auctionTimeout    = 12 * time.Second
	minValidCatalogID = 5 // shorter ids are placeholders from hand-added cards
)

// AuctionResolver wraps the marketplace searcher with the shared result
// cache and in-flight deduplication. The key is the exact lookup tuple;
// normalization happens inside the searcher, not here, so two spellings of
// the same card are distinct entries.
type AuctionResolver struct {
	searcher ebay.Searcher
	results  *cache.Resolver[ebay.Quote]
}

func NewAuctionResolver(searcher ebay.Searcher) *AuctionResolver {
	return &AuctionResolver{
		searcher: searcher,
		results:  cache.New[ebay.Quote]("auction_results", auctionCacheSize, auctionResultTTL),
	}
}

// Resolve returns the cached or freshly searched quote for one card tuple.
func (r *AuctionResolver) Resolve(ctx context.Context, name, set, grade string, firstEdition bool) (ebay.Quote, error) {
	key := name + "|" + set + "|" + grade + "|" + strconv.FormatBool(firstEdition)
	return r.results.Do(key, func() (ebay.Quote, error) {
		return r.searcher.Search(ctx, name, set, grade, firstEdition)
	})
}

// CardPriceResult carries both source prices for one card plus the winner.
// Prices are two-decimal strings, nil when the source was unavailable.
type CardPriceResult struct {
	ID              string             `json:"id"`
	BestSource      models.PriceSource `json:"best_source"`
	BestPrice       *string            `json:"best_price"`
	BestLink        string             `json:"best_link"`
	CatalogPrice    *string            `json:"catalog_price"`
	CatalogLink     string             `json:"catalog_link"`
	AuctionPrice    *string            `json:"auction_price"`
	AuctionLink     string             `json:"auction_link"`
	AuctionDegraded bool               `json:"auction_degraded"`
}

// PriceBatchService resolves a batch of tracked cards against the catalog
// and the auction marketplace and picks a best source per card.
type PriceBatchService struct {
	catalog  *JustTCGService
	auctions *AuctionResolver
}

func NewPriceBatchService(catalog *JustTCGService, auctions *AuctionResolver) *PriceBatchService {
	return &PriceBatchService{
		catalog:  catalog,
		auctions: auctions,
	}
}

// PriceBatch resolves prices for every card. Each card's catalog and
// auction lookups run concurrently across the batch; a failed or timed-out
// lookup makes that one source unavailable for that one card and never
// fails the batch. With auctionOnly set the catalog is skipped entirely.
func (s *PriceBatchService) PriceBatch(ctx context.Context, cards []models.TrackedCard, auctionOnly bool) []CardPriceResult {
	start := time.Now()
	defer func() {
		metrics.PriceBatchDuration.Observe(time.Since(start).Seconds())
	}()

	var entries []CatalogCard
	if !auctionOnly && s.catalog.Configured() {
		entries = s.fetchCatalogEntries(ctx, cards)
	}

	results := make([]CardPriceResult, len(cards))
	var wg sync.WaitGroup
	for i := range cards {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.priceCard(ctx, &cards[i], entries, auctionOnly)
		}(i)
	}
	wg.Wait()

	for i := range results {
		switch results[i].BestSource {
		case models.SourceCatalog:
			metrics.PriceBatchCards.WithLabelValues("catalog").Inc()
		case models.SourceAuction:
			metrics.PriceBatchCards.WithLabelValues("auction").Inc()
		default:
			metrics.PriceBatchCards.WithLabelValues("none").Inc()
		}
	}
	return results
}

// fetchCatalogEntries does the exact-id batch lookup first, then falls back
// to one name search per still-unmatched raw card. Both steps are
// best-effort: errors shrink the entry pool rather than failing the batch.
func (s *PriceBatchService) fetchCatalogEntries(ctx context.Context, cards []models.TrackedCard) []CatalogCard {
	bctx, cancel := context.WithTimeout(ctx, catalogTimeout)
	defer cancel()

	var ids []string
	for i := range cards {
		if len(cards[i].CardID) >= minValidCatalogID {
			ids = append(ids, cards[i].CardID)
		}
	}

	var entries []CatalogCard
	if len(ids) > 0 {
		batch, err := s.catalog.BatchLookup(bctx, ids)
		if err != nil {
			log.Printf("catalog batch lookup failed: %v", err)
		} else {
			entries = batch
		}
	}

	byID := make(map[string]bool, len(entries))
	for i := range entries {
		byID[entries[i].ID] = true
	}

	// Unique names of raw cards the id lookup missed.
	missing := make(map[string]bool)
	var names []string
	for i := range cards {
		c := &cards[i]
		if c.Grade != models.GradeRaw || byID[c.CardID] || missing[c.Name] {
			continue
		}
		missing[c.Name] = true
		names = append(names, c.Name)
	}

	if len(names) == 0 {
		return entries
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			found, err := s.catalog.SearchCards(bctx, name, "pokemon", 20)
			if err != nil {
				log.Printf("catalog name search failed for %q: %v", name, err)
				return
			}
			mu.Lock()
			entries = append(entries, found...)
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	return entries
}

// matchCatalogEntry locates the catalog entry for a card: exact id first,
// then name-based candidates narrowed by set-name substring match (either
// direction), then exact name match.
func matchCatalogEntry(card *models.TrackedCard, entries []CatalogCard) *CatalogCard {
	for i := range entries {
		if card.CardID != "" && entries[i].ID == card.CardID {
			return &entries[i]
		}
	}
	if card.Name == "" {
		return nil
	}

	nameLower := strings.ToLower(card.Name)
	var candidates []*CatalogCard
	for i := range entries {
		if strings.Contains(strings.ToLower(entries[i].Name), nameLower) {
			candidates = append(candidates, &entries[i])
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	if userSet := strings.ToLower(card.SearchSet()); userSet != "" {
		for _, cand := range candidates {
			if cand.SetName == "" {
				continue
			}
			apiSet := strings.ToLower(cand.SetName)
			if strings.Contains(userSet, apiSet) || strings.Contains(apiSet, userSet) {
				return cand
			}
		}
	}
	for _, cand := range candidates {
		if strings.EqualFold(cand.Name, card.Name) {
			return cand
		}
	}
	return nil
}

// priceCard resolves one card. Unavailable prices are +Inf internally so
// the source decision is a plain comparison; the catalog wins ties.
func (s *PriceBatchService) priceCard(ctx context.Context, card *models.TrackedCard, entries []CatalogCard, auctionOnly bool) CardPriceResult {
	result := CardPriceResult{ID: card.ID}

	catalogPrice := math.Inf(1)
	// Catalog pricing only applies to raw cards; the catalog has no notion
	// of graded-slab prices.
	if !auctionOnly && card.Grade == models.GradeRaw {
		if match := matchCatalogEntry(card, entries); match != nil {
			if p := match.NearMintPrice(); !math.IsInf(p, 1) {
				catalogPrice = p
				result.CatalogLink = match.ProductLink()
			}
		}
	}

	auctionPrice := math.Inf(1)
	actx, cancel := context.WithTimeout(ctx, auctionTimeout)
	quote, err := s.auctions.Resolve(actx, card.Name, card.SearchSet(), card.Grade, card.IsFirstEdition)
	cancel()
	if err != nil {
		log.Printf("auction lookup dropped for %q: %v", card.Name, err)
	} else if quote.Found && quote.Price > 0 {
		auctionPrice = quote.Price
		result.AuctionLink = quote.Link
		result.AuctionDegraded = quote.LightlyPlayed
	}

	result.CatalogPrice = formatPrice(catalogPrice)
	result.AuctionPrice = formatPrice(auctionPrice)

	switch {
	case auctionPrice < catalogPrice:
		result.BestSource = models.SourceAuction
		result.BestPrice = result.AuctionPrice
		result.BestLink = result.AuctionLink
	case !math.IsInf(catalogPrice, 1):
		result.BestSource = models.SourceCatalog
		result.BestPrice = result.CatalogPrice
		result.BestLink = result.CatalogLink
	default:
		result.BestSource = models.SourceNone
	}
	return result
}

// formatPrice renders a finite price as a two-decimal string; +Inf (the
// unavailable sentinel) becomes nil.
func formatPrice(v float64) *string {
	if math.IsInf(v, 1) || v <= 0 {
		return nil
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	return &s
}

// ParsePrice converts a formatted price back to a float pointer for
// persistence; nil stays nil.
func ParsePrice(s *string) *float64 {
	if s == nil {
		return nil
	}
	v, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil
	}
	return &v
}
