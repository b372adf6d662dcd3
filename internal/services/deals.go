package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cfinder/cfinder/backend/internal/cache"
	"github.com/cfinder/cfinder/backend/internal/ebay"
	"github.com/cfinder/cfinder/backend/internal/metrics"
	"github.com/cfinder/cfinder/backend/internal/models"
)

const (
	// The feed turns over fast (soonest-ending auctions), so its cache is
	// much shorter lived than the per-card result cache.
	dealsFeedTTL   = 2 * time.Minute
	dealsCacheSize = 16

	dealsFetchLimit  = 50
	dealsOutputLimit = 20
	// zeroPriceRetryCap bounds the per-item detail lookups spent recovering
	// current-bid prices for listings the search reports at $0.
	zeroPriceRetryCap = 20

	dealsRetryBackoff = 1 * time.Second
)

// Feed categories.
const (
	FeedTopGrade   = "10s"
	FeedBlackLabel = "blacklabel"
	FeedNearTop    = "9s"
)

var dealsFilter = "buyingOptions:{AUCTION},itemLocationCountry:US"

// Denylists applied to listing titles, case-insensitive. The black-label
// feed uses a stricter list to keep near-miss grades out.
var (
	dealsDenylist      = []string{"sleeves", "guards", "mystery", "topps"}
	blackLabelDenylist = []string{"psa 9", "psa 8", "cgc 9", "cgc 8", "topps"}
)

// BrowseAPI is the slice of the marketplace client the feed services use.
type BrowseAPI interface {
	Search(ctx context.Context, query string, limit int, sort, filter string) ([]ebay.ItemSummary, error)
	GetItem(ctx context.Context, itemID string) (*ebay.ItemDetail, error)
	InvalidateToken()
}

// DealsService serves the curated deals feed: a fixed query per
// (category, game) pair, post-filtered and re-priced as needed.
type DealsService struct {
	client BrowseAPI
	feeds  *cache.Resolver[[]models.DealListing]
	now    func() time.Time
}

func NewDealsService(client BrowseAPI) *DealsService {
	return &DealsService{
		client: client,
		feeds:  cache.New[[]models.DealListing]("deals_feed", dealsCacheSize, dealsFeedTTL),
		now:    time.Now,
	}
}

// feedQuery maps a feed category and game to its fixed curated query.
func feedQuery(category, game string) string {
	if game == "" {
		game = "pokemon"
	}
	switch category {
	case FeedBlackLabel:
		return fmt.Sprintf("graded %s cards pristine", game)
	case FeedNearTop:
		return fmt.Sprintf("graded 9 %s cards", game)
	default:
		return fmt.Sprintf("graded 10 %s cards", game)
	}
}

func titleBanned(category, title string) bool {
	t := strings.ToLower(title)
	list := dealsDenylist
	if category == FeedBlackLabel {
		list = blackLabelDenylist
	}
	for _, w := range list {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

// Deals returns the current feed for one category, served from cache when
// fresh and shared with any concurrent fetch for the same key. When the
// upstream fails, the last successfully fetched feed is served instead of
// an empty page; only a cold failure propagates.
func (s *DealsService) Deals(ctx context.Context, category, game string) ([]models.DealListing, error) {
	key := category + "|" + game
	listings, err := s.feeds.Do(key, func() ([]models.DealListing, error) {
		return s.fetchFeed(ctx, category, game)
	})
	if err != nil {
		if stale, ok := s.feeds.Last(key); ok {
			log.Printf("deals feed %s: serving stale results after error: %v", key, err)
			return stale, nil
		}
		return nil, err
	}
	metrics.DealsServedTotal.WithLabelValues(category).Inc()
	return listings, nil
}

// fetchFeed performs one full feed resolution: search, filter, re-price
// zero-price auctions, sort and truncate.
func (s *DealsService) fetchFeed(ctx context.Context, category, game string) ([]models.DealListing, error) {
	query := feedQuery(category, game)

	items, err := s.client.Search(ctx, query, dealsFetchLimit, "endingSoonest", dealsFilter)
	if errors.Is(err, ebay.ErrRateLimited) {
		// One bounded retry with a fresh token after a short backoff.
		select {
		case <-time.After(dealsRetryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.client.InvalidateToken()
		items, err = s.client.Search(ctx, query, dealsFetchLimit, "endingSoonest", dealsFilter)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	var good []models.DealListing
	var zero []pendingDeal

	for _, item := range items {
		end := item.EndTime()
		if end.IsZero() {
			continue
		}
		if titleBanned(category, item.Title) {
			continue
		}
		timeLeft := models.FormatTimeLeft(end, now)
		if timeLeft == "" {
			continue // ending in under two minutes
		}

		if price := item.Price.Amount(); price > 0 {
			good = append(good, models.DealListing{
				ItemID:   item.ItemID,
				Title:    item.Title,
				Price:    fmt.Sprintf("%.2f", price),
				Currency: currencyOr(item.Price.Currency, "USD"),
				TimeLeft: timeLeft,
				EndDate:  end,
				Link:     item.ItemWebURL,
				Image:    item.Image.ImageURL,
			})
		} else if len(zero) < zeroPriceRetryCap {
			// Live auctions often report $0 before the first bid; the item
			// detail endpoint knows the current bid.
			zero = append(zero, pendingDeal{item: item, end: end, timeLeft: timeLeft})
		}
	}

	good = append(good, s.retryZeroPriced(ctx, zero)...)

	sort.Slice(good, func(i, j int) bool {
		return good[i].EndDate.Before(good[j].EndDate)
	})
	if len(good) > dealsOutputLimit {
		good = good[:dealsOutputLimit]
	}
	return good, nil
}

type pendingDeal struct {
	item     ebay.ItemSummary
	end      time.Time
	timeLeft string
}

// retryZeroPriced runs the per-item detail lookups in parallel. Items whose
// detail lookup fails or still reports no positive price are dropped.
func (s *DealsService) retryZeroPriced(ctx context.Context, pending []pendingDeal) []models.DealListing {
	if len(pending) == 0 {
		return nil
	}

	recovered := make([]*models.DealListing, len(pending))
	var wg sync.WaitGroup
	for i := range pending {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := pending[i]
			metrics.DealsZeroPriceRetries.Inc()

			detail, err := s.client.GetItem(ctx, p.item.ItemID)
			if err != nil {
				log.Printf("deal item retry failed for %s: %v", p.item.ItemID, err)
				return
			}
			price := detail.CurrentBidPrice.Amount()
			if price <= 0 {
				price = detail.Price.Amount()
			}
			if price <= 0 {
				return
			}

			image := p.item.Image.ImageURL
			if image == "" {
				image = detail.Image.ImageURL
			}
			recovered[i] = &models.DealListing{
				ItemID:   p.item.ItemID,
				Title:    p.item.Title,
				Price:    fmt.Sprintf("%.2f", price),
				Currency: currencyOr(detail.CurrentBidPrice.Currency, "USD"),
				TimeLeft: p.timeLeft,
				EndDate:  p.end,
				Link:     p.item.ItemWebURL,
				Image:    image,
			}
		}(i)
	}
	wg.Wait()

	var out []models.DealListing
	for _, d := range recovered {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out
}

func currencyOr(c, fallback string) string {
	if c == "" {
		return fallback
	}
	return c
}
