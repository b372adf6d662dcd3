package ebay

import (
	"context"
	"log"
	"strings"

	"github.com/cfinder/cfinder/backend/internal/metrics"
	"github.com/cfinder/cfinder/backend/internal/models"
)

// rawExclusions suppresses graded-slab listings when searching for a raw
// card. Keychain minis show up constantly in Pokemon searches, so they are
// excluded too.
const rawExclusions = "-PSA -CGC -BGS -graded -slab -keychain"

// fixedPriceFilter restricts searches to fixed-price USD listings; auctions
// make poor "current buy price" signals for a single card.
const fixedPriceFilter = "priceCurrency:USD,buyingOptions:{FIXED_PRICE}"

// searchLimit keeps result pages tiny; with price-ascending sort the first
// hit is the cheapest match.
const searchLimit = 3

// Quote is the outcome of one auction price lookup. Found=false is the
// "not found" sentinel that tells the caller to lean on the other source.
type Quote struct {
	Found         bool    `json:"found"`
	Price         float64 `json:"price"`
	Link          string  `json:"link"`
	Title         string  `json:"title"`
	LightlyPlayed bool    `json:"lightly_played"`
}

// queryAttempt is one rung of the search ladder: the query text plus the
// quality tag attached to any result it produces.
type queryAttempt struct {
	query         string
	lightlyPlayed bool
}

// NormalizeSet cleans a set slug for keyword search: hyphens become spaces,
// the game-name token is stripped, and any promo set collapses to "promo"
// (promo set names rarely match listing titles verbatim).
func NormalizeSet(set string) string {
	if set == "" {
		return ""
	}
	clean := strings.ReplaceAll(set, "-", " ")
	clean = strings.ReplaceAll(clean, "pokemon", "")
	clean = strings.TrimSpace(clean)
	if clean != "" && strings.Contains(strings.ToLower(clean), "promo") {
		return "promo"
	}
	return clean
}

// buildQueryAttempts produces the ordered query ladder for one card. For
// raw cards the order encodes a condition preference: exact condition terms
// before abbreviations, before lightly-played fallbacks. Graded cards get a
// single query with the grade string.
func buildQueryAttempts(name, set, grade string, firstEdition bool) []queryAttempt {
	cleanSet := NormalizeSet(set)

	base := name
	if cleanSet != "" {
		base = name + " " + cleanSet
	}

	edition := ""
	if firstEdition {
		edition = " 1st edition"
	}

	if grade != models.GradeRaw {
		q := base + " " + grade + edition
		return []queryAttempt{{query: q}}
	}

	conditionTerms := []struct {
		term          string
		lightlyPlayed bool
	}{
		{"Near Mint", false},
		{"NM", false},
		{"Lightly Played", true},
		{"LP", true},
	}

	attempts := make([]queryAttempt, 0, len(conditionTerms))
	for _, ct := range conditionTerms {
		attempts = append(attempts, queryAttempt{
			query:         base + " " + ct.term + edition + " " + rawExclusions,
			lightlyPlayed: ct.lightlyPlayed,
		})
	}
	return attempts
}

// Searcher resolves a card's current cheapest fixed-price listing. It is an
// interface so the batch resolver can be tested with a fake marketplace.
type Searcher interface {
	Search(ctx context.Context, name, set, grade string, firstEdition bool) (Quote, error)
}

// SearchService runs the query ladder against the Browse API.
type SearchService struct {
	client *Client
}

func NewSearchService(client *Client) *SearchService {
	return &SearchService{client: client}
}

// Search tries the ladder strictly in order and short-circuits on the first
// attempt with results, taking its cheapest item. Attempts are never
// parallelized: a later rung finishing first could hand back a worse-
// condition match. Exhausting every attempt is not an error; it returns the
// not-found sentinel so the caller falls back to the catalog source.
func (s *SearchService) Search(ctx context.Context, name, set, grade string, firstEdition bool) (Quote, error) {
	attempts := buildQueryAttempts(name, set, grade, firstEdition)

	for i, attempt := range attempts {
		items, err := s.client.Search(ctx, attempt.query, searchLimit, "price", fixedPriceFilter)
		if err != nil {
			if ctx.Err() != nil {
				metrics.AuctionQueryAttempts.Observe(float64(i + 1))
				return Quote{}, ctx.Err()
			}
			log.Printf("ebay search attempt failed [%s]: %v", attempt.query, err)
			continue
		}
		if len(items) == 0 {
			continue
		}

		cheapest := items[0]
		price := cheapest.Price.Amount()
		if price <= 0 {
			continue
		}

		metrics.AuctionQueryAttempts.Observe(float64(i + 1))
		return Quote{
			Found:         true,
			Price:         price,
			Link:          cheapest.ItemWebURL,
			Title:         cheapest.Title,
			LightlyPlayed: attempt.lightlyPlayed,
		}, nil
	}

	metrics.AuctionQueryAttempts.Observe(float64(len(attempts)))
	return Quote{}, nil
}
