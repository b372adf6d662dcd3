package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/cfinder/cfinder/backend/internal/ebay"
	"github.com/cfinder/cfinder/backend/internal/models"
)

// Auction scan grade categories.
const (
	ScanNearMint   = "NM"
	ScanTopGrade   = "10s"
	ScanBlackLabel = "BlackLabel"
	ScanNearTop    = "9s"
	ScanCustom     = "Custom"
)

// scanDelay spaces per-card searches. The Browse API budget is shared with
// the deals feed and the refresh path, so this bulk path stays strictly
// serial with a fixed gap rather than fanning out.
const scanDelay = 500 * time.Millisecond

const scanFilter = "buyingOptions:{AUCTION}"

// AuctionScanService finds the soonest-ending live auction per tracked
// card for one grade category.
type AuctionScanService struct {
	client BrowseAPI
	sleep  func(time.Duration)
	now    func() time.Time
}

func NewAuctionScanService(client BrowseAPI) *AuctionScanService {
	return &AuctionScanService{
		client: client,
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

// scanQuery builds the per-card query for a grade category. Raw searches
// carry slab exclusions; graded categories expand to the grading-company
// variants of the tier.
func scanQuery(card *models.TrackedCard, category, customGrade string) string {
	base := card.Name
	if set := ebay.NormalizeSet(card.SearchSet()); set != "" {
		base = card.Name + " " + set
	}

	var gradeQuery string
	switch category {
	case ScanNearMint:
		gradeQuery = "Near Mint -PSA -CGC -BGS -TAG -graded -slab"
	case ScanTopGrade:
		gradeQuery = "(PSA 10, CGC 10, BGS 10, TAG 10)"
	case ScanBlackLabel:
		gradeQuery = "(BGS 10 Black Label, CGC 10 Pristine)"
	case ScanNearTop:
		gradeQuery = "(PSA 9, CGC 9, BGS 9, TAG 9)"
	case ScanCustom:
		gradeQuery = fmt.Sprintf("(PSA %s, CGC %s, BGS %s)", customGrade, customGrade, customGrade)
	}
	if gradeQuery == "" {
		return base
	}
	return base + " " + gradeQuery
}

// Scan processes cards one at a time with a fixed inter-card delay. A
// failed search skips that card; it never aborts the scan.
func (s *AuctionScanService) Scan(ctx context.Context, cards []models.TrackedCard, category, customGrade string) []models.AuctionListing {
	var auctions []models.AuctionListing

	for i := range cards {
		card := &cards[i]
		query := scanQuery(card, category, customGrade)

		items, err := s.client.Search(ctx, query, 10, "", scanFilter)
		if err != nil {
			log.Printf("auction scan failed for %q: %v", card.Name, err)
		} else if listing := s.soonestEnding(card, items); listing != nil {
			auctions = append(auctions, *listing)
		}

		if i < len(cards)-1 {
			s.sleep(scanDelay)
		}
	}
	return auctions
}

// soonestEnding picks the auction ending first among the results. The
// Browse API has no ending-soonest sort on this path, so sort locally.
func (s *AuctionScanService) soonestEnding(card *models.TrackedCard, items []ebay.ItemSummary) *models.AuctionListing {
	dated := make([]ebay.ItemSummary, 0, len(items))
	for _, item := range items {
		if !item.EndTime().IsZero() {
			dated = append(dated, item)
		}
	}
	if len(dated) == 0 {
		return nil
	}
	sort.Slice(dated, func(i, j int) bool {
		return dated[i].EndTime().Before(dated[j].EndTime())
	})

	first := dated[0]
	image := first.Image.ImageURL
	if image == "" {
		image = card.ImageURL
	}
	return &models.AuctionListing{
		CardName: card.Name,
		Title:    first.Title,
		Price:    fmt.Sprintf("%.2f", first.Price.Amount()),
		TimeLeft: models.FormatCountdown(first.EndTime(), s.now()),
		Link:     first.ItemWebURL,
		Image:    image,
	}
}
