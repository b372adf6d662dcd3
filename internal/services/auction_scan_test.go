package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cfinder/cfinder/backend/internal/ebay"
	"github.com/cfinder/cfinder/backend/internal/models"
)

func TestScanQuery(t *testing.T) {
	card := rawCard("t1", "base1-4", "Charizard", "base-set")

	tests := []struct {
		name        string
		category    string
		customGrade string
		want        string
	}{
		{"near mint excludes slabs", ScanNearMint, "", "Charizard base set Near Mint -PSA -CGC -BGS -TAG -graded -slab"},
		{"top grade variants", ScanTopGrade, "", "Charizard base set (PSA 10, CGC 10, BGS 10, TAG 10)"},
		{"black label", ScanBlackLabel, "", "Charizard base set (BGS 10 Black Label, CGC 10 Pristine)"},
		{"near top", ScanNearTop, "", "Charizard base set (PSA 9, CGC 9, BGS 9, TAG 9)"},
		{"custom grade", ScanCustom, "8", "Charizard base set (PSA 8, CGC 8, BGS 8)"},
		{"unknown category falls back to base", "whatever", "", "Charizard base set"},
	}
	for _, tt := range tests {
		if got := scanQuery(&card, tt.category, tt.customGrade); got != tt.want {
			t.Errorf("%s: scanQuery = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestScanQueryOmitsUnknownSet(t *testing.T) {
	card := rawCard("t1", "x", "Mew", "")
	card.SetName = models.UnknownSet
	got := scanQuery(&card, ScanTopGrade, "")
	if strings.Contains(strings.ToLower(got), "unknown") {
		t.Errorf("placeholder set leaked into query: %q", got)
	}
	if !strings.HasPrefix(got, "Mew (PSA 10") {
		t.Errorf("query = %q", got)
	}
}

func TestScanSequentialWithDelay(t *testing.T) {
	browse := &fakeBrowse{searchFn: func(call int, query string) ([]ebay.ItemSummary, error) {
		return []ebay.ItemSummary{
			auctionItem("i", query, "10.00", time.Hour),
		}, nil
	}}

	var slept []time.Duration
	svc := NewAuctionScanService(browse)
	svc.sleep = func(d time.Duration) { slept = append(slept, d) }
	svc.now = func() time.Time { return dealsNow }

	cards := []models.TrackedCard{
		rawCard("t1", "a", "Charizard", "base-set"),
		rawCard("t2", "b", "Blastoise", "base-set"),
		rawCard("t3", "c", "Venusaur", "base-set"),
	}
	listings := svc.Scan(context.Background(), cards, ScanTopGrade, "")

	if len(listings) != 3 {
		t.Fatalf("expected a listing per card, got %d", len(listings))
	}
	for i, want := range []string{"Charizard", "Blastoise", "Venusaur"} {
		if listings[i].CardName != want {
			t.Errorf("listing %d is for %q, want %q", i, listings[i].CardName, want)
		}
	}
	if len(slept) != 2 {
		t.Fatalf("expected a delay between cards only, got %d sleeps", len(slept))
	}
	for _, d := range slept {
		if d != scanDelay {
			t.Errorf("sleep = %v, want %v", d, scanDelay)
		}
	}
}

func TestScanPicksSoonestEnding(t *testing.T) {
	browse := &fakeBrowse{searchFn: func(call int, query string) ([]ebay.ItemSummary, error) {
		return []ebay.ItemSummary{
			auctionItem("late", "Charizard ends later", "10.00", 3*time.Hour),
			auctionItem("soon", "Charizard ends soon", "12.00", 20*time.Minute),
			{ItemID: "undated", Title: "Charizard no end date", Price: ebay.Money{Value: "1.00"}},
		}, nil
	}}
	svc := NewAuctionScanService(browse)
	svc.sleep = func(time.Duration) {}
	svc.now = func() time.Time { return dealsNow }

	listings := svc.Scan(context.Background(), []models.TrackedCard{
		rawCard("t1", "a", "Charizard", "base-set"),
	}, ScanTopGrade, "")

	if len(listings) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(listings))
	}
	if listings[0].Title != "Charizard ends soon" {
		t.Errorf("picked %q, want the soonest-ending auction", listings[0].Title)
	}
	if listings[0].TimeLeft != "20m left" {
		t.Errorf("time left = %q", listings[0].TimeLeft)
	}
}

func TestScanSkipsFailedCards(t *testing.T) {
	browse := &fakeBrowse{searchFn: func(call int, query string) ([]ebay.ItemSummary, error) {
		if call == 2 {
			return nil, errors.New("search failed")
		}
		return []ebay.ItemSummary{
			auctionItem("i", query, "10.00", time.Hour),
		}, nil
	}}
	svc := NewAuctionScanService(browse)
	svc.sleep = func(time.Duration) {}
	svc.now = func() time.Time { return dealsNow }

	cards := []models.TrackedCard{
		rawCard("t1", "a", "Charizard", "base-set"),
		rawCard("t2", "b", "Blastoise", "base-set"),
		rawCard("t3", "c", "Venusaur", "base-set"),
	}
	listings := svc.Scan(context.Background(), cards, ScanTopGrade, "")

	if len(listings) != 2 {
		t.Fatalf("expected the failed card skipped, got %d listings", len(listings))
	}
	if listings[0].CardName != "Charizard" || listings[1].CardName != "Venusaur" {
		t.Errorf("unexpected cards: %s, %s", listings[0].CardName, listings[1].CardName)
	}
}

func TestScanFallsBackToCardImage(t *testing.T) {
	browse := &fakeBrowse{searchFn: func(call int, query string) ([]ebay.ItemSummary, error) {
		return []ebay.ItemSummary{
			auctionItem("i", "Charizard", "10.00", time.Hour),
		}, nil
	}}
	svc := NewAuctionScanService(browse)
	svc.sleep = func(time.Duration) {}
	svc.now = func() time.Time { return dealsNow }

	card := rawCard("t1", "a", "Charizard", "base-set")
	card.ImageURL = "https://img.example/charizard.jpg"
	listings := svc.Scan(context.Background(), []models.TrackedCard{card}, ScanTopGrade, "")

	if len(listings) != 1 || listings[0].Image != "https://img.example/charizard.jpg" {
		t.Errorf("expected the tracked card image as fallback, got %+v", listings)
	}
}
