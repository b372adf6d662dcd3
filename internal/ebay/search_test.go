package ebay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/cfinder/cfinder/backend/internal/models"
)

func TestNormalizeSet(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"base-set", "base set"},
		{"crown-zenith-pokemon", "crown zenith"},
		{"pokemon-151", "151"},
		{"swsh-black-star-promos", "promo"},
		{"SVP Promos", "promo"},
		{"pokemon", ""},
	}
	for _, tt := range tests {
		if got := NormalizeSet(tt.in); got != tt.want {
			t.Errorf("NormalizeSet(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildQueryAttemptsRaw(t *testing.T) {
	attempts := buildQueryAttempts("Charizard", "base-set", models.GradeRaw, false)
	if len(attempts) != 4 {
		t.Fatalf("expected 4 attempts for a raw card, got %d", len(attempts))
	}

	want := []struct {
		term     string
		degraded bool
	}{
		{"Near Mint", false},
		{"NM", false},
		{"Lightly Played", true},
		{"LP", true},
	}
	for i, w := range want {
		q := attempts[i].query
		if !strings.HasPrefix(q, "Charizard base set "+w.term) {
			t.Errorf("attempt %d query = %q, want prefix %q", i, q, "Charizard base set "+w.term)
		}
		if !strings.HasSuffix(q, rawExclusions) {
			t.Errorf("attempt %d query missing slab exclusions: %q", i, q)
		}
		if attempts[i].lightlyPlayed != w.degraded {
			t.Errorf("attempt %d lightlyPlayed = %v, want %v", i, attempts[i].lightlyPlayed, w.degraded)
		}
	}
}

func TestBuildQueryAttemptsFirstEdition(t *testing.T) {
	attempts := buildQueryAttempts("Charizard", "base-set", models.GradeRaw, true)
	for i, a := range attempts {
		if !strings.Contains(a.query, "1st edition") {
			t.Errorf("attempt %d missing 1st edition token: %q", i, a.query)
		}
	}
}

func TestBuildQueryAttemptsGraded(t *testing.T) {
	attempts := buildQueryAttempts("Pikachu", "jungle", "PSA 10", false)
	if len(attempts) != 1 {
		t.Fatalf("expected a single attempt for a graded card, got %d", len(attempts))
	}
	if attempts[0].query != "Pikachu jungle PSA 10" {
		t.Errorf("graded query = %q", attempts[0].query)
	}
	if attempts[0].lightlyPlayed {
		t.Error("graded attempt must not carry a condition downgrade")
	}
	if strings.Contains(attempts[0].query, "-PSA") {
		t.Error("graded query must not exclude grading companies")
	}
}

func TestBuildQueryAttemptsUnknownSet(t *testing.T) {
	attempts := buildQueryAttempts("Mew", "", models.GradeRaw, false)
	if !strings.HasPrefix(attempts[0].query, "Mew Near Mint") {
		t.Errorf("query with no set = %q", attempts[0].query)
	}
}

// newTestSearch wires a SearchService at a stub Browse endpoint with a
// pre-seeded token so no OAuth exchange happens.
func newTestSearch(t *testing.T, handler http.HandlerFunc) *SearchService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := NewTokenSource("app", "cert")
	tokens.token = "test-token"
	tokens.expiresAt = time.Now().Add(time.Hour)

	client := &Client{
		httpClient: srv.Client(),
		baseURL:    srv.URL,
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
	return NewSearchService(client)
}

func summariesJSON(items ...ItemSummary) []byte {
	b, _ := json.Marshal(searchResponse{ItemSummaries: items})
	return b
}

func TestSearchShortCircuitsOnFirstHit(t *testing.T) {
	var calls int
	svc := newTestSearch(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(summariesJSON(ItemSummary{
			ItemID:     "v1|123|0",
			Title:      "Charizard Base Set Near Mint",
			Price:      Money{Value: "120.00", Currency: "USD"},
			ItemWebURL: "https://www.ebay.com/itm/123",
		}))
	})

	q, err := svc.Search(context.Background(), "Charizard", "base-set", models.GradeRaw, false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 outbound call, got %d", calls)
	}
	if !q.Found || q.Price != 120 || q.LightlyPlayed {
		t.Errorf("unexpected quote: %+v", q)
	}
	if q.Link != "https://www.ebay.com/itm/123" {
		t.Errorf("quote link = %q", q.Link)
	}
}

func TestSearchFallsThroughToLightlyPlayed(t *testing.T) {
	var calls int
	svc := newTestSearch(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		query := r.URL.Query().Get("q")
		if strings.Contains(query, "Lightly Played") {
			w.Write(summariesJSON(ItemSummary{
				ItemID:     "v1|456|0",
				Title:      "Charizard LP",
				Price:      Money{Value: "40.00", Currency: "USD"},
				ItemWebURL: "https://www.ebay.com/itm/456",
			}))
			return
		}
		w.Write(summariesJSON())
	})

	q, err := svc.Search(context.Background(), "Charizard", "base-set", models.GradeRaw, false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts before the Lightly Played hit, got %d", calls)
	}
	if !q.Found || q.Price != 40 {
		t.Errorf("unexpected quote: %+v", q)
	}
	if !q.LightlyPlayed {
		t.Error("a Lightly Played rung hit must be flagged as degraded")
	}
}

func TestSearchExhaustedReturnsNotFound(t *testing.T) {
	var calls int
	svc := newTestSearch(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(summariesJSON())
	})

	q, err := svc.Search(context.Background(), "Charizard", "base-set", models.GradeRaw, false)
	if err != nil {
		t.Fatalf("exhausting the ladder is not an error, got: %v", err)
	}
	if q.Found {
		t.Error("expected the not-found sentinel")
	}
	if calls != 4 {
		t.Errorf("expected all 4 rungs tried, got %d", calls)
	}
}

func TestSearchSkipsZeroPriceResults(t *testing.T) {
	var calls int
	svc := newTestSearch(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write(summariesJSON(ItemSummary{ItemID: "v1|1|0", Price: Money{Value: "0"}}))
			return
		}
		w.Write(summariesJSON(ItemSummary{ItemID: "v1|2|0", Price: Money{Value: "15.50"}}))
	})

	q, err := svc.Search(context.Background(), "Charizard", "", models.GradeRaw, false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !q.Found || q.Price != 15.50 {
		t.Errorf("expected the zero-price rung skipped, got %+v", q)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestSearchAttemptErrorFallsThrough(t *testing.T) {
	var calls int
	svc := newTestSearch(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(summariesJSON(ItemSummary{ItemID: "v1|3|0", Price: Money{Value: "9.99"}}))
	})

	q, err := svc.Search(context.Background(), "Eevee", "", models.GradeRaw, false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if !q.Found || q.Price != 9.99 {
		t.Errorf("expected a later rung to recover from a failed attempt, got %+v", q)
	}
}

func TestMoneyAmount(t *testing.T) {
	tests := []struct {
		value string
		want  float64
	}{
		{"120.00", 120},
		{"0", 0},
		{"", 0},
		{"not-a-number", 0},
		{"-5", 0},
	}
	for _, tt := range tests {
		if got := (Money{Value: tt.value}).Amount(); got != tt.want {
			t.Errorf("Money{%q}.Amount() = %v, want %v", tt.value, got, tt.want)
		}
	}
}
