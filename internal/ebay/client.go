package ebay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/cfinder/cfinder/backend/internal/metrics"
)

const (
	defaultBrowseURL = "https://api.ebay.com/buy/browse/v1"
	marketplaceID    = "EBAY_US"
)

// ErrRateLimited signals an upstream 429; the deals path retries once with
// a fresh token, everything else treats it as "source unavailable".
var ErrRateLimited = errors.New("ebay rate limited")

// Client talks to the Browse API. All calls are paced by a shared limiter
// so the batch resolver, deals feed and auction scan draw from one outbound
// call budget.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     *TokenSource
	limiter    *rate.Limiter
}

// ItemSummary is the subset of a Browse search hit the pipeline consumes.
type ItemSummary struct {
	ItemID     string `json:"itemId"`
	Title      string `json:"title"`
	Price      Money  `json:"price"`
	ItemWebURL string `json:"itemWebUrl"`
	ItemEnd    string `json:"itemEndDate"`
	Image      Image  `json:"image"`
}

// ItemDetail is the subset of a per-item lookup the pipeline consumes.
// CurrentBidPrice is populated for live auctions; Price for everything else.
type ItemDetail struct {
	CurrentBidPrice Money `json:"currentBidPrice"`
	Price           Money `json:"price"`
	Image           Image `json:"image"`
}

type Money struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type Image struct {
	ImageURL string `json:"imageUrl"`
}

// Amount parses the money value, coercing anything malformed to zero.
func (m Money) Amount() float64 {
	v, err := strconv.ParseFloat(m.Value, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// EndTime parses the listing end date; the zero time means "no end date".
func (s ItemSummary) EndTime() time.Time {
	t, err := time.Parse(time.RFC3339, s.ItemEnd)
	if err != nil {
		return time.Time{}
	}
	return t
}

type searchResponse struct {
	ItemSummaries []ItemSummary `json:"itemSummaries"`
}

// NewClient builds a Browse API client. rps bounds sustained outbound search
// calls per second; bursts up to 2x are allowed for batch fan-out.
func NewClient(tokens *TokenSource, rps float64) *Client {
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBrowseURL,
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(2*rps)),
	}
}

// Search runs one item-summary search. sort and filter are passed through
// verbatim; an empty sort is omitted.
func (c *Client) Search(ctx context.Context, query string, limit int, sort, filter string) ([]ItemSummary, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	if sort != "" {
		params.Set("sort", sort)
	}
	if filter != "" {
		params.Set("filter", filter)
	}

	reqURL := fmt.Sprintf("%s/item_summary/search?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", marketplaceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_browse", "error").Inc()
		return nil, fmt.Errorf("ebay search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_browse", "rate_limited").Inc()
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_browse", "error").Inc()
		return nil, fmt.Errorf("ebay search returned status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_browse", "error").Inc()
		return nil, fmt.Errorf("failed to decode ebay search response: %w", err)
	}

	if len(sr.ItemSummaries) == 0 {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_browse", "empty").Inc()
	} else {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_browse", "success").Inc()
	}
	return sr.ItemSummaries, nil
}

// GetItem fetches one item's detail record, used to recover current-bid
// prices for auctions the summary endpoint reports at $0.
func (c *Client) GetItem(ctx context.Context, itemID string) (*ItemDetail, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/item/%s", c.baseURL, url.PathEscape(itemID))
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create item request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", marketplaceID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_item", "error").Inc()
		return nil, fmt.Errorf("ebay item lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_item", "rate_limited").Inc()
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_item", "error").Inc()
		return nil, fmt.Errorf("ebay item lookup returned status %d", resp.StatusCode)
	}

	var detail ItemDetail
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("ebay_item", "error").Inc()
		return nil, fmt.Errorf("failed to decode ebay item response: %w", err)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues("ebay_item", "success").Inc()
	return &detail, nil
}

// InvalidateToken drops the cached OAuth token; the next call re-exchanges.
func (c *Client) InvalidateToken() {
	c.tokens.Invalidate()
}
