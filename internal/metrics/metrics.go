// Package metrics provides Prometheus metrics for the card finder backend.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfinder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Outbound API Metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfinder_upstream_requests_total",
			Help: "Total outbound API requests by upstream and outcome",
		},
		[]string{"upstream", "result"}, // upstream: "ebay_oauth", "ebay_browse", "ebay_item", "justtcg"; result: "success", "error", "rate_limited", "empty"
	)

	// Result Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfinder_cache_hits_total",
			Help: "Result cache hits by cache name",
		},
		[]string{"cache"}, // "auction_results", "deals_feed"
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfinder_cache_misses_total",
			Help: "Result cache misses by cache name",
		},
		[]string{"cache"},
	)

	InFlightSharesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfinder_inflight_shares_total",
			Help: "Lookups that joined an already in-flight resolution instead of issuing a new call",
		},
		[]string{"cache"},
	)

	StaleServesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfinder_stale_serves_total",
			Help: "Responses served from the last known value after an upstream failure",
		},
		[]string{"cache"},
	)

	// Price Pipeline Metrics
	PriceBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cfinder_price_batch_duration_seconds",
			Help:    "Time taken to resolve one price refresh batch",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	PriceBatchCards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfinder_price_batch_cards_total",
			Help: "Cards processed by the batch price resolver, by winning source",
		},
		[]string{"source"}, // "catalog", "auction", "none"
	)

	AuctionQueryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cfinder_auction_query_attempts",
			Help:    "Number of ladder attempts issued per auction search",
			Buckets: []float64{1, 2, 3, 4},
		},
	)

	// Catalog Quota Metrics
	CatalogQuotaRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cfinder_catalog_quota_remaining",
			Help: "Remaining catalog API requests for today",
		},
	)

	CatalogQuotaLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cfinder_catalog_quota_limit",
			Help: "Daily catalog API request limit",
		},
	)

	// Deals Feed Metrics
	DealsServedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cfinder_deals_served_total",
			Help: "Deals feed responses by feed type",
		},
		[]string{"feed"},
	)

	DealsZeroPriceRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cfinder_deals_zero_price_retries_total",
			Help: "Zero-price deal listings re-resolved via an item-detail lookup",
		},
	)

	// Tracked List Metrics
	TrackedCardsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cfinder_tracked_cards_total",
			Help: "Number of cards on the tracked list",
		},
	)

	TrackedListValueUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cfinder_tracked_list_value_usd",
			Help: "Total best-price value of the tracked list in USD",
		},
	)
)
