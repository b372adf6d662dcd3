package api

import (
	"os"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/cfinder/cfinder/backend/internal/api/handlers"
	"github.com/cfinder/cfinder/backend/internal/metrics"
	"github.com/cfinder/cfinder/backend/internal/services"
)

func SetupRouter(db *gorm.DB, catalog *services.JustTCGService, batch *services.PriceBatchService, worker *services.PriceWorker, deals *services.DealsService, scan *services.AuctionScanService) *gin.Engine {
	router := gin.Default()

	// CORS configuration - allow origins from environment or use defaults
	config := cors.DefaultConfig()
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		config.AllowOrigins = strings.Split(corsOrigins, ",")
	} else {
		config.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	config.AllowCredentials = false
	router.Use(cors.New(config))

	// Request counting for the /metrics endpoint
	router.Use(func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	})

	// Initialize handlers
	cardHandler := handlers.NewCardHandler(catalog)
	listHandler := handlers.NewListHandler(db)
	priceHandler := handlers.NewPriceHandler(batch, worker, catalog, db)
	dealHandler := handlers.NewDealHandler(deals)
	auctionHandler := handlers.NewAuctionHandler(scan, db)

	// API routes
	api := router.Group("/api")
	{
		// Catalog search
		cards := api.Group("/cards")
		{
			cards.GET("/search", cardHandler.SearchCards)
		}

		// Tracked list
		list := api.Group("/list")
		{
			list.GET("", listHandler.GetList)
			list.POST("", listHandler.AddCard)
			list.PUT("/:id", listHandler.UpdateCard)
			list.DELETE("/:id", listHandler.DeleteCard)
			list.POST("/:id/purchase", listHandler.PurchaseCard)
			list.GET("/export", listHandler.ExportList)
			list.POST("/import", listHandler.ImportList)
			list.POST("/refresh", priceHandler.RefreshPrices)
		}

		// Deals feed + bulk auction scan
		api.GET("/deals", dealHandler.GetDeals)
		api.POST("/auctions", auctionHandler.ScanAuctions)

		// Price pipeline status
		prices := api.Group("/prices")
		{
			prices.GET("/status", priceHandler.GetPriceStatus)
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
