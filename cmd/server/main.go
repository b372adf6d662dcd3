package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cfinder/cfinder/backend/internal/api"
	"github.com/cfinder/cfinder/backend/internal/database"
	"github.com/cfinder/cfinder/backend/internal/ebay"
	"github.com/cfinder/cfinder/backend/internal/services"
)

func main() {
	// Local development keys live in .env; missing file is fine in prod
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	// Database path
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./cfinder.db"
	}

	// Initialize database
	if err := database.Initialize(dbPath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	db := database.GetDB()

	// Marketplace credentials
	appID := os.Getenv("EBAY_APP_ID")
	certID := os.Getenv("EBAY_CERT_ID")
	if appID == "" || certID == "" {
		log.Println("Warning: EBAY_APP_ID / EBAY_CERT_ID not set; auction lookups will be unavailable")
	}

	// Catalog credentials and quota
	catalogAPIKey := os.Getenv("JUSTTCG_API_KEY")
	if catalogAPIKey == "" {
		log.Println("Warning: JUSTTCG_API_KEY not set; catalog lookups will be unavailable")
	}
	catalogDailyLimit := 100 // Default free tier limit
	if limitStr := os.Getenv("JUSTTCG_DAILY_LIMIT"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			catalogDailyLimit = limit
		}
	}

	// Marketplace client stack
	tokens := ebay.NewTokenSource(appID, certID)
	ebayRPS := 5.0
	if rpsStr := os.Getenv("EBAY_RPS"); rpsStr != "" {
		if rps, err := strconv.ParseFloat(rpsStr, 64); err == nil && rps > 0 {
			ebayRPS = rps
		}
	}
	ebayClient := ebay.NewClient(tokens, ebayRPS)
	searcher := ebay.NewSearchService(ebayClient)

	// Price pipeline
	catalogService := services.NewJustTCGService(catalogAPIKey, catalogDailyLimit)
	auctionResolver := services.NewAuctionResolver(searcher)
	batchService := services.NewPriceBatchService(catalogService, auctionResolver)
	dealsService := services.NewDealsService(ebayClient)
	scanService := services.NewAuctionScanService(ebayClient)
	priceWorker := services.NewPriceWorker(batchService, db)

	// Create a cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start price worker in background with panic recovery
	go func() {
		for {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("PANIC in price worker: %v - restarting in 30 seconds", r)
					}
				}()
				priceWorker.Start(ctx)
			}()

			select {
			case <-ctx.Done():
				return // Graceful shutdown
			case <-time.After(30 * time.Second):
				log.Println("Price worker restarting after panic recovery...")
			}
		}
	}()

	// Setup router
	router := api.SetupRouter(db, catalogService, batchService, priceWorker, dealsService, scanService)

	// Get port from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Create HTTP server for graceful shutdown
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Cancel the context to stop the price worker
	cancel()

	// Give outstanding requests a deadline to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
