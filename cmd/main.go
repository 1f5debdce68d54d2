package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"catalog-service/internal/config"
	"catalog-service/internal/events"
	"catalog-service/internal/handlers"
	"catalog-service/internal/middleware"
	"catalog-service/internal/repository"
	"catalog-service/internal/services"
)

// @title Catalog Service API
// @version 1.0.0
// @description Catalog management with staged bulk import, validation, commit and rollback
// @termsOfService http://swagger.io/terms/

// @contact.name Catalog API Support
// @contact.url http://www.example.com/support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8088
// @BasePath /api/v1

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Redis is optional; without it reads just skip the cache
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (continuing without Redis)", err)
		redisOpts = &redis.Options{Addr: "localhost:6379"}
	}
	redisClient := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (caching will be disabled)", err)
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	catalogRepo := repository.NewCatalogRepository(db, redisClient)
	sessionRepo := repository.NewSessionRepository(db)

	// Event publisher only when NATS_URL is set
	var eventsPublisher *events.Publisher
	if os.Getenv("NATS_URL") != "" {
		eventsPublisher, err = events.NewPublisher(logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize events publisher: %v (continuing without event publishing)", err)
		} else {
			log.Println("✓ Events publisher initialized (NATS connected)")
		}
	} else {
		log.Println("NATS_URL not set, skipping event publishing initialization")
	}
	defer func() {
		if eventsPublisher != nil {
			eventsPublisher.Close()
		}
	}()

	importService := services.NewImportService(catalogRepo, sessionRepo, eventsPublisher, logger)
	importService.SetSessionTTL(cfg.SessionTTL)

	importHandler := handlers.NewImportHandler(importService)
	catalogHandler := handlers.NewCatalogHandler(catalogRepo)

	// Reap expired staging sessions periodically
	reapCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go func() {
		ticker := time.NewTicker(cfg.SessionReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-reapCtx.Done():
				return
			case <-ticker.C:
				if _, err := importService.DeleteExpired(reapCtx); err != nil {
					logger.WithError(err).Warn("Failed to reap expired import sessions")
				}
			}
		}
	}()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.HealthCheck)

	api := router.Group("/api/v1")
	if cfg.Environment == "development" {
		api.Use(middleware.DevelopmentAuthMiddleware())
	} else {
		api.Use(middleware.HeaderAuthMiddleware())
	}
	api.Use(middleware.TenantMiddleware())

	catalogs := api.Group("/catalogs")
	{
		// Import template is catalog-independent
		catalogs.GET("/import/template", importHandler.GetImportTemplate)

		perCatalog := catalogs.Group("/:catalogId")
		{
			// Import session lifecycle
			sessions := perCatalog.Group("/import/sessions")
			{
				sessions.POST("", importHandler.CreateSession)
				sessions.GET("", importHandler.ListSessions)
				sessions.GET("/:sessionId", importHandler.GetSession)
				sessions.POST("/:sessionId/files", importHandler.AppendFile)
				sessions.PUT("/:sessionId/data", importHandler.UpdateData)
				sessions.POST("/:sessionId/confirm", importHandler.ConfirmSession)
				sessions.POST("/:sessionId/discard", importHandler.DiscardSession)
				sessions.POST("/:sessionId/rollback", importHandler.RollbackSession)
				sessions.GET("/:sessionId/report", importHandler.GetValidationReport)
				sessions.DELETE("/:sessionId", importHandler.DeleteSession)
			}

			// Catalog browsing and export
			perCatalog.GET("/categories", catalogHandler.GetCategories)
			perCatalog.GET("/categories/:categoryId/items", catalogHandler.GetItemsByCategory)
			perCatalog.GET("/items/:itemId", catalogHandler.GetItem)
			perCatalog.GET("/sizes", catalogHandler.GetItemSizes)
			perCatalog.GET("/modifier-groups", catalogHandler.GetModifierGroups)
			perCatalog.GET("/export", catalogHandler.ExportCatalog)
		}
	}

	// Public storefront browsing (tenant context only)
	storefront := router.Group("/api/v1/storefront")
	storefront.Use(middleware.TenantMiddleware())
	{
		storefront.GET("/catalogs/:catalogId/categories", catalogHandler.GetCategories)
		storefront.GET("/catalogs/:catalogId/categories/:categoryId/items", catalogHandler.GetItemsByCategory)
		storefront.GET("/catalogs/:catalogId/items/:itemId", catalogHandler.GetItem)
		storefront.GET("/catalogs/:catalogId/modifier-groups", catalogHandler.GetModifierGroups)
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Catalog service starting on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-quit
	log.Println("Shutting down catalog-service...")
	stopReaper()
	log.Println("Catalog service stopped")
}
