package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"job-feed-api/config"
	"job-feed-api/controllers"
	"job-feed-api/middleware"
	"job-feed-api/models"
	"job-feed-api/routes"
	"job-feed-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logFile, _ := config.InitLogging()
	if logFile != nil {
		defer logFile.Close()
	}

	// Initialize database
	config.InitDB()
	if err := config.DB.AutoMigrate(
		&models.Job{},
		&models.ImportRun{},
		&models.ImportRunError{},
		&models.ImportBatch{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Set Gin mode
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Wire the import pipeline: event hub, fetcher, worker pool, dispatcher
	hub := services.NewEventHub()
	processor := services.NewBatchProcessor(config.DB, hub)
	queue := services.NewBatchQueue(config.DB, processor.Process, envInt("WORKER_CONCURRENCY", services.DefaultWorkerConcurrency))
	fetchTimeout := time.Duration(envInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second
	fetcher := services.NewFeedFetcher(fetchTimeout)
	imports := services.NewImportJobService(config.DB, fetcher, queue, hub)

	controllers.Init(imports, services.NewImportRunService(config.DB), services.NewJobService(config.DB), hub)

	ctx := context.Background()
	queue.Start(ctx)
	services.StartScheduler(ctx, imports)

	// Create Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Add security headers middleware
	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	router.Use(middleware.CORSMiddleware())

	routes.SetupRoutes(router)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func envInt(name string, def int) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
