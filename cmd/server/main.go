package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"propertylist/server/config"
	"propertylist/server/internal/api"
	"propertylist/server/internal/database"
	"propertylist/server/internal/feed"
	"propertylist/server/internal/processor"
	"propertylist/server/internal/queue"
	"propertylist/server/internal/scheduler"
	"propertylist/server/internal/search"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	logger.WithField("path", cfg.Storage.DataDir).Info("Loading property store")
	db, err := database.NewDatabase(database.Options{
		DataDir:       cfg.Storage.DataDir,
		FlushBatch:    cfg.Storage.FlushBatch,
		FlushInterval: cfg.Storage.FlushInterval,
		GzipLevel:     cfg.Storage.GzipLevel,
		Search: search.Options{
			MaxResults:         cfg.Search.MaxResults,
			MaxBucketScan:      cfg.Search.MaxBucketScan,
			DiversifyThreshold: cfg.Search.DiversifyThreshold,
		},
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	// Ingestion pipeline
	listingQueue := queue.NewListingQueue(cfg.BatchProcessing.MaxBatchSize, logger)
	batchProcessor := processor.NewBatchProcessor(db, listingQueue, cfg, logger)
	batchProcessor.Start()
	for i := 0; i < cfg.BatchProcessing.ProcessorCount; i++ {
		listingQueue.Start()
	}

	var feedReader *feed.Reader
	var source scheduler.Source
	if cfg.Feed.DBPath != "" {
		feedReader, err = feed.Open(cfg.Feed.DBPath, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open feed staging database")
		}
		source = feedReader
	} else {
		logger.Info("No feed staging database configured, polling disabled")
	}

	sched := scheduler.NewScheduler(db, source, listingQueue, cfg, logger)
	sched.Start()

	handler := api.NewHandler(db, listingQueue, logger)
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, handler, cfg.Server.AllowOrigins)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	sched.Stop()
	if err := listingQueue.Close(); err != nil {
		logger.WithError(err).Error("Failed to drain ingestion queue")
	}
	batchProcessor.Stop()
	if feedReader != nil {
		if err := feedReader.Close(); err != nil {
			logger.WithError(err).Error("Failed to close feed staging database")
		}
	}
	if err := db.Close(); err != nil {
		logger.WithError(err).Error("Failed to write final snapshot")
	}
}
