// server runs the read-only status API over the export queue and load
// registry.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/consciousfounders/dental-leads-etl/internal/api"
	"github.com/consciousfounders/dental-leads-etl/internal/config"
	"github.com/consciousfounders/dental-leads-etl/internal/destination"
	"github.com/consciousfounders/dental-leads-etl/internal/pkg/logger"
	"github.com/consciousfounders/dental-leads-etl/internal/quarantine"
	"github.com/consciousfounders/dental-leads-etl/internal/queue"
	"github.com/consciousfounders/dental-leads-etl/internal/repository/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	registry := destination.NewRegistry(cfg)
	exportRepo := postgres.NewExportRepo(db)
	queueSvc := queue.NewService(
		exportRepo,
		postgres.NewSuppressionRepo(db),
		registry,
		destination.NewRateLimiter(rdb),
		cfg.Destinations,
		cfg.Send.Concurrency,
	)
	quarantineSvc := quarantine.NewService(
		postgres.NewLoadRepo(db),
		exportRepo,
		registry,
		cfg.Destinations,
	)

	router := api.SetupRoutes(api.NewHandlers(db, queueSvc, quarantineSvc))
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
