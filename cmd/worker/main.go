package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/rosariomoscato/Design-Buddy/internal/config"
	"github.com/rosariomoscato/Design-Buddy/internal/credit"
	"github.com/rosariomoscato/Design-Buddy/internal/genai"
	"github.com/rosariomoscato/Design-Buddy/internal/imageprep"
	"github.com/rosariomoscato/Design-Buddy/internal/storage"
	"github.com/rosariomoscato/Design-Buddy/internal/store"
	"github.com/rosariomoscato/Design-Buddy/internal/telemetry"
	"github.com/rosariomoscato/Design-Buddy/internal/webhook"
	"github.com/rosariomoscato/Design-Buddy/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(initCtx, telemetry.TraceConfig{
		ServiceName:  "designbuddy-worker",
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Printf("tracing shutdown failed: %v", err)
		}
	}()

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	ledgerStore, err := store.NewPostgresLedgerStoreFromDB(initCtx, db)
	if err != nil {
		logger.Fatalf("ledger store setup failed: %v", err)
	}
	designStore, err := store.NewPostgresDesignStoreFromDB(initCtx, db)
	if err != nil {
		logger.Fatalf("design store setup failed: %v", err)
	}

	objectStore, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Storage.Endpoint,
		Access:   cfg.Storage.AccessKey,
		Secret:   cfg.Storage.SecretKey,
		Bucket:   cfg.Storage.Bucket,
		UseSSL:   cfg.Storage.UseSSL,
	})
	if err != nil {
		logger.Fatalf("object storage setup failed: %v", err)
	}
	if err := objectStore.EnsureBucket(initCtx); err != nil {
		logger.Fatalf("object storage bucket setup failed: %v", err)
	}

	generator := genai.NewClient(genai.Config{
		APIKey:      cfg.GenAI.APIKey,
		Model:       cfg.GenAI.Model,
		BaseURL:     cfg.GenAI.BaseURL,
		Timeout:     cfg.GenAI.Timeout,
		MaxAttempts: cfg.GenAI.MaxAttempts,
	})

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.SigningSecret,
		Timeout:       cfg.Webhook.Timeout,
		MaxAttempts:   cfg.Webhook.MaxAttempts,
	})

	if err := imageprep.Startup(); err != nil {
		logger.Fatalf("image runtime startup failed: %v", err)
	}
	defer imageprep.Shutdown()

	credits := credit.NewService(ledgerStore, logger)
	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, credits, designStore, objectStore, generator, webhookClient)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	go func() {
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler())
		if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_jobs=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveJobs,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}
