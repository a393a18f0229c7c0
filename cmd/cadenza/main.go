package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cadenza-app/cadenza/internal/archive"
	"github.com/cadenza-app/cadenza/internal/blob"
	"github.com/cadenza-app/cadenza/internal/database"
	"github.com/cadenza-app/cadenza/internal/identity"
	"github.com/cadenza-app/cadenza/internal/logging"
	"github.com/cadenza-app/cadenza/internal/payment"
	"github.com/cadenza-app/cadenza/internal/server"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// Missing .env is fine; the environment may carry everything.
	godotenv.Load()

	logger := logging.Setup(env("CADENZA_LOG_LEVEL", "info"))

	port := env("CADENZA_PORT", "8080")
	dbPath := env("CADENZA_DB_PATH", "cadenza.db")

	jwtSecret := os.Getenv("CADENZA_JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("CADENZA_JWT_SECRET is required")
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Blob storage: S3-compatible when configured, local directory otherwise.
	var blobs blob.Store
	s3cfg := blob.S3Config{
		Endpoint:  os.Getenv("CADENZA_S3_ENDPOINT"),
		Bucket:    os.Getenv("CADENZA_S3_BUCKET"),
		Region:    env("CADENZA_S3_REGION", "auto"),
		AccessKey: os.Getenv("CADENZA_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("CADENZA_S3_SECRET_KEY"),
	}
	if s3cfg.Configured() {
		blobs = blob.NewS3Store(s3cfg)
		logger.Info("using s3 blob storage", "bucket", s3cfg.Bucket)
	} else {
		local, err := blob.NewLocalStore(env("CADENZA_BLOB_DIR", "blobs"))
		if err != nil {
			log.Fatalf("failed to create blob dir: %v", err)
		}
		blobs = local
		logger.Info("using local blob storage")
	}

	archiveCfg := archive.Config{
		DBPath:     dbPath,
		Passphrase: os.Getenv("CADENZA_SNAPSHOT_PASSPHRASE"),
		Interval:   24 * time.Hour,
	}
	if raw := os.Getenv("CADENZA_SNAPSHOT_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid CADENZA_SNAPSHOT_INTERVAL: %v", err)
		}
		archiveCfg.Interval = d
	}

	verifier := identity.NewTokenVerifier(jwtSecret)
	gateway := payment.NewSimulatedGateway(payment.Config{Method: env("CADENZA_PAYMENT_METHOD", "card")})

	srv := server.New(db, verifier, gateway, blobs, archiveCfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.ArchiveManager().Start(ctx)
	defer srv.ArchiveManager().Stop()

	// Prune stale rate-limit buckets in the background.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("cadenza listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
