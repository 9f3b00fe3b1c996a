// Playroom API — приём сканов, выдача результатов и квоты.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Playroom/internal/admission"
	"github.com/shaiso/Playroom/internal/api"
	"github.com/shaiso/Playroom/internal/blob"
	"github.com/shaiso/Playroom/internal/config"
	"github.com/shaiso/Playroom/internal/quota"
	"github.com/shaiso/Playroom/internal/repo"
	"github.com/shaiso/Playroom/internal/telemetry"
	"github.com/shaiso/Playroom/internal/trigger"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger("playroom-api")
	logger.Info("starting playroom-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "playroom-api", cfg.Telemetry.OTelEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer shutdownTracing(context.Background())
	}

	pool, err := repo.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	images, err := blob.Open(ctx, cfg.Blob.Driver, cfg.Blob.Dir, s3Config(cfg))
	if err != nil {
		logger.Error("failed to open blob store", "driver", cfg.Blob.Driver, "error", err)
		os.Exit(1)
	}

	scanRepo := repo.NewScanRepo(pool)

	counter := quota.New(quota.Config{
		Counter:  scanRepo,
		TTL:      cfg.Quota.CacheTTL(),
		Location: cfg.Quota.Location(),
		Logger:   logger,
	})

	triggerClient := trigger.New(trigger.Config{
		Host:        cfg.Trigger.Host,
		Username:    cfg.Trigger.Username,
		Password:    cfg.Trigger.Password,
		StaticToken: cfg.Trigger.StaticToken,
		Logger:      logger,
	})

	controller := admission.New(admission.Config{
		Scans:         scanRepo,
		Blobs:         images,
		Quota:         counter,
		Trigger:       triggerClient,
		DailyLimit:    cfg.Quota.DailyLimit,
		MaxUploadSize: cfg.Blob.MaxUploadMiB << 20,
		Logger:        logger,
	})

	handler := api.NewHandler(api.Config{
		Admission:     controller,
		Scans:         scanRepo,
		Images:        images,
		MaxUploadSize: int64(cfg.Blob.MaxUploadMiB) << 20,
		GetRateLimit:  cfg.HTTP.GetRatePerMinute,
		PostRateLimit: cfg.HTTP.PostRatePerMinute,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	if cfg.Blob.Driver == "fs" {
		// локальный режим: изображения раздаёт сам API
		mux.Handle("GET /images/", http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.Blob.Dir))))
	}
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.HTTP.APIPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

func s3Config(cfg *config.Config) blob.S3Config {
	base := cfg.Blob.PublicBaseURL
	if base == "" && cfg.Blob.Driver == "fs" {
		base = "http://localhost:" + cfg.HTTP.APIPort + "/images"
	}
	return blob.S3Config{
		Endpoint:      cfg.Blob.Endpoint,
		Bucket:        cfg.Blob.Bucket,
		AccessKey:     cfg.Blob.AccessKey,
		SecretKey:     cfg.Blob.SecretKey,
		UseSSL:        cfg.Blob.UseSSL,
		PublicBaseURL: base,
	}
}
