// Playroom Sweeper — удаляет сканы старше RETENTION_AGE_DAYS
// и изображения, на которые не ссылается ни один скан.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Playroom/internal/blob"
	"github.com/shaiso/Playroom/internal/config"
	"github.com/shaiso/Playroom/internal/repo"
	"github.com/shaiso/Playroom/internal/retention"
	"github.com/shaiso/Playroom/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("playroom-sweeper")
	logger.Info("starting playroom-sweeper")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	whitelist, err := cfg.RetentionWhitelist()
	if err != nil {
		logger.Error("invalid retention whitelist", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	images, err := blob.Open(ctx, cfg.Blob.Driver, cfg.Blob.Dir, blob.S3Config{
		Endpoint:      cfg.Blob.Endpoint,
		Bucket:        cfg.Blob.Bucket,
		AccessKey:     cfg.Blob.AccessKey,
		SecretKey:     cfg.Blob.SecretKey,
		UseSSL:        cfg.Blob.UseSSL,
		PublicBaseURL: cfg.Blob.PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}

	sweeper := retention.New(retention.Config{
		Scans:       repo.NewScanRepo(pool),
		Blobs:       images,
		AgeDays:     cfg.Retention.AgeDays,
		Interval:    cfg.Retention.Interval(),
		OrphanGrace: cfg.Retention.OrphanGrace(),
		Whitelist:   whitelist,
		Logger:      logger,
	})

	logger.Info("retention configured",
		"age_days", cfg.Retention.AgeDays,
		"interval", cfg.Retention.Interval(),
		"orphan_grace", cfg.Retention.OrphanGrace(),
		"whitelist", len(whitelist),
	)

	if err := sweeper.Start(ctx); err != nil {
		logger.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.HTTP.SweeperPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	// Stop ждёт текущий проход, если он идёт
	sweeper.Stop()
	logger.Info("playroom-sweeper stopped")
}
