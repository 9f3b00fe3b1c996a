// Playroom Orchestrator — принимает trigger и выполняет pipeline runs.
//
// Orchestrator:
//   - выдаёт bearer-токены и создаёт PENDING runs (POST /api/v1/pipelines/{name}/runs)
//   - получает run.pending из RabbitMQ, с polling как запасным путём
//   - выполняет pipeline process_scans и финализирует run
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
	"github.com/shaiso/Playroom/internal/domain"
	"github.com/shaiso/Playroom/internal/gemini"
	"github.com/shaiso/Playroom/internal/merge"
	"github.com/shaiso/Playroom/internal/mq"
	"github.com/shaiso/Playroom/internal/orchestrator"
	"github.com/shaiso/Playroom/internal/pipeline"
	"github.com/shaiso/Playroom/internal/repo"
	"github.com/shaiso/Playroom/internal/telemetry"
	"github.com/shaiso/Playroom/internal/token"
)

func main() {
	logger := telemetry.SetupLogger("playroom-orchestrator")
	logger.Info("starting playroom-orchestrator")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "playroom-orchestrator", cfg.Telemetry.OTelEndpoint)
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
	logger.Info("database connected")

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

	model, err := gemini.New(gemini.Config{
		BaseURL:           cfg.Gemini.BaseURL,
		Model:             cfg.Gemini.Model,
		APIKey:            cfg.Gemini.APIKey,
		Timeout:           time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
		RetryAttempts:     cfg.Gemini.RetryAttempts,
		RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create model client", "error", err)
		os.Exit(1)
	}

	issuer, err := token.NewIssuer(token.Config{
		Secret:   []byte(cfg.Auth.Secret),
		TTL:      cfg.Auth.TokenTTL,
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
	})
	if err != nil {
		logger.Error("AUTH_SECRET is required", "error", err)
		os.Exit(1)
	}

	scanRepo := repo.NewScanRepo(pool)
	runRepo := repo.NewRunRepo(pool)

	processScans := pipeline.New(pipeline.Config{
		Scans:       scanRepo,
		Images:      images,
		Model:       model,
		Careers:     repo.NewCareerRepo(pool, cfg.Pipeline.CareerLimit),
		Writer:      merge.NewWriter(scanRepo, logger),
		Concurrency: cfg.Pipeline.StageConcurrencyLimit,
		Logger:      logger,
	})

	orchCfg := orchestrator.Config{
		Runs:         runRepo,
		Pipelines:    map[string]orchestrator.Runner{domain.PipelineProcessScans: processScans},
		Tokens:       issuer,
		PollInterval: time.Duration(cfg.Pipeline.PollIntervalSeconds) * time.Second,
		Logger:       logger,
	}

	mqConn, err := mq.NewConnection(cfg.MQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		logger.Debug("rabbitmq topology\n" + mq.TopologyInfo())
		orchCfg.Conn = mqConn
		orchCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	orch := orchestrator.New(orchCfg)
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	orch.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.HTTP.OrchPort,
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	orch.Stop()
	logger.Info("playroom-orchestrator stopped")
}
