package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Playroom/internal/domain"
	"github.com/shaiso/Playroom/internal/mq"
	"github.com/shaiso/Playroom/internal/pipeline"
	"github.com/shaiso/Playroom/internal/token"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
)

// RunRepo — хранилище pipeline runs.
type RunRepo interface {
	Create(ctx context.Context, run *domain.PipelineRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error)
	Claim(ctx context.Context, run *domain.PipelineRun) error
	Update(ctx context.Context, run *domain.PipelineRun) error
	ListPending(ctx context.Context, limit int) ([]domain.PipelineRun, error)
}

// Runner выполняет один проход pipeline.
type Runner interface {
	Run(ctx context.Context) (*pipeline.Report, error)
}

// RunPublisher публикует run.pending.
type RunPublisher interface {
	PublishRunPending(ctx context.Context, runID uuid.UUID, pipeline string) error
}

// TokenIssuer выпускает и проверяет bearer-токены trigger endpoint.
type TokenIssuer interface {
	Issue(username, password string) (*token.Token, error)
	Verify(raw string) (string, error)
}

// Config — зависимости Orchestrator.
type Config struct {
	Runs      RunRepo
	Pipelines map[string]Runner

	// Publisher и Conn опциональны: без них работает только polling.
	Publisher RunPublisher
	Conn      *mq.Connection

	Tokens TokenIssuer

	PollInterval time.Duration
	BatchSize    int

	Logger *slog.Logger
}

// Orchestrator выполняет runs по одному за раз.
type Orchestrator struct {
	runs      RunRepo
	pipelines map[string]Runner
	publisher RunPublisher
	conn      *mq.Connection
	tokens    TokenIssuer

	// execMu сериализует выполнение: consumer и polling не запускают два run одновременно.
	execMu     sync.Mutex
	mu         sync.RWMutex
	activeRuns map[uuid.UUID]struct{}

	runConsumer *mq.Consumer

	pollInterval time.Duration
	batchSize    int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Pipelines == nil {
		cfg.Pipelines = map[string]Runner{}
	}

	return &Orchestrator{
		runs:         cfg.Runs,
		pipelines:    cfg.Pipelines,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		tokens:       cfg.Tokens,
		activeRuns:   make(map[uuid.UUID]struct{}),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		logger:       cfg.Logger,
	}
}

// Start запускает consumer run.pending (если есть RabbitMQ) и polling.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"batch_size", o.batchSize,
		"mq", o.conn != nil,
	)

	if o.conn != nil {
		o.runConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    mq.QueueRunsPending,
			Handler:  o.handleRunPending,
			Prefetch: 1,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.runConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("run consumer error", "error", err)
			}
		}()
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	return nil
}

// Stop отменяет контекст и ждёт текущий run.
func (o *Orchestrator) Stop() {
	o.logger.Info("stopping orchestrator...")
	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	o.wg.Wait()
	o.logger.Info("orchestrator stopped")
}

// pollLoop подхватывает PENDING runs, для которых событие потерялось.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// первый poll сразу: runs, созданные пока процесс был выключен
	o.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

func (o *Orchestrator) poll(ctx context.Context) {
	runs, err := o.runs.ListPending(ctx, o.batchSize)
	if err != nil {
		o.logger.Error("failed to list pending runs", "error", err)
		return
	}
	if len(runs) > 0 {
		o.logger.Debug("poll found pending runs", "count", len(runs))
	}

	for i := range runs {
		if ctx.Err() != nil {
			return
		}
		if o.isRunActive(runs[i].ID) {
			continue
		}
		if err := o.processRun(ctx, runs[i].ID); err != nil && !isSkippable(err) {
			o.logger.Error("failed to process run from poll", "run_id", runs[i].ID, "error", err)
		}
	}
}

func (o *Orchestrator) isRunActive(runID uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.activeRuns[runID]
	return ok
}

func (o *Orchestrator) addActiveRun(runID uuid.UUID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.activeRuns[runID]; ok {
		return ErrRunAlreadyActive
	}
	o.activeRuns[runID] = struct{}{}
	return nil
}

func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

// ActiveRunsCount — число выполняющихся runs (0 или 1).
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}
