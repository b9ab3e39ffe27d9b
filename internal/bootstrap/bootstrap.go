package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/claim-assistant/internal/config"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
	"github.com/kirillkom/claim-assistant/internal/core/usecase"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/analyzer/contentunderstanding"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/assistant/assistants"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/backend/claimsapi"
	rediscache "github.com/kirillkom/claim-assistant/internal/infrastructure/cache/redis"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/export/xlsx"
	natsqueue "github.com/kirillkom/claim-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/schema/templates"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/session/memory"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/storage/localfs"
)

// Observers receives pipeline and run telemetry. Nil fields disable it.
type Observers struct {
	Pipeline ports.PipelineObserver
	Runs     ports.RunObserver
}

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Sessions *memory.Store
	Exporter ports.ReceiptExporter
	Tools    *usecase.ToolRegistry

	Claims       ports.ClaimSessions
	SubmitBatch  ports.BatchSubmitter
	ProcessBatch ports.BatchProcessor
	GetBatch     ports.BatchReader

	closeFn func()
}

// Toolkit is the subset used by entry points that only need the claim
// tools: reference lookups, schema fill and submission.
type Toolkit struct {
	Tools   *usecase.ToolRegistry
	Catalog *usecase.ReferenceCatalog
	Filler  *usecase.SchemaFiller

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, observers Observers) (*App, error) {
	executor := newExecutor(cfg)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewBatchRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, cfg.NATSEventSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	toolkit, err := newToolkit(cfg, executor, queue)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	analyzer := contentunderstanding.New(contentunderstanding.Config{
		Endpoint:        cfg.AnalyzerEndpoint,
		APIVersion:      cfg.AnalyzerAPIVersion,
		SubscriptionKey: cfg.AnalyzerKey,
		AnalyzerID:      cfg.AnalyzerID,
		PollInterval:    cfg.AnalyzerPollInterval,
		PollTimeout:     cfg.AnalyzerTimeout,
		MaxFileBytes:    cfg.AnalyzerMaxFileBytes,
	}, executor)
	pipeline := usecase.NewExtractionPipeline(analyzer, observers.Pipeline, cfg.MinFieldConfidence)

	assistant := assistants.New(assistants.Config{
		Endpoint:    cfg.AssistantEndpoint,
		APIKey:      cfg.AssistantKey,
		APIVersion:  cfg.AssistantAPIVersion,
		AssistantID: cfg.AssistantID,
	}, executor)
	orchestrator := usecase.NewRunOrchestrator(
		assistant,
		toolkit.Tools,
		observers.Runs,
		cfg.AssistantPollInterval,
		cfg.AssistantRunTimeout,
	)

	sessions := memory.NewStore(cfg.SessionTTL)
	claims := usecase.NewClaimService(sessions, storage, pipeline, toolkit.Catalog, toolkit.Filler, orchestrator)

	return &App{
		Config: cfg,

		Queue:    queue,
		Sessions: sessions,
		Exporter: xlsx.NewReceiptExporter(),
		Tools:    toolkit.Tools,

		Claims:       claims,
		SubmitBatch:  usecase.NewSubmitBatchUseCase(repo, storage, queue),
		ProcessBatch: usecase.NewProcessBatchUseCase(repo, pipeline, toolkit.Catalog),
		GetBatch:     usecase.NewGetBatchUseCase(repo),

		closeFn: func() {
			toolkit.Close()
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// NewToolkit builds the claim tools without the database or the queue.
// Submitted-claim events are published only when NATS is reachable.
func NewToolkit(cfg config.Config) (*Toolkit, error) {
	executor := newExecutor(cfg)

	var events ports.EventPublisher
	var queue *natsqueue.Queue
	if cfg.NATSURL != "" && cfg.NATSEventSubject != "" {
		q, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, cfg.NATSEventSubject, natsqueue.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			slog.Warn("claim_events_disabled", "error", err)
		} else {
			queue = q
			events = q
		}
	}

	toolkit, err := newToolkit(cfg, executor, events)
	if err != nil {
		if queue != nil {
			queue.Close()
		}
		return nil, err
	}
	if queue != nil {
		closeCache := toolkit.closeFn
		toolkit.closeFn = func() {
			if closeCache != nil {
				closeCache()
			}
			queue.Close()
		}
	}
	return toolkit, nil
}

func newToolkit(cfg config.Config, executor *resilience.Executor, events ports.EventPublisher) (*Toolkit, error) {
	var backend ports.ClaimBackend = claimsapi.New(claimsapi.Config{
		BaseURL:   cfg.BackendURL,
		APIKey:    cfg.BackendAPIKey,
		LBUHeader: cfg.BackendLBUHeader,
		Timeout:   cfg.BackendTimeout,
	}, executor)

	var closeFn func()
	if cfg.RedisURL != "" {
		client, err := rediscache.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		backend = rediscache.NewBackend(backend, client, cfg.RedisCacheTTL)
		closeFn = closeRedis(client)
	}

	store, err := templates.New()
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, fmt.Errorf("load claim templates: %w", err)
	}

	catalog := usecase.NewReferenceCatalog(backend)
	filler := usecase.NewSchemaFiller(store)
	registry := usecase.NewToolRegistry(cfg.ToolTimeout)
	if err := usecase.NewClaimTools(catalog, filler, backend, events).Register(registry); err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, fmt.Errorf("register claim tools: %w", err)
	}

	return &Toolkit{
		Tools:   registry,
		Catalog: catalog,
		Filler:  filler,
		closeFn: closeFn,
	}, nil
}

func newExecutor(cfg config.Config) *resilience.Executor {
	return resilience.NewExecutor(resilience.DefaultConfig().WithRetries(cfg.RetryMaxAttempts, cfg.BreakerEnabled))
}

func closeRedis(client *redis.Client) func() {
	return func() {
		if err := client.Close(); err != nil {
			slog.Warn("redis_close_failed", "error", err)
		}
	}
}

func (t *Toolkit) Close() {
	if t.closeFn != nil {
		t.closeFn()
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
