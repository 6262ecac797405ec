package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/okibo/invoice-analyzer/internal/config"
	"github.com/okibo/invoice-analyzer/internal/core/domain"
	"github.com/okibo/invoice-analyzer/internal/core/ports"
	"github.com/okibo/invoice-analyzer/internal/core/usecase"
	"github.com/okibo/invoice-analyzer/internal/infrastructure/export/excel"
	"github.com/okibo/invoice-analyzer/internal/infrastructure/llm/openrouter"
	"github.com/okibo/invoice-analyzer/internal/infrastructure/queue/nats"
	"github.com/okibo/invoice-analyzer/internal/infrastructure/repository/postgres"
	"github.com/okibo/invoice-analyzer/internal/infrastructure/resilience"
	"github.com/okibo/invoice-analyzer/internal/infrastructure/storage/localfs"
	"github.com/okibo/invoice-analyzer/internal/observability/metrics"
)

// App wires the infrastructure into the use cases. One App serves one API
// process.
type App struct {
	Config config.Config
	Models []string

	Scanner  ports.InvoiceScanner
	Quota    ports.QuotaService
	Invoices ports.InvoiceService
	Accounts ports.AccountAdmin
	Exporter *excel.Exporter

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, serverMetrics *metrics.HTTPServerMetrics) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	accountRepo := postgres.NewAccountRepository(db)
	invoiceRepo := postgres.NewInvoiceRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init image storage: %w", err)
	}

	policy := resilience.DefaultPolicy()
	policy.RetryMaxAttempts = cfg.RetryMaxAttempts
	policy.RetryBaseDelay = time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond
	policy.BreakerEnabled = cfg.BreakerEnabled
	executor := resilience.NewExecutor(policy, logger)

	publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubjectPrefix, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init event publisher: %w", err)
	}

	models, err := cfg.ResolveModels()
	if err != nil {
		return nil, fmt.Errorf("resolve model allow-list: %w", err)
	}
	var extractor ports.VisionExtractor = openrouter.New(
		cfg.OpenRouterURL,
		cfg.OpenRouterAPIKey,
		cfg.OpenRouterReferer,
		cfg.OpenRouterAppTitle,
		models,
		executor,
	)
	if serverMetrics != nil {
		extractor = &measuredExtractor{next: extractor, metrics: serverMetrics, service: "api"}
	}

	quotaUC := usecase.NewQuotaUseCase(accountRepo, publisher, logger)
	scanUC := usecase.NewScanUseCase(quotaUC, extractor, logger)
	invoiceUC := usecase.NewInvoiceUseCase(accountRepo, invoiceRepo, storage, publisher, logger)
	accountUC := usecase.NewAccountUseCase(accountRepo, logger)

	// Every replica listens without a queue group, so a save on any replica
	// drops the stale listing on all of them.
	invoices := newCachedInvoiceService(invoiceUC)
	go func() {
		err := publisher.SubscribeInvoiceSaved(ctx, "", func(_ context.Context, _, accountCode string) error {
			invoices.Invalidate(accountCode)
			return nil
		})
		if err != nil {
			logger.Warn("invoice event subscription ended", "error", err)
		}
	}()

	return &App{
		Config: cfg,
		Models: models,

		Scanner:  scanUC,
		Quota:    quotaUC,
		Invoices: invoices,
		Accounts: accountUC,
		Exporter: excel.New(),

		closeFn: func() {
			publisher.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// measuredExtractor records per-page extraction outcomes so the use case
// layer stays free of instruments.
type measuredExtractor struct {
	next    ports.VisionExtractor
	metrics *metrics.HTTPServerMetrics
	service string
}

func (e *measuredExtractor) Extract(ctx context.Context, image []byte, mimeType, model string) (*domain.InvoiceDraft, error) {
	start := time.Now()
	draft, err := e.next.Extract(ctx, image, mimeType, model)
	status := "success"
	if err != nil {
		status = "failed"
	}
	e.metrics.RecordPageExtraction(e.service, model, status, time.Since(start))
	return draft, err
}
