package services

import (
	"context"
	"net/http"
	"time"

	"github.com/customeros/mailclean/config"
	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/repository"
	"github.com/customeros/mailclean/internal/retry"
	"github.com/customeros/mailclean/services/audit"
	"github.com/customeros/mailclean/services/auth"
	"github.com/customeros/mailclean/services/events"
	"github.com/customeros/mailclean/services/executor"
	"github.com/customeros/mailclean/services/gmail"
	"github.com/customeros/mailclean/services/planner"
	"github.com/customeros/mailclean/services/scanner"
	"github.com/customeros/mailclean/services/scorer"
	"github.com/customeros/mailclean/services/simulator"
	"github.com/customeros/mailclean/services/stats"
	"github.com/customeros/mailclean/services/storage"
	"github.com/customeros/mailclean/services/undo"
	"github.com/customeros/mailclean/services/unsubscribe"
)

type Services struct {
	Provider  interfaces.MailProvider
	Publisher interfaces.AuditPublisher
	Audit     interfaces.AuditService
	Stats     interfaces.StatsStore
	Scorer    *scorer.Scorer
	Scanner   interfaces.ScannerService
	Planner   interfaces.PlannerService
	Simulator interfaces.SimulatorService
	Undo      interfaces.UndoService
	Executor  interfaces.ExecutorService
	Auth      interfaces.AuthService
	// Exporter is nil when no audit export bucket is configured.
	Exporter interfaces.AuditExporter

	MaxMessages int
}

func InitServices(ctx context.Context, cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	now := time.Now

	provider, err := initProvider(ctx, cfg.GmailConfig, log)
	if err != nil {
		return nil, err
	}

	publisher, err := events.NewAuditPublisher(cfg.RabbitMQConfig, log)
	if err != nil {
		return nil, err
	}

	auditService := audit.NewAuditService(log, repos.AuditRepository, publisher, now)

	statsStore := stats.NewStatsStore(log, repos.SenderStatsRepository)
	if err := statsStore.Load(ctx); err != nil {
		log.Warnf("Could not load the last scan, starting empty: %v", err)
	}

	sc := scorer.NewScorer(scorer.Config{
		UnsubscribeThreshold: cfg.PlanConfig.UnsubscribeThreshold,
		SuppressionLabel:     cfg.PlanConfig.SuppressionLabel,
	})

	retryPolicy := retry.Policy{
		MaxRetries: cfg.ExecutorConfig.MaxRetries,
		Min:        cfg.ExecutorConfig.BackoffMin,
		Max:        cfg.ExecutorConfig.BackoffMax,
		Log:        log,
	}
	undoService := undo.NewUndoService(log, provider, repos.UndoRepository, repos.ExecutionRepository, auditService, retryPolicy, now)

	unsubscriber := unsubscribe.NewHTTPUnsubscriber(log, &http.Client{}, cfg.ExecutorConfig.UnsubscribeTimeout)

	exporter, err := initExporter(cfg.StorageConfig, repos, log)
	if err != nil {
		return nil, err
	}

	return &Services{
		Provider:  provider,
		Publisher: publisher,
		Audit:     auditService,
		Stats:     statsStore,
		Scorer:    sc,
		Scanner: scanner.NewScannerService(log, scanner.Config{
			MaxMessages: cfg.ScanConfig.MaxMessages,
			Query:       cfg.ScanConfig.Query,
			Concurrency: cfg.ScanConfig.Concurrency,
			PageSize:    cfg.ScanConfig.PageSize,
		}, provider, statsStore, auditService, now),
		Planner: planner.NewPlannerService(log, planner.Config{
			MaxMessages: cfg.ExecutorConfig.MaxMessages,
			PlanTTL:     cfg.PlanConfig.PlanTTL,
		}, statsStore, sc, repos.PlanRepository, auditService, now),
		Simulator: simulator.NewSimulatorService(log, simulator.Config{
			SuppressionLabel: cfg.PlanConfig.SuppressionLabel,
		}, repos.PlanRepository, statsStore, auditService, now),
		Undo: undoService,
		Executor: executor.NewExecutorService(log, executor.Config{
			MaxMessages:         cfg.ExecutorConfig.MaxMessages,
			ProviderConcurrency: cfg.ExecutorConfig.ProviderConcurrency,
			MaxRetries:          cfg.ExecutorConfig.MaxRetries,
			BackoffMin:          cfg.ExecutorConfig.BackoffMin,
			BackoffMax:          cfg.ExecutorConfig.BackoffMax,
			SuppressionLabel:    cfg.PlanConfig.SuppressionLabel,
		}, provider, unsubscriber, statsStore, repos.PlanRepository, repos.ExecutionRepository, undoService, auditService, now),
		Auth:        auth.NewAuthService(log, provider, auditService),
		Exporter:    exporter,
		MaxMessages: cfg.ExecutorConfig.MaxMessages,
	}, nil
}

func initProvider(ctx context.Context, cfg *config.GmailConfig, log logger.Logger) (interfaces.MailProvider, error) {
	if !cfg.Configured() {
		log.Warn("Gmail credentials not set, mailbox operations will be rejected")
		return gmail.NewUnconfiguredProvider(), nil
	}
	svc, err := gmail.NewGmailService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return gmail.NewGmailProvider(log, svc, cfg.UserID, cfg.RequestsPerSec, cfg.Burst), nil
}

func initExporter(cfg *config.StorageConfig, repos *repository.Repositories, log logger.Logger) (interfaces.AuditExporter, error) {
	store, err := storage.NewStorageServiceFromConfig(cfg)
	if err != nil || store == nil {
		return nil, err
	}
	return storage.NewAuditExporter(log, repos.AuditRepository, store, cfg.Prefix), nil
}

// Close releases the event publisher connection.
func (s *Services) Close() error {
	if s.Publisher == nil {
		return nil
	}
	return s.Publisher.Close()
}
