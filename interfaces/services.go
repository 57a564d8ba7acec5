package interfaces

import (
	"context"

	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/internal/enum"
	"github.com/customeros/mailclean/internal/models"
)

type AuditService interface {
	Append(ctx context.Context, eventType enum.AuditEventType, outcome enum.AuditOutcome, details map[string]interface{}) (*models.AuditEntry, error)
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}

type StatsStore interface {
	Current() *models.Snapshot
	Load(ctx context.Context) error
	Replace(ctx context.Context, run *models.ScanRun, senders []models.SenderStats) (*models.Snapshot, error)
	ListSenders(category string, pageToken string, pageSize int) ([]models.SenderStats, string, error)
	GetSender(id string) (*models.SenderStats, error)
}

type ScannerService interface {
	Scan(ctx context.Context) (*models.ScanRun, error)
}

type PlannerService interface {
	Generate(ctx context.Context) (*models.Plan, error)
	GetPlan(ctx context.Context, planID string) (*models.Plan, error)
}

type SimulatorService interface {
	Simulate(ctx context.Context, planID string) (*dto.SimulationReport, error)
}

type ExecutorService interface {
	Execute(ctx context.Context, req dto.ExecuteRequest) (*models.ExecutionRecord, error)
	WipeCategory(ctx context.Context, category enum.Category) (*models.ExecutionRecord, error)
}

type UndoService interface {
	Register(ctx context.Context, record *models.UndoRecord) error
	Revert(ctx context.Context, executionID string) (*dto.UndoResult, error)
	Status(ctx context.Context, executionID string) (*dto.UndoStatus, error)
	Compact(ctx context.Context) (int64, error)
}

type AuthService interface {
	Status(ctx context.Context) (*dto.AuthStatus, error)
}
