package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailclean/internal/enum"
	"github.com/customeros/mailclean/internal/models"
)

type SenderStatsRepository interface {
	// ReplaceSnapshot assigns run.Version and swaps the stored senders in one
	// transaction.
	ReplaceSnapshot(ctx context.Context, run *models.ScanRun, senders []models.SenderStats) error
	GetLatestRun(ctx context.Context) (*models.ScanRun, error)
	ListByVersion(ctx context.Context, version int64) ([]models.SenderStats, error)
}

type PlanRepository interface {
	Create(ctx context.Context, plan *models.Plan) error
	GetByID(ctx context.Context, id string) (*models.Plan, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type ExecutionRepository interface {
	Create(ctx context.Context, record *models.ExecutionRecord) error
	GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	// FindSucceeded returns the non-reverted succeeded record for the
	// (target, action) pair, or nil when there is none. Plans do not scope it.
	FindSucceeded(ctx context.Context, target string, action enum.Action) (*models.ExecutionRecord, error)
	MarkReverted(ctx context.Context, id string, at time.Time) error
}

type UndoRepository interface {
	Create(ctx context.Context, record *models.UndoRecord) error
	GetByID(ctx context.Context, executionID string) (*models.UndoRecord, error)
	// TransitionState moves the record from one state to another and reports
	// whether this call won the transition.
	TransitionState(ctx context.Context, executionID string, from, to enum.UndoState, at time.Time) (bool, error)
	// Reopen moves a consumed record back to active with messageIDs as its
	// remaining targets and reports whether the record was consumed.
	Reopen(ctx context.Context, executionID string, messageIDs []string, at time.Time) (bool, error)
	DeleteInactive(ctx context.Context, now time.Time) (int64, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}
