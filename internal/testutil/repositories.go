package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
)

// SenderStatsRepository keeps every scan in memory.
type SenderStatsRepository struct {
	mu      sync.Mutex
	runs    []models.ScanRun
	senders map[int64][]models.SenderStats
	Err     error
}

func NewSenderStatsRepository() *SenderStatsRepository {
	return &SenderStatsRepository{senders: make(map[int64][]models.SenderStats)}
}

func (r *SenderStatsRepository) ReplaceSnapshot(_ context.Context, run *models.ScanRun, senders []models.SenderStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return mailerrors.Storage(r.Err, "replace sender snapshot")
	}
	run.Version = int64(len(r.runs)) + 1
	run.SendersCount = len(senders)
	stored := make([]models.SenderStats, len(senders))
	copy(stored, senders)
	for i := range stored {
		stored[i].ScanVersion = run.Version
	}
	r.runs = append(r.runs, *run)
	r.senders[run.Version] = stored
	return nil
}

func (r *SenderStatsRepository) GetLatestRun(_ context.Context) (*models.ScanRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, mailerrors.Storage(r.Err, "get latest scan run")
	}
	if len(r.runs) == 0 {
		return nil, nil
	}
	run := r.runs[len(r.runs)-1]
	return &run, nil
}

func (r *SenderStatsRepository) ListByVersion(_ context.Context, version int64) ([]models.SenderStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, mailerrors.Storage(r.Err, "list sender stats")
	}
	out := make([]models.SenderStats, len(r.senders[version]))
	copy(out, r.senders[version])
	return out, nil
}

type PlanRepository struct {
	mu    sync.Mutex
	plans map[string]models.Plan
}

func NewPlanRepository() *PlanRepository {
	return &PlanRepository{plans: make(map[string]models.Plan)}
}

func (r *PlanRepository) Create(_ context.Context, plan *models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *plan
	stored.Entries = append(models.PlanEntries{}, plan.Entries...)
	r.plans[plan.ID] = stored
	return nil
}

func (r *PlanRepository) GetByID(_ context.Context, id string) (*models.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[id]
	if !ok {
		return nil, errors.Wrapf(mailerrors.ErrNotFound, "plan %s", id)
	}
	plan.Entries = append(models.PlanEntries{}, plan.Entries...)
	return &plan, nil
}

func (r *PlanRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, plan := range r.plans {
		if plan.Expired(now) {
			delete(r.plans, id)
			n++
		}
	}
	return n, nil
}

type ExecutionRepository struct {
	mu      sync.Mutex
	records map[string]models.ExecutionRecord
	order   []string
	Err     error
}

func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{records: make(map[string]models.ExecutionRecord)}
}

func (r *ExecutionRepository) Create(_ context.Context, record *models.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return mailerrors.Storage(r.Err, "create execution record")
	}
	if record.ID == "" {
		return mailerrors.Storage(errors.New("missing primary key"), "create execution record")
	}
	r.records[record.ID] = *record
	r.order = append(r.order, record.ID)
	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return nil, errors.Wrapf(mailerrors.ErrNotFound, "execution %s", id)
	}
	return &record, nil
}

func (r *ExecutionRepository) FindSucceeded(_ context.Context, target string, action enum.Action) (*models.ExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		record := r.records[r.order[i]]
		if record.Target == target && record.Action == action &&
			record.State == enum.ExecutionSucceeded && !record.Reverted {
			return &record, nil
		}
	}
	return nil, nil
}

func (r *ExecutionRepository) MarkReverted(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[id]
	if !ok {
		return errors.Wrapf(mailerrors.ErrNotFound, "execution %s", id)
	}
	record.Reverted = true
	record.RevertedAt = &at
	r.records[id] = record
	return nil
}

// All returns every record in creation order.
func (r *ExecutionRepository) All() []models.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ExecutionRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

type UndoRepository struct {
	mu      sync.Mutex
	records map[string]models.UndoRecord
}

func NewUndoRepository() *UndoRepository {
	return &UndoRepository{records: make(map[string]models.UndoRecord)}
}

func (r *UndoRepository) Create(_ context.Context, record *models.UndoRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[record.ExecutionID]; exists {
		return mailerrors.Storage(errors.New("duplicate key"), "create undo record")
	}
	r.records[record.ExecutionID] = cloneUndo(*record)
	return nil
}

func (r *UndoRepository) GetByID(_ context.Context, executionID string) (*models.UndoRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[executionID]
	if !ok {
		return nil, errors.Wrapf(mailerrors.ErrNotFound, "undo record %s", executionID)
	}
	record = cloneUndo(record)
	return &record, nil
}

func (r *UndoRepository) TransitionState(_ context.Context, executionID string, from, to enum.UndoState, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[executionID]
	if !ok || record.State != from {
		return false, nil
	}
	record.State = to
	record.UpdatedAt = at
	r.records[executionID] = record
	return true, nil
}

func (r *UndoRepository) Reopen(_ context.Context, executionID string, messageIDs []string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[executionID]
	if !ok || record.State != enum.UndoConsumed {
		return false, nil
	}
	record.State = enum.UndoActive
	record.MessageIDs = append(record.MessageIDs[:0:0], messageIDs...)
	record.UpdatedAt = at
	r.records[executionID] = record
	return true, nil
}

func (r *UndoRepository) DeleteInactive(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, record := range r.records {
		if record.EffectiveState(now) != enum.UndoActive {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *UndoRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func cloneUndo(record models.UndoRecord) models.UndoRecord {
	record.MessageIDs = append(record.MessageIDs[:0:0], record.MessageIDs...)
	record.AddLabelIDs = append(record.AddLabelIDs[:0:0], record.AddLabelIDs...)
	record.RemoveLabelIDs = append(record.RemoveLabelIDs[:0:0], record.RemoveLabelIDs...)
	return record
}

type AuditRepository struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	nextID  int64
	Err     error
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Append(_ context.Context, entry *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return mailerrors.Storage(r.Err, "append audit entry")
	}
	r.nextID++
	entry.ID = r.nextID
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *AuditRepository) List(_ context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if filter.EventType != "" && entry.EventType != filter.EventType {
			continue
		}
		if filter.From != nil && entry.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !entry.Timestamp.Before(*filter.To) {
			continue
		}
		if filter.AfterID != nil && entry.ID <= *filter.AfterID {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		if filter.Tail() {
			out = out[len(out)-filter.Limit:]
		} else {
			out = out[:filter.Limit]
		}
	}
	return out, nil
}

// Entries returns the entries in append order.
func (r *AuditRepository) Entries() []models.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuditEntry(nil), r.entries...)
}

// CountByType counts entries of one event type.
func (r *AuditRepository) CountByType(eventType enum.AuditEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, entry := range r.entries {
		if entry.EventType == eventType {
			n++
		}
	}
	return n
}
