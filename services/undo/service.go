package undo

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/retry"
	"github.com/customeros/mailclean/internal/tracing"
	"github.com/customeros/mailclean/internal/utils"
)

// Retention is how long an execution stays revertible.
const Retention = time.Hour

const (
	StatusReverted = "reverted"
	StatusPartial  = "partially_reverted"
)

type undoService struct {
	log        logger.Logger
	provider   interfaces.MailProvider
	records    interfaces.UndoRepository
	executions interfaces.ExecutionRepository
	audit      interfaces.AuditService
	retry      retry.Policy
	locks      *utils.KeyedMutex
	now        func() time.Time
}

func NewUndoService(log logger.Logger, provider interfaces.MailProvider, records interfaces.UndoRepository, executions interfaces.ExecutionRepository, audit interfaces.AuditService, policy retry.Policy, now func() time.Time) interfaces.UndoService {
	if now == nil {
		now = time.Now
	}
	if policy.Log == nil {
		policy.Log = log
	}
	return &undoService{
		log:        log,
		provider:   provider,
		records:    records,
		executions: executions,
		audit:      audit,
		retry:      policy,
		locks:      utils.NewKeyedMutex(),
		now:        now,
	}
}

// Register stores record as active for the retention window starting now.
func (s *undoService) Register(ctx context.Context, record *models.UndoRecord) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "UndoService.Register")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagExecution(span, record.ExecutionID)

	now := s.now().UTC()
	record.State = enum.UndoActive
	record.CreatedAt = now
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(Retention)
	if err := s.records.Create(ctx, record); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *undoService) Revert(ctx context.Context, executionID string) (*dto.UndoResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "UndoService.Revert")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagExecution(span, executionID)

	unlock := s.locks.Lock(executionID)
	defer unlock()

	result, err := s.revert(ctx, executionID)
	details := map[string]interface{}{"execution_id": executionID}
	outcome := enum.OutcomeSuccess
	switch {
	case err != nil:
		tracing.TraceErr(span, err)
		details["error"] = err.Error()
		details["kind"] = mailerrors.Kind(err)
		outcome = enum.OutcomeFailure
		if errors.Is(err, mailerrors.ErrUndoNotAvailable) || errors.Is(err, mailerrors.ErrNotFound) || errors.Is(err, mailerrors.ErrInvalidInput) {
			outcome = enum.OutcomeRejected
		}
	case result.Status == StatusPartial:
		outcome = enum.OutcomePartial
	}
	if result != nil {
		details["restored_count"] = result.RestoredCount
		details["pending_count"] = result.PendingCount
		details["status"] = result.Status
	}
	if _, auditErr := s.audit.Append(context.WithoutCancel(ctx), enum.AuditUndo, outcome, details); auditErr != nil {
		tracing.TraceErr(span, auditErr)
		return nil, auditErr
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *undoService) revert(ctx context.Context, executionID string) (*dto.UndoResult, error) {
	if executionID == "" {
		return nil, errors.Wrap(mailerrors.ErrInvalidInput, "execution id is required")
	}
	record, err := s.records.GetByID(ctx, executionID)
	if err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			if _, execErr := s.executions.GetByID(ctx, executionID); execErr != nil {
				return nil, execErr
			}
			return nil, errors.Wrapf(mailerrors.ErrUndoNotAvailable, "execution %s has no undo record", executionID)
		}
		return nil, err
	}

	now := s.now().UTC()
	state := record.EffectiveState(now)
	if state != enum.UndoActive {
		if state == enum.UndoExpired && record.State == enum.UndoActive {
			if _, err := s.records.TransitionState(ctx, executionID, enum.UndoActive, enum.UndoExpired, now); err != nil {
				return nil, err
			}
		}
		return nil, errors.Wrapf(mailerrors.ErrUndoNotAvailable, "undo for execution %s is %s", executionID, state)
	}

	// Claim the record before touching the provider so a concurrent revert
	// from another process cannot replay it a second time.
	claimed, err := s.records.TransitionState(ctx, executionID, enum.UndoActive, enum.UndoConsumed, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, errors.Wrapf(mailerrors.ErrUndoNotAvailable, "undo for execution %s is no longer active", executionID)
	}

	restored, missing, pending, err := s.replay(ctx, record)
	pctx := context.WithoutCancel(ctx)
	if err != nil && restored == 0 {
		// nothing was reverted, release the claim so the user can retry
		if _, tErr := s.records.Reopen(pctx, executionID, record.MessageIDs, s.now().UTC()); tErr != nil {
			s.log.Errorf("release undo claim for %s: %v", executionID, tErr)
		}
		return nil, err
	}
	if err != nil {
		// the unrestored messages stay revertible and the execution is not
		// reverted until they are
		if _, tErr := s.records.Reopen(pctx, executionID, pending, s.now().UTC()); tErr != nil {
			return nil, tErr
		}
		s.log.Warnf("undo of %s stopped after %d messages: %v", executionID, restored, err)
		return &dto.UndoResult{
			ExecutionID:   executionID,
			Status:        StatusPartial,
			RestoredCount: restored,
			PendingCount:  len(pending),
			Message:       fmt.Sprintf("%s: %d of %d messages restored, %d can be retried", record.Description, restored, len(record.MessageIDs), len(pending)),
		}, nil
	}
	if restored == 0 && missing > 0 {
		if _, tErr := s.records.TransitionState(pctx, executionID, enum.UndoConsumed, enum.UndoFailed, s.now().UTC()); tErr != nil {
			return nil, tErr
		}
		return nil, errors.Wrapf(mailerrors.ErrUndoNotAvailable, "messages of execution %s are no longer in trash", executionID)
	}

	if err := s.executions.MarkReverted(pctx, executionID, s.now().UTC()); err != nil {
		return nil, err
	}

	result := &dto.UndoResult{
		ExecutionID:   executionID,
		Status:        StatusReverted,
		RestoredCount: restored,
		Message:       record.Description,
	}
	if missing > 0 {
		result.Status = StatusPartial
		result.Message = fmt.Sprintf("%s: %d of %d messages restored", record.Description, restored, len(record.MessageIDs))
	}
	return result, nil
}

// replay applies the inverse operation. missing counts messages the provider
// no longer has; on error pending holds the ids not yet restored.
func (s *undoService) replay(ctx context.Context, record *models.UndoRecord) (restored, missing int, pending []string, err error) {
	ids := []string(record.MessageIDs)
	switch record.InverseKind {
	case enum.InverseRemoveLabel:
		for start := 0; start < len(ids); start += interfaces.MaxBatchSize {
			chunk := ids[start:min(start+interfaces.MaxBatchSize, len(ids))]
			if ctx.Err() != nil {
				return restored, missing, ids[start:], ctx.Err()
			}
			if err := s.retry.Do(ctx, func(ctx context.Context) error {
				return s.provider.ModifyMessages(ctx, chunk, record.AddLabelIDs, record.RemoveLabelIDs)
			}); err != nil {
				return restored, missing, ids[start:], err
			}
			restored += len(chunk)
		}
	case enum.InverseUntrash:
		for i, id := range ids {
			if ctx.Err() != nil {
				return restored, missing, ids[i:], ctx.Err()
			}
			err := s.retry.Do(ctx, func(ctx context.Context) error {
				return s.provider.UntrashMessage(ctx, id)
			})
			switch {
			case err == nil:
				restored++
			case errors.Is(err, mailerrors.ErrNotFound):
				missing++
			default:
				return restored, missing, ids[i:], err
			}
		}
	default:
		return 0, 0, nil, errors.Wrapf(mailerrors.ErrUndoNotAvailable, "unknown inverse %q", record.InverseKind)
	}
	return restored, missing, nil, nil
}

func (s *undoService) Status(ctx context.Context, executionID string) (*dto.UndoStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "UndoService.Status")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagExecution(span, executionID)

	record, err := s.records.GetByID(ctx, executionID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	now := s.now().UTC()
	state := record.EffectiveState(now)
	status := &dto.UndoStatus{
		ExecutionID: executionID,
		Status:      state.String(),
		Description: record.Description,
	}
	if state == enum.UndoActive {
		status.ExpiresInSeconds = int(math.Ceil(record.ExpiresAt.Sub(now).Seconds()))
	}
	return status, nil
}

// Compact drops consumed, failed and expired records.
func (s *undoService) Compact(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "UndoService.Compact")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	n, err := s.records.DeleteInactive(ctx, s.now().UTC())
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	if n > 0 {
		s.log.Infof("compacted %d undo records", n)
	}
	return n, nil
}
