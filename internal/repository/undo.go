package repository

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
)

type undoRepository struct {
	db *gorm.DB
}

func NewUndoRepository(db *gorm.DB) interfaces.UndoRepository {
	return &undoRepository{db: db}
}

func (r *undoRepository) Create(ctx context.Context, record *models.UndoRecord) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "undoRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagExecution(span, record.ExecutionID)

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		tracing.TraceErr(span, err)
		return mailerrors.Storage(err, "create undo record")
	}
	return nil
}

func (r *undoRepository) GetByID(ctx context.Context, executionID string) (*models.UndoRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "undoRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagExecution(span, executionID)

	var record models.UndoRecord
	err := r.db.WithContext(ctx).First(&record, "execution_id = ?", executionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(mailerrors.ErrNotFound, "undo record %s", executionID)
		}
		tracing.TraceErr(span, err)
		return nil, mailerrors.Storage(err, "get undo record")
	}
	return &record, nil
}

func (r *undoRepository) TransitionState(ctx context.Context, executionID string, from, to enum.UndoState, at time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "undoRepository.TransitionState")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagExecution(span, executionID)
	span.LogKV("from", from.String(), "to", to.String())

	result := r.db.WithContext(ctx).Model(&models.UndoRecord{}).
		Where("execution_id = ? AND state = ?", executionID, from).
		Updates(map[string]interface{}{
			"state":      to,
			"updated_at": at,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, mailerrors.Storage(result.Error, "transition undo state")
	}
	return result.RowsAffected == 1, nil
}

func (r *undoRepository) Reopen(ctx context.Context, executionID string, messageIDs []string, at time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "undoRepository.Reopen")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagExecution(span, executionID)
	span.LogKV("messages", len(messageIDs))

	result := r.db.WithContext(ctx).Model(&models.UndoRecord{}).
		Where("execution_id = ? AND state = ?", executionID, enum.UndoConsumed).
		Updates(map[string]interface{}{
			"state":       enum.UndoActive,
			"message_ids": pq.StringArray(messageIDs),
			"updated_at":  at,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, mailerrors.Storage(result.Error, "reopen undo record")
	}
	return result.RowsAffected == 1, nil
}

func (r *undoRepository) DeleteInactive(ctx context.Context, now time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "undoRepository.DeleteInactive")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	result := r.db.WithContext(ctx).
		Where("state <> ? OR expires_at <= ?", enum.UndoActive, now).
		Delete(&models.UndoRecord{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, mailerrors.Storage(result.Error, "delete inactive undo records")
	}
	span.LogKV("deleted", result.RowsAffected)
	return result.RowsAffected, nil
}
