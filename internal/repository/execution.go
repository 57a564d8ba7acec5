package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
)

type executionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) interfaces.ExecutionRepository {
	return &executionRepository{db: db}
}

func (r *executionRepository) Create(ctx context.Context, record *models.ExecutionRecord) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "executionRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		tracing.TraceErr(span, err)
		return mailerrors.Storage(err, "create execution record")
	}
	tracing.TagExecution(span, record.ID)
	return nil
}

func (r *executionRepository) GetByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "executionRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagExecution(span, id)

	var record models.ExecutionRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(mailerrors.ErrNotFound, "execution %s", id)
		}
		tracing.TraceErr(span, err)
		return nil, mailerrors.Storage(err, "get execution record")
	}
	return &record, nil
}

func (r *executionRepository) FindSucceeded(ctx context.Context, target string, action enum.Action) (*models.ExecutionRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "executionRepository.FindSucceeded")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("target", target, "action", action.String())

	var records []models.ExecutionRecord
	err := r.db.WithContext(ctx).
		Where("target = ? AND action = ? AND state = ? AND reverted = ?",
			target, action, enum.ExecutionSucceeded, false).
		Order("created_at DESC").
		Limit(1).
		Find(&records).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, mailerrors.Storage(err, "find succeeded execution")
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (r *executionRepository) MarkReverted(ctx context.Context, id string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "executionRepository.MarkReverted")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagExecution(span, id)

	result := r.db.WithContext(ctx).Model(&models.ExecutionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reverted":    true,
			"reverted_at": at,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return mailerrors.Storage(result.Error, "mark execution reverted")
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(mailerrors.ErrNotFound, "execution %s", id)
	}
	return nil
}
