package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailclean/interfaces"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
)

type planRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) interfaces.PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) Create(ctx context.Context, plan *models.Plan) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "planRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagPlan(span, plan.ID)

	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		tracing.TraceErr(span, err)
		return mailerrors.Storage(err, "create plan")
	}
	return nil
}

func (r *planRepository) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "planRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagPlan(span, id)

	var plan models.Plan
	err := r.db.WithContext(ctx).First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(mailerrors.ErrNotFound, "plan %s", id)
		}
		tracing.TraceErr(span, err)
		return nil, mailerrors.Storage(err, "get plan")
	}
	return &plan, nil
}

func (r *planRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "planRepository.DeleteExpired")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	result := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Plan{})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, mailerrors.Storage(result.Error, "delete expired plans")
	}
	return result.RowsAffected, nil
}
