package repository

import (
	"context"
	"slices"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailclean/interfaces"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
)

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) interfaces.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "auditRepository.Append")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		tracing.TraceErr(span, err)
		return mailerrors.Storage(err, "append audit entry")
	}
	span.LogKV("auditEntryId", entry.ID)
	return nil
}

func (r *auditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "auditRepository.List")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "filter", filter)

	query := r.db.WithContext(ctx).Model(&models.AuditEntry{})
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.From != nil {
		query = query.Where("timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("timestamp < ?", *filter.To)
	}
	if filter.AfterID != nil {
		query = query.Where("id > ?", *filter.AfterID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	order := "timestamp ASC, id ASC"
	if filter.Tail() {
		order = "timestamp DESC, id DESC"
	}

	var entries []models.AuditEntry
	if err := query.Order(order).Find(&entries).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, mailerrors.Storage(err, "list audit entries")
	}
	if filter.Tail() {
		slices.Reverse(entries)
	}
	return entries, nil
}
