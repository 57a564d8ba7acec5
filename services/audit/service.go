package audit

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type auditService struct {
	log       logger.Logger
	repo      interfaces.AuditRepository
	publisher interfaces.AuditPublisher
	now       func() time.Time
}

// NewAuditService builds the audit log. publisher may be nil.
func NewAuditService(log logger.Logger, repo interfaces.AuditRepository, publisher interfaces.AuditPublisher, now func() time.Time) interfaces.AuditService {
	if now == nil {
		now = time.Now
	}
	return &auditService{log: log, repo: repo, publisher: publisher, now: now}
}

func (s *auditService) Append(ctx context.Context, eventType enum.AuditEventType, outcome enum.AuditOutcome, details map[string]interface{}) (*models.AuditEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AuditService.Append")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("eventType", eventType.String(), "outcome", outcome.String())

	if !eventType.Valid() {
		return nil, errors.Wrapf(mailerrors.ErrInvalidInput, "unknown audit event type %q", eventType)
	}

	entry := &models.AuditEntry{
		EventType: eventType,
		Timestamp: s.now().UTC(),
		Details:   models.JSONMap(details),
		Outcome:   outcome,
	}
	if entry.Details == nil {
		entry.Details = models.JSONMap{}
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Failed to append %s audit entry: %v", eventType, err)
		return nil, err
	}

	s.publish(ctx, entry)
	return entry, nil
}

func (s *auditService) publish(ctx context.Context, entry *models.AuditEntry) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAuditEntry(ctx, entry); err != nil {
		s.log.Warnf("Failed to publish audit entry %d: %v", entry.ID, err)
	}
}

func (s *auditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AuditService.List")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if filter.EventType != "" && !filter.EventType.Valid() {
		return nil, errors.Wrapf(mailerrors.ErrInvalidInput, "unknown audit event type %q", filter.EventType)
	}
	if filter.Limit < 0 {
		return nil, errors.Wrap(mailerrors.ErrInvalidInput, "limit must not be negative")
	}
	if filter.AfterID != nil && *filter.AfterID < 0 {
		return nil, errors.Wrap(mailerrors.ErrInvalidInput, "after_id must not be negative")
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, errors.Wrap(mailerrors.ErrInvalidInput, "from must be before to")
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}

	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return entries, nil
}
