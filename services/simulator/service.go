package simulator

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
	"github.com/customeros/mailclean/internal/utils"
)

type Config struct {
	SuppressionLabel string
}

// simulatorService never talks to the mail provider.
type simulatorService struct {
	log   logger.Logger
	cfg   Config
	plans interfaces.PlanRepository
	stats interfaces.StatsStore
	audit interfaces.AuditService
	now   func() time.Time
}

func NewSimulatorService(log logger.Logger, cfg Config, plans interfaces.PlanRepository, stats interfaces.StatsStore, audit interfaces.AuditService, now func() time.Time) interfaces.SimulatorService {
	if now == nil {
		now = time.Now
	}
	return &simulatorService{log: log, cfg: cfg, plans: plans, stats: stats, audit: audit, now: now}
}

func (s *simulatorService) Simulate(ctx context.Context, planID string) (*dto.SimulationReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SimulatorService.Simulate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagPlan(span, planID)

	plan, err := s.loadPlan(ctx, planID)
	if err != nil {
		tracing.TraceErr(span, err)
		outcome := enum.OutcomeRejected
		if errors.Is(err, mailerrors.ErrStorageFailure) {
			outcome = enum.OutcomeFailure
		}
		if _, auditErr := s.audit.Append(ctx, enum.AuditSimulationRun, outcome, map[string]interface{}{
			"plan_id": planID,
			"error":   err.Error(),
		}); auditErr != nil {
			return nil, auditErr
		}
		return nil, err
	}

	report := Synthesize(plan, s.stats.Current(), s.cfg.SuppressionLabel)

	if _, err := s.audit.Append(ctx, enum.AuditSimulationRun, enum.OutcomeSuccess, map[string]interface{}{
		"plan_id":         plan.ID,
		"affected_emails": report.AffectedEmails,
		"api_calls":       len(report.APICalls),
	}); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return report, nil
}

func (s *simulatorService) loadPlan(ctx context.Context, planID string) (*models.Plan, error) {
	if planID == "" {
		return nil, errors.Wrap(mailerrors.ErrInvalidPlan, "plan_id is required")
	}
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return nil, errors.Wrapf(mailerrors.ErrInvalidPlan, "plan %s does not exist", planID)
		}
		return nil, err
	}
	if plan.Expired(s.now()) {
		return nil, errors.Wrapf(mailerrors.ErrInvalidPlan, "plan %s expired at %s", planID, plan.ExpiresAt.Format(time.RFC3339))
	}
	return plan, nil
}

// Synthesize describes the provider calls an execution of plan would make,
// in plan order. The snapshot supplies each sender's unsubscribe directive.
func Synthesize(plan *models.Plan, snapshot *models.Snapshot, suppressionLabel string) *dto.SimulationReport {
	report := &dto.SimulationReport{
		PlanID:         plan.ID,
		AffectedEmails: plan.TotalEmails,
		LabelsCreated:  []string{},
		APICalls:       []string{},
	}
	labelPlanned := false

	for _, entry := range plan.Entries {
		switch entry.Action {
		case enum.ActionUnsubscribe:
			if sender, ok := snapshot.SenderByEmail(entry.SenderEmail); ok {
				if url := utils.ExtractHTTPUnsubscribeURL(sender.UnsubscribeDirective); url != "" {
					if sender.OneClick {
						report.APICalls = append(report.APICalls, fmt.Sprintf("POST %s (one-click unsubscribe for %s)", url, entry.SenderEmail))
					} else {
						report.APICalls = append(report.APICalls, fmt.Sprintf("GET %s (unsubscribe link for %s)", url, entry.SenderEmail))
					}
				}
			}
			if !labelPlanned {
				report.APICalls = append(report.APICalls, fmt.Sprintf("labels.create %q", suppressionLabel))
				report.LabelsCreated = append(report.LabelsCreated, suppressionLabel)
				labelPlanned = true
			}
			for _, n := range chunkSizes(entry.EmailsAffected, interfaces.MaxBatchSize) {
				report.APICalls = append(report.APICalls, fmt.Sprintf("messages.batchModify %d messages from %s: add [%s] remove [INBOX]", n, entry.SenderEmail, suppressionLabel))
			}
		case enum.ActionDelete:
			if entry.EmailsAffected > 0 {
				report.APICalls = append(report.APICalls, fmt.Sprintf("messages.trash x%d for %s", entry.EmailsAffected, entry.SenderEmail))
			}
		case enum.ActionNone:
		}
	}
	report.LabelsCreated = utils.SortedUnique(report.LabelsCreated)
	return report
}

func chunkSizes(total, size int) []int {
	var out []int
	for total > 0 {
		n := total
		if n > size {
			n = size
		}
		out = append(out, n)
		total -= n
	}
	return out
}
