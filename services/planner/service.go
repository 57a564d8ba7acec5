package planner

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
	"github.com/customeros/mailclean/services/scorer"
)

type Config struct {
	MaxMessages int
	PlanTTL     time.Duration
}

type plannerService struct {
	log    logger.Logger
	cfg    Config
	stats  interfaces.StatsStore
	scorer *scorer.Scorer
	plans  interfaces.PlanRepository
	audit  interfaces.AuditService
	now    func() time.Time
	newID  func() string
}

func NewPlannerService(log logger.Logger, cfg Config, stats interfaces.StatsStore, sc *scorer.Scorer, plans interfaces.PlanRepository, audit interfaces.AuditService, now func() time.Time) interfaces.PlannerService {
	if now == nil {
		now = time.Now
	}
	return &plannerService{
		log:    log,
		cfg:    cfg,
		stats:  stats,
		scorer: sc,
		plans:  plans,
		audit:  audit,
		now:    now,
		newID:  func() string { return uuid.New().String() },
	}
}

// BuildEntries scores every sender of the snapshot and returns the actionable
// entries in plan order. It depends only on the snapshot and the config.
func BuildEntries(snapshot *models.Snapshot, sc *scorer.Scorer, maxMessages int) models.PlanEntries {
	reference := snapshot.ScannedAt()
	entries := models.PlanEntries{}
	snapshot.Range(func(sender models.SenderStats) bool {
		score := sc.Score(sender, reference)
		if score.Action == enum.ActionNone {
			return true
		}
		affected := sender.TotalCount
		if maxMessages > 0 && affected > maxMessages {
			affected = maxMessages
		}
		entries = append(entries, models.PlanEntry{
			SenderEmail:    sender.Email,
			Action:         score.Action,
			EmailsAffected: affected,
			Confidence:     score.Confidence,
			RiskScore:      score.Risk,
		})
		return true
	})

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.RiskScore != b.RiskScore {
			return a.RiskScore < b.RiskScore
		}
		if a.EmailsAffected != b.EmailsAffected {
			return a.EmailsAffected > b.EmailsAffected
		}
		return a.SenderEmail < b.SenderEmail
	})
	return entries
}

func (s *plannerService) Generate(ctx context.Context) (*models.Plan, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PlannerService.Generate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	snapshot := s.stats.Current()
	entries := BuildEntries(snapshot, s.scorer, s.cfg.MaxMessages)

	total, percent := Summarize(entries, snapshot.Run.TotalMessages)

	createdAt := s.now().UTC()
	plan := &models.Plan{
		ID:                      s.newID(),
		CreatedAt:               createdAt,
		ExpiresAt:               createdAt.Add(s.cfg.PlanTTL),
		SnapshotVersion:         snapshot.Version(),
		Entries:                 entries,
		TotalEmails:             total,
		EstimatedCleanupPercent: percent,
	}
	tracing.TagPlan(span, plan.ID)

	if err := s.plans.Create(ctx, plan); err != nil {
		tracing.TraceErr(span, err)
		s.appendAudit(ctx, enum.OutcomeFailure, map[string]interface{}{
			"plan_id": plan.ID,
			"error":   err.Error(),
		})
		return nil, err
	}

	if err := s.appendAudit(ctx, enum.OutcomeSuccess, map[string]interface{}{
		"plan_id":          plan.ID,
		"snapshot_version": plan.SnapshotVersion,
		"entries":          len(plan.Entries),
		"total_emails":     plan.TotalEmails,
	}); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.log.Infof("Generated plan %s with %d entries affecting %d emails", plan.ID, len(plan.Entries), plan.TotalEmails)
	return plan, nil
}

func (s *plannerService) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PlannerService.GetPlan")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagPlan(span, planID)

	if planID == "" {
		return nil, errors.Wrap(mailerrors.ErrInvalidInput, "plan_id is required")
	}
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return plan, nil
}

func (s *plannerService) appendAudit(ctx context.Context, outcome enum.AuditOutcome, details map[string]interface{}) error {
	_, err := s.audit.Append(ctx, enum.AuditPlanGenerated, outcome, details)
	return err
}

// Summarize returns the emails the entries affect and that count as a
// percentage of mailboxTotal, rounded to one decimal.
func Summarize(entries models.PlanEntries, mailboxTotal int) (int, float64) {
	total := 0
	for _, entry := range entries {
		total += entry.EmailsAffected
	}
	if mailboxTotal <= 0 {
		return total, 0
	}
	return total, math.Round(float64(total)/float64(mailboxTotal)*1000) / 10
}
