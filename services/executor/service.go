package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

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

const inboxLabel = "INBOX"

type Config struct {
	MaxMessages         int
	ProviderConcurrency int64
	MaxRetries          int
	BackoffMin          time.Duration
	BackoffMax          time.Duration
	SuppressionLabel    string
}

type executorService struct {
	log          logger.Logger
	cfg          Config
	provider     interfaces.MailProvider
	unsubscriber interfaces.Unsubscriber
	stats        interfaces.StatsStore
	plans        interfaces.PlanRepository
	executions   interfaces.ExecutionRepository
	undo         interfaces.UndoService
	audit        interfaces.AuditService
	locks        *utils.KeyedMutex
	sem          *semaphore.Weighted
	retry        retry.Policy
	now          func() time.Time
}

func NewExecutorService(
	log logger.Logger,
	cfg Config,
	provider interfaces.MailProvider,
	unsubscriber interfaces.Unsubscriber,
	stats interfaces.StatsStore,
	plans interfaces.PlanRepository,
	executions interfaces.ExecutionRepository,
	undo interfaces.UndoService,
	audit interfaces.AuditService,
	now func() time.Time,
) interfaces.ExecutorService {
	if now == nil {
		now = time.Now
	}
	if cfg.ProviderConcurrency <= 0 {
		cfg.ProviderConcurrency = 1
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = interfaces.MaxBatchSize
	}
	return &executorService{
		log:          log,
		cfg:          cfg,
		provider:     provider,
		unsubscriber: unsubscriber,
		stats:        stats,
		plans:        plans,
		executions:   executions,
		undo:         undo,
		audit:        audit,
		locks:        utils.NewKeyedMutex(),
		sem:          semaphore.NewWeighted(cfg.ProviderConcurrency),
		retry:        retry.Policy{MaxRetries: cfg.MaxRetries, Min: cfg.BackoffMin, Max: cfg.BackoffMax, Log: log},
		now:          now,
	}
}

// run is the in-flight state of one execution.
type run struct {
	record   *models.ExecutionRecord
	applied  []string
	inverse  *models.UndoRecord
	firstErr error
	more     bool
}

func (r *run) fail(err error) {
	if r.firstErr == nil {
		r.firstErr = err
	}
}

func (s *executorService) Execute(ctx context.Context, req dto.ExecuteRequest) (*models.ExecutionRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ExecutorService.Execute")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("target", req.TargetEmail, "action", req.Action.String(), "planId", req.PlanID)

	target := utils.NormalizeSender(req.TargetEmail)
	if target == "" || !req.Action.Executable() {
		err := errors.Wrapf(mailerrors.ErrInvalidInput, "cannot execute %q on %q", req.Action, req.TargetEmail)
		return nil, s.reject(ctx, span, req.TargetEmail, req.Action, req.PlanID, err)
	}
	if req.PlanID != "" {
		if err := s.checkPlan(ctx, req.PlanID); err != nil {
			if !errors.Is(err, mailerrors.ErrInvalidPlan) {
				tracing.TraceErr(span, err)
				return nil, err
			}
			return nil, s.reject(ctx, span, target, req.Action, req.PlanID, err)
		}
	}
	sender, ok := s.stats.Current().SenderByEmail(target)
	if !ok {
		err := errors.Wrapf(mailerrors.ErrNotFound, "sender %s", target)
		return nil, s.reject(ctx, span, target, req.Action, req.PlanID, err)
	}

	unlock := s.locks.Lock(target + "|" + req.Action.String())
	defer unlock()

	existing, err := s.executions.FindSucceeded(ctx, target, req.Action)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing != nil && !existing.Reverted {
		err := errors.Wrapf(mailerrors.ErrAlreadyExecuted, "execution %s already applied %s to %s", existing.ID, req.Action, target)
		return nil, s.reject(ctx, span, target, req.Action, req.PlanID, err)
	}

	r, err := s.newRun(target, req.Action, req.PlanID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	ids, more, err := s.discover(ctx, "from:"+target, nil)
	r.more = more
	if err != nil {
		r.fail(err)
	} else {
		r.record.TargetedCount = len(ids)
		switch req.Action {
		case enum.ActionUnsubscribe:
			directive, oneClick := sender.UnsubscribeDirective, sender.OneClick
			if override := strings.TrimSpace(req.ListUnsubscribe); override != "" {
				directive, oneClick = override, false
			}
			s.unsubscribe(ctx, r, directive, oneClick, ids)
		case enum.ActionDelete:
			s.trash(ctx, r, ids)
		}
	}

	return s.finish(ctx, span, r)
}

func (s *executorService) WipeCategory(ctx context.Context, category enum.Category) (*models.ExecutionRecord, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ExecutorService.WipeCategory")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	target := models.CategoryTargetPrefix + category.String()
	labelID := category.LabelID()
	if labelID == "" {
		err := errors.Wrapf(mailerrors.ErrInvalidInput, "unknown category %q", category)
		return nil, s.reject(ctx, span, target, enum.ActionDelete, "", err)
	}

	unlock := s.locks.Lock(target + "|" + enum.ActionDelete.String())
	defer unlock()

	r, err := s.newRun(target, enum.ActionDelete, "")
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	ids, more, err := s.discover(ctx, "", []string{labelID})
	r.more = more
	if err != nil {
		r.fail(err)
	} else {
		r.record.TargetedCount = len(ids)
		s.trash(ctx, r, ids)
	}
	return s.finish(ctx, span, r)
}

// checkPlan fails with ErrInvalidPlan unless planID names a stored plan that
// has not expired.
func (s *executorService) checkPlan(ctx context.Context, planID string) error {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, mailerrors.ErrNotFound) {
			return errors.Wrapf(mailerrors.ErrInvalidPlan, "plan %s does not exist", planID)
		}
		return err
	}
	if plan.Expired(s.now()) {
		return errors.Wrapf(mailerrors.ErrInvalidPlan, "plan %s expired at %s", planID, plan.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func (s *executorService) newRun(target string, action enum.Action, planID string) (*run, error) {
	id, err := utils.GenerateID("exec")
	if err != nil {
		return nil, errors.Wrap(err, "generate execution id")
	}
	return &run{record: &models.ExecutionRecord{
		ID:     id,
		Target: target,
		Action: action,
		PlanID: planID,
	}}, nil
}

// discover lists up to MaxMessages ids matching query and labelIDs. more is
// true when the provider holds further matches beyond the cap.
func (s *executorService) discover(ctx context.Context, query string, labelIDs []string) ([]string, bool, error) {
	var ids []string
	pageToken := ""
	for {
		remaining := s.cfg.MaxMessages - len(ids)
		var page *dto.MessagePage
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			page, err = s.provider.ListMessages(ctx, query, labelIDs, pageToken, int64(min(remaining, interfaces.MaxBatchSize)))
			return err
		})
		if err != nil {
			return ids, false, err
		}
		for _, id := range page.IDs {
			if len(ids) == s.cfg.MaxMessages {
				return ids, true, nil
			}
			ids = append(ids, id)
		}
		if page.NextPageToken == "" {
			return ids, false, nil
		}
		if len(ids) >= s.cfg.MaxMessages {
			return ids, true, nil
		}
		pageToken = page.NextPageToken
	}
}

func (s *executorService) unsubscribe(ctx context.Context, r *run, directive string, oneClick bool, ids []string) {
	if utils.ExtractHTTPUnsubscribeURL(directive) != "" {
		outcome, err := s.unsubscriber.Unsubscribe(ctx, directive, oneClick)
		if err != nil {
			s.log.Warnf("unsubscribe request for %s failed: %v", r.record.Target, err)
			r.fail(err)
		} else {
			r.record.Unsubscribed = true
			s.log.Infof("unsubscribed %s via %s %s (%d)", r.record.Target, outcome.Method, outcome.URL, outcome.StatusCode)
		}
	} else if mailto := utils.ExtractMailtoUnsubscribe(directive); mailto != "" {
		// mail based unsubscribe is not sent; the label still suppresses the sender
		s.log.Infof("%s only offers %s, skipping unsubscribe request", r.record.Target, mailto)
	}
	if len(ids) == 0 {
		return
	}

	var labelID string
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		labelID, err = s.provider.EnsureLabel(ctx, s.cfg.SuppressionLabel)
		return err
	})
	if err != nil {
		r.fail(err)
		return
	}

	add, remove := []string{labelID}, []string{inboxLabel}
	for _, chunk := range utils.Chunk(ids, interfaces.MaxBatchSize) {
		if ctx.Err() != nil {
			r.fail(ctx.Err())
			break
		}
		err := s.call(ctx, func(ctx context.Context) error {
			return s.provider.ModifyMessages(ctx, chunk, add, remove)
		})
		if err != nil {
			r.fail(err)
			continue
		}
		r.applied = append(r.applied, chunk...)
	}

	r.inverse = &models.UndoRecord{
		InverseKind:    enum.InverseRemoveLabel,
		AddLabelIDs:    remove,
		RemoveLabelIDs: add,
		Description:    fmt.Sprintf("remove label %q and restore INBOX on messages from %s", s.cfg.SuppressionLabel, r.record.Target),
	}
}

func (s *executorService) trash(ctx context.Context, r *run, ids []string) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(int(s.cfg.ProviderConcurrency))
	for _, id := range ids {
		if ctx.Err() != nil {
			mu.Lock()
			r.fail(ctx.Err())
			mu.Unlock()
			break
		}
		id := id
		g.Go(func() error {
			err := s.call(ctx, func(ctx context.Context) error {
				return s.provider.TrashMessage(ctx, id)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.fail(errors.Wrapf(err, "trash %s", id))
				return nil
			}
			r.applied = append(r.applied, id)
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(r.applied)

	r.inverse = &models.UndoRecord{
		InverseKind: enum.InverseUntrash,
		Description: fmt.Sprintf("untrash messages of %s", r.record.Target),
	}
}

// finish derives the final state, then writes the audit entry, the execution
// record and the undo record in that order. Writes ignore cancellation of ctx.
func (s *executorService) finish(ctx context.Context, span opentracing.Span, r *run) (*models.ExecutionRecord, error) {
	cancelled := ctx.Err() != nil
	rec := r.record
	rec.AffectedCount = len(r.applied)
	rec.FailedCount = rec.TargetedCount - rec.AffectedCount
	if rec.FailedCount < 0 {
		rec.FailedCount = 0
	}

	switch {
	case rec.AffectedCount == 0 && (r.firstErr != nil || cancelled):
		rec.State = enum.ExecutionFailed
	case r.firstErr != nil || cancelled || r.more || rec.FailedCount > 0:
		rec.State = enum.ExecutionPartial
	default:
		rec.State = enum.ExecutionSucceeded
	}
	if r.firstErr != nil {
		rec.Error = r.firstErr.Error()
	} else if cancelled {
		rec.Error = ctx.Err().Error()
	}
	rec.HasUndo = rec.AffectedCount > 0 && r.inverse != nil

	pctx := context.WithoutCancel(ctx)
	rec.CreatedAt = s.now().UTC()

	outcome := enum.OutcomeSuccess
	switch rec.State {
	case enum.ExecutionPartial:
		outcome = enum.OutcomePartial
	case enum.ExecutionFailed:
		outcome = enum.OutcomeFailure
	}
	entry, err := s.audit.Append(pctx, enum.AuditExecution, outcome, map[string]interface{}{
		"execution_id":   rec.ID,
		"target":         rec.Target,
		"action":         rec.Action.String(),
		"plan_id":        rec.PlanID,
		"state":          rec.State.String(),
		"targeted_count": rec.TargetedCount,
		"affected_count": rec.AffectedCount,
		"failed_count":   rec.FailedCount,
		"more_available": r.more,
		"unsubscribed":   rec.Unsubscribed,
		"error":          rec.Error,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("execution %s applied %d messages but audit append failed: %v", rec.ID, rec.AffectedCount, err)
		return nil, err
	}
	rec.AuditEntryID = entry.ID

	if err := s.executions.Create(pctx, rec); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if rec.HasUndo {
		r.inverse.ExecutionID = rec.ID
		r.inverse.MessageIDs = r.applied
		if err := s.undo.Register(pctx, r.inverse); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	s.log.Infof("execution %s %s %s: %s, %d/%d applied", rec.ID, rec.Action, rec.Target, rec.State, rec.AffectedCount, rec.TargetedCount)

	if rec.State == enum.ExecutionFailed && r.firstErr != nil {
		tracing.TraceErr(span, r.firstErr)
		if isProviderErr(r.firstErr) {
			return rec, r.firstErr
		}
	}
	return rec, nil
}

// reject audits a call that never reached the provider and returns err.
func (s *executorService) reject(ctx context.Context, span opentracing.Span, target string, action enum.Action, planID string, err error) error {
	tracing.TraceErr(span, err)
	if _, auditErr := s.audit.Append(context.WithoutCancel(ctx), enum.AuditExecution, enum.OutcomeRejected, map[string]interface{}{
		"target":  target,
		"action":  action.String(),
		"plan_id": planID,
		"error":   err.Error(),
		"kind":    mailerrors.Kind(err),
	}); auditErr != nil {
		return auditErr
	}
	return err
}

func isProviderErr(err error) bool {
	return errors.Is(err, mailerrors.ErrProviderUnavailable) || errors.Is(err, mailerrors.ErrProviderRejected)
}
