package scanner

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
	"github.com/customeros/mailclean/internal/utils"
)

const (
	labelUnread = "UNREAD"
	oneClickKey = "one-click"
)

type Config struct {
	MaxMessages int
	Query       string
	Concurrency int
	PageSize    int64
}

type scannerService struct {
	log      logger.Logger
	cfg      Config
	provider interfaces.MailProvider
	stats    interfaces.StatsStore
	audit    interfaces.AuditService
	now      func() time.Time
}

func NewScannerService(log logger.Logger, cfg Config, provider interfaces.MailProvider, stats interfaces.StatsStore, audit interfaces.AuditService, now func() time.Time) interfaces.ScannerService {
	if now == nil {
		now = time.Now
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	return &scannerService{log: log, cfg: cfg, provider: provider, stats: stats, audit: audit, now: now}
}

// Scan reads mailbox totals and the metadata of recent messages, then swaps
// in a new sender snapshot.
func (s *scannerService) Scan(ctx context.Context) (*models.ScanRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ScannerService.Scan")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	run, err := s.scan(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		if _, auditErr := s.audit.Append(context.WithoutCancel(ctx), enum.AuditScanRun, enum.OutcomeFailure, map[string]interface{}{
			"error": err.Error(),
			"kind":  mailerrors.Kind(err),
		}); auditErr != nil {
			return nil, auditErr
		}
		return nil, err
	}

	if _, err := s.audit.Append(ctx, enum.AuditScanRun, enum.OutcomeSuccess, map[string]interface{}{
		"scan_id":          run.ID,
		"snapshot_version": run.Version,
		"messages_scanned": run.MessagesScanned,
		"senders":          run.SendersCount,
		"total_messages":   run.TotalMessages,
	}); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	s.log.Infof("Scan v%d complete: %d messages from %d senders", run.Version, run.MessagesScanned, run.SendersCount)
	return run, nil
}

func (s *scannerService) scan(ctx context.Context) (*models.ScanRun, error) {
	profile, err := s.provider.GetProfile(ctx)
	if err != nil {
		return nil, err
	}

	labelIDs := []string{labelUnread}
	for _, c := range enum.Categories {
		labelIDs = append(labelIDs, c.LabelID())
	}
	counts, err := s.provider.LabelCounts(ctx, labelIDs)
	if err != nil {
		return nil, err
	}
	labelNames, err := s.provider.ListLabels(ctx)
	if err != nil {
		return nil, err
	}

	ids, err := s.listIDs(ctx)
	if err != nil {
		return nil, err
	}
	metas, err := s.fetchMetadata(ctx, ids)
	if err != nil {
		return nil, err
	}

	scannedAt := s.now().UTC()
	senders := Aggregate(metas, labelNames)

	id, err := utils.GenerateID("scan")
	if err != nil {
		return nil, errors.Wrap(err, "generate scan id")
	}
	run := &models.ScanRun{
		ID:               id,
		ScannedAt:        scannedAt,
		TotalMessages:    profile.MessagesTotal,
		TotalUnread:      counts[labelUnread].Total,
		UnreadByCategory: models.CountMap{},
		MessagesScanned:  len(metas),
		SendersCount:     len(senders),
		CreatedAt:        scannedAt,
	}
	for _, c := range enum.Categories {
		run.UnreadByCategory[c.String()] = counts[c.LabelID()].Unread
	}

	if _, err := s.stats.Replace(ctx, run, senders); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *scannerService) listIDs(ctx context.Context) ([]string, error) {
	var ids []string
	pageToken := ""
	for len(ids) < s.cfg.MaxMessages {
		size := s.cfg.PageSize
		if remaining := int64(s.cfg.MaxMessages - len(ids)); remaining < size {
			size = remaining
		}
		page, err := s.provider.ListMessages(ctx, s.cfg.Query, nil, pageToken, size)
		if err != nil {
			return nil, err
		}
		for _, id := range page.IDs {
			if len(ids) == s.cfg.MaxMessages {
				break
			}
			ids = append(ids, id)
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return ids, nil
}

// fetchMetadata reads headers of ids with bounded concurrency. Messages that
// vanished since listing are skipped.
func (s *scannerService) fetchMetadata(ctx context.Context, ids []string) ([]dto.MessageMetadata, error) {
	results := make([]*dto.MessageMetadata, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			meta, err := s.provider.GetMetadata(gctx, id)
			if err != nil {
				if errors.Is(err, mailerrors.ErrNotFound) {
					return nil
				}
				return err
			}
			results[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	metas := make([]dto.MessageMetadata, 0, len(ids))
	for _, m := range results {
		if m != nil {
			metas = append(metas, *m)
		}
	}
	return metas, nil
}

type accumulator struct {
	stats          models.SenderStats
	labels         map[string]bool
	categories     map[enum.Category]int
	directiveAt    time.Time
	directiveFound bool
}

// Aggregate folds message metadata into per-sender statistics. labelNames maps
// user label ids to their display names; system labels keep their ids.
func Aggregate(metas []dto.MessageMetadata, labelNames map[string]string) []models.SenderStats {
	bySender := make(map[string]*accumulator)
	for _, m := range metas {
		email := utils.NormalizeSender(m.From)
		if email == "" {
			continue
		}
		acc, ok := bySender[email]
		if !ok {
			acc = &accumulator{
				stats: models.SenderStats{
					ID:          models.SenderID(email),
					Email:       email,
					DisplayName: utils.SenderDisplayName(m.From),
					FirstSeen:   m.Date,
				},
				labels:     make(map[string]bool),
				categories: make(map[enum.Category]int),
			}
			bySender[email] = acc
		}

		acc.stats.TotalCount++
		if !m.Date.IsZero() && (acc.stats.FirstSeen.IsZero() || m.Date.Before(acc.stats.FirstSeen)) {
			acc.stats.FirstSeen = m.Date
		}
		if acc.stats.DisplayName == "" {
			acc.stats.DisplayName = utils.SenderDisplayName(m.From)
		}

		unread := false
		for _, l := range m.LabelIDs {
			if l == labelUnread {
				unread = true
				continue
			}
			if c, ok := enum.CategoryFromLabel(l); ok {
				acc.categories[c]++
				continue
			}
			if name, ok := labelNames[l]; ok && name != "" {
				acc.labels[name] = true
			} else {
				acc.labels[l] = true
			}
		}
		if unread {
			acc.stats.UnreadCount++
		} else if !m.Date.IsZero() && (acc.stats.LastOpened == nil || m.Date.After(*acc.stats.LastOpened)) {
			opened := m.Date
			acc.stats.LastOpened = &opened
		}

		if m.ListUnsubscribe != "" && (!acc.directiveFound || m.Date.After(acc.directiveAt)) {
			acc.stats.UnsubscribeDirective = m.ListUnsubscribe
			acc.stats.OneClick = strings.Contains(strings.ToLower(m.ListUnsubscribePost), oneClickKey)
			acc.directiveAt = m.Date
			acc.directiveFound = true
		}
	}

	senders := make([]models.SenderStats, 0, len(bySender))
	for _, acc := range bySender {
		labels := make([]string, 0, len(acc.labels))
		for l := range acc.labels {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		acc.stats.Labels = labels
		acc.stats.Category = dominantCategory(acc.categories)
		senders = append(senders, acc.stats)
	}
	sort.Slice(senders, func(i, j int) bool { return senders[i].Email < senders[j].Email })
	return senders
}

func dominantCategory(counts map[enum.Category]int) enum.Category {
	best, bestCount := enum.CategoryPrimary, 0
	for _, c := range enum.Categories {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}
