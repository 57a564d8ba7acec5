package stats

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

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
	DefaultPageSize = 50
	MaxPageSize     = 500
)

type store struct {
	log     logger.Logger
	repo    interfaces.SenderStatsRepository
	current atomic.Pointer[models.Snapshot]
}

func NewStatsStore(log logger.Logger, repo interfaces.SenderStatsRepository) interfaces.StatsStore {
	s := &store{log: log, repo: repo}
	s.current.Store(models.EmptySnapshot())
	return s
}

func (s *store) Current() *models.Snapshot {
	return s.current.Load()
}

// Load restores the latest persisted scan, if any.
func (s *store) Load(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "StatsStore.Load")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	run, err := s.repo.GetLatestRun(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if run == nil {
		s.log.Info("No persisted scan found, starting with an empty snapshot")
		return nil
	}
	senders, err := s.repo.ListByVersion(ctx, run.Version)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	s.current.Store(models.NewSnapshot(*run, senders))
	s.log.Infof("Loaded scan snapshot v%d with %d senders", run.Version, len(senders))
	return nil
}

// Replace persists a new scan and then publishes it to readers.
func (s *store) Replace(ctx context.Context, run *models.ScanRun, senders []models.SenderStats) (*models.Snapshot, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "StatsStore.Replace")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.repo.ReplaceSnapshot(ctx, run, senders); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	snapshot := models.NewSnapshot(*run, senders)
	s.current.Store(snapshot)
	return snapshot, nil
}

// ListSenders pages through the current snapshot. The token pins the
// snapshot version, so a token issued before a rescan is rejected.
func (s *store) ListSenders(category string, pageToken string, pageSize int) ([]models.SenderStats, string, error) {
	snapshot := s.Current()

	var filter enum.Category
	if category != "" {
		c, ok := enum.ParseCategory(category)
		if !ok {
			return nil, "", errors.Wrapf(mailerrors.ErrInvalidInput, "unknown category %q", category)
		}
		filter = c
	}
	if pageSize < 0 {
		return nil, "", errors.Wrap(mailerrors.ErrInvalidInput, "page_size must not be negative")
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	offset := 0
	if pageToken != "" {
		version, off, err := decodePageToken(pageToken)
		if err != nil {
			return nil, "", err
		}
		if version != snapshot.Version() {
			return nil, "", errors.Wrap(mailerrors.ErrInvalidInput, "page token belongs to an older scan")
		}
		offset = off
	}

	page := make([]models.SenderStats, 0, pageSize)
	position := 0
	next := ""
	snapshot.Range(func(sender models.SenderStats) bool {
		if filter != "" && sender.Category != filter {
			return true
		}
		if position >= offset {
			if len(page) == pageSize {
				next = encodePageToken(snapshot.Version(), position)
				return false
			}
			page = append(page, sender)
		}
		position++
		return true
	})
	return page, next, nil
}

func (s *store) GetSender(id string) (*models.SenderStats, error) {
	sender, ok := s.Current().SenderByID(id)
	if !ok {
		return nil, errors.Wrapf(mailerrors.ErrNotFound, "sender %s", id)
	}
	return &sender, nil
}

func encodePageToken(version int64, offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("v%d:%d", version, offset)))
}

func decodePageToken(token string) (int64, int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, 0, errors.Wrap(mailerrors.ErrInvalidInput, "malformed page token")
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "v") {
		return 0, 0, errors.Wrap(mailerrors.ErrInvalidInput, "malformed page token")
	}
	version, err := strconv.ParseInt(strings.TrimPrefix(parts[0], "v"), 10, 64)
	if err != nil {
		return 0, 0, errors.Wrap(mailerrors.ErrInvalidInput, "malformed page token")
	}
	offset, err := strconv.Atoi(parts[1])
	if err != nil || offset < 0 {
		return 0, 0, errors.Wrap(mailerrors.ErrInvalidInput, "malformed page token")
	}
	return version, offset, nil
}
