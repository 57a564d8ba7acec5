package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
)

const jsonLinesContentType = "application/x-ndjson"

type auditExporter struct {
	log     logger.Logger
	repo    interfaces.AuditRepository
	storage interfaces.StorageService
	prefix  string
}

// NewAuditExporter writes one JSON lines object per UTC day under prefix.
func NewAuditExporter(log logger.Logger, repo interfaces.AuditRepository, storage interfaces.StorageService, prefix string) interfaces.AuditExporter {
	return &auditExporter{log: log, repo: repo, storage: storage, prefix: prefix}
}

func (e *auditExporter) ExportDay(ctx context.Context, day time.Time) (string, int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AuditExporter.ExportDay")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	key := ExportKey(e.prefix, from)
	span.LogKV("key", key)

	entries, err := e.repo.List(ctx, models.AuditFilter{From: &from, To: &to})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", 0, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			tracing.TraceErr(span, err)
			return "", 0, errors.Wrapf(err, "encode audit entry %d", entries[i].ID)
		}
	}

	if err := e.storage.Upload(ctx, key, buf.Bytes(), jsonLinesContentType); err != nil {
		tracing.TraceErr(span, err)
		return "", 0, err
	}
	e.log.Infof("Exported %d audit entries to %s", len(entries), key)
	return key, len(entries), nil
}

// ExportKey is <prefix>/YYYY-MM-DD.jsonl for the UTC day of t.
func ExportKey(prefix string, t time.Time) string {
	return path.Join(prefix, t.UTC().Format("2006-01-02")+".jsonl")
}
