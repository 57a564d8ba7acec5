package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/testutil"
)

func appendAt(t *testing.T, repo *testutil.AuditRepository, ts time.Time, eventType enum.AuditEventType) {
	t.Helper()
	require.NoError(t, repo.Append(context.Background(), &models.AuditEntry{
		EventType: eventType,
		Timestamp: ts,
		Details:   models.JSONMap{},
		Outcome:   enum.OutcomeSuccess,
	}))
}

func TestExportDay_WritesOnlyThatDay(t *testing.T) {
	repo := testutil.NewAuditRepository()
	store := testutil.NewStorage()
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	appendAt(t, repo, day.Add(-time.Second), enum.AuditScanRun)
	appendAt(t, repo, day, enum.AuditPlanGenerated)
	appendAt(t, repo, day.Add(12*time.Hour), enum.AuditExecution)
	appendAt(t, repo, day.Add(24*time.Hour), enum.AuditUndo)

	exporter := NewAuditExporter(testutil.Logger(), repo, store, "audit")
	key, count, err := exporter.ExportDay(context.Background(), day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "audit/2026-03-14.jsonl", key)
	assert.Equal(t, 2, count)

	lines := strings.Split(strings.TrimSpace(string(store.Objects[key])), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"event_type":"plan_generated"`)
	assert.Contains(t, lines[1], `"event_type":"execution"`)
}

func TestExportDay_EmptyDay(t *testing.T) {
	store := testutil.NewStorage()
	exporter := NewAuditExporter(testutil.Logger(), testutil.NewAuditRepository(), store, "exports/audit")

	key, count, err := exporter.ExportDay(context.Background(), time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "exports/audit/2026-01-01.jsonl", key)
	assert.Zero(t, count)
	assert.Empty(t, store.Objects[key])
}

type failingStorage struct{ *testutil.Storage }

func (failingStorage) Upload(context.Context, string, []byte, string) error {
	return mailerrors.Storage(errors.New("bucket not found"), "upload")
}

func TestExportDay_UploadFailure(t *testing.T) {
	repo := testutil.NewAuditRepository()
	appendAt(t, repo, time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC), enum.AuditUndo)

	exporter := NewAuditExporter(testutil.Logger(), repo, failingStorage{testutil.NewStorage()}, "audit")
	_, _, err := exporter.ExportDay(context.Background(), time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, errors.Is(err, mailerrors.ErrStorageFailure))
}
