package audit

import (
	"context"
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

func newTestService(t *testing.T) (*auditService, *testutil.AuditRepository, *testutil.Publisher, *testutil.Clock) {
	t.Helper()
	repo := testutil.NewAuditRepository()
	pub := &testutil.Publisher{}
	clock := testutil.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewAuditService(testutil.Logger(), repo, pub, clock.Now).(*auditService)
	return svc, repo, pub, clock
}

func TestAppend_AssignsIncreasingIDsAndPublishes(t *testing.T) {
	svc, _, pub, clock := newTestService(t)
	ctx := context.Background()

	first, err := svc.Append(ctx, enum.AuditScanRun, enum.OutcomeSuccess, map[string]interface{}{"senders": 3})
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := svc.Append(ctx, enum.AuditExecution, enum.OutcomeRejected, nil)
	require.NoError(t, err)

	assert.Less(t, first.ID, second.ID)
	assert.NotNil(t, second.Details)
	assert.Equal(t, 2, pub.Count())
}

func TestAppend_StorageFailure(t *testing.T) {
	svc, repo, pub, _ := newTestService(t)
	repo.Err = errors.New("connection refused")

	_, err := svc.Append(context.Background(), enum.AuditUndo, enum.OutcomeSuccess, nil)

	assert.ErrorIs(t, err, mailerrors.ErrStorageFailure)
	assert.Equal(t, 0, pub.Count())
}

func TestAppend_PublishFailureDoesNotFail(t *testing.T) {
	svc, repo, pub, _ := newTestService(t)
	pub.Err = errors.New("broker down")

	entry, err := svc.Append(context.Background(), enum.AuditPlanGenerated, enum.OutcomeSuccess, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.ID)
	assert.Len(t, repo.Entries(), 1)
}

func TestAppend_UnknownType(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Append(context.Background(), enum.AuditEventType("bogus"), enum.OutcomeSuccess, nil)
	assert.ErrorIs(t, err, mailerrors.ErrInvalidInput)
}

func TestList_OrderedFilteredAndLimited(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Append(ctx, enum.AuditExecution, enum.OutcomeSuccess, map[string]interface{}{"n": i})
		require.NoError(t, err)
		_, err = svc.Append(ctx, enum.AuditUndo, enum.OutcomeSuccess, nil)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	all, err := svc.List(ctx, models.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp))
		if all[i].Timestamp.Equal(all[i-1].Timestamp) {
			assert.Greater(t, all[i].ID, all[i-1].ID)
		}
	}

	executions, err := svc.List(ctx, models.AuditFilter{EventType: enum.AuditExecution, Limit: 2})
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, 1, executions[0].Details["n"])
	assert.Equal(t, 2, executions[1].Details["n"])

	_, err = svc.List(ctx, models.AuditFilter{EventType: "nope"})
	assert.ErrorIs(t, err, mailerrors.ErrInvalidInput)
	_, err = svc.List(ctx, models.AuditFilter{Limit: -1})
	assert.ErrorIs(t, err, mailerrors.ErrInvalidInput)
	negative := int64(-1)
	_, err = svc.List(ctx, models.AuditFilter{AfterID: &negative})
	assert.ErrorIs(t, err, mailerrors.ErrInvalidInput)
	from := clock.Now()
	_, err = svc.List(ctx, models.AuditFilter{From: &from, To: &from})
	assert.ErrorIs(t, err, mailerrors.ErrInvalidInput)
}

func TestList_LongLogShowsNewestAndPagesForward(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	start := clock.Now()
	for i := 0; i < 1500; i++ {
		_, err := svc.Append(ctx, enum.AuditExecution, enum.OutcomeSuccess, nil)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	newest, err := svc.List(ctx, models.AuditFilter{Limit: 1_000_000})
	require.NoError(t, err)
	require.Len(t, newest, MaxListLimit)
	assert.Equal(t, int64(501), newest[0].ID)
	assert.Equal(t, int64(1500), newest[len(newest)-1].ID)

	defaults, err := svc.List(ctx, models.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, defaults, DefaultListLimit)
	assert.Equal(t, int64(1500), defaults[len(defaults)-1].ID)

	var cursor int64
	seen := 0
	for {
		after := cursor
		page, err := svc.List(ctx, models.AuditFilter{AfterID: &after, Limit: 400})
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.Equal(t, cursor+1, page[0].ID)
		seen += len(page)
		cursor = page[len(page)-1].ID
	}
	assert.Equal(t, 1500, seen)

	from := start.Add(100 * time.Second)
	to := start.Add(110 * time.Second)
	window, err := svc.List(ctx, models.AuditFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window, 10)
	assert.Equal(t, int64(101), window[0].ID)
	assert.Equal(t, int64(110), window[9].ID)
}
