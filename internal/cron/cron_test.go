package cron

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes"

	"github.com/customeros/mailclean/interfaces"
	cron_config "github.com/customeros/mailclean/internal/cron/config"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/testutil"
)

type mockKubernetesInterface struct {
	kubernetes.Interface
	mock.Mock
}

type mockScanner struct {
	mock.Mock
}

func (m *mockScanner) Scan(ctx context.Context) (*models.ScanRun, error) {
	args := m.Called(ctx)
	run, _ := args.Get(0).(*models.ScanRun)
	return run, args.Error(1)
}

type mockUndo struct {
	interfaces.UndoService
	mock.Mock
}

func (m *mockUndo) Compact(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) ExportDay(ctx context.Context, day time.Time) (string, int, error) {
	args := m.Called(ctx, day)
	return args.String(0), args.Int(1), args.Error(2)
}

func allSchedules() cron_config.Config {
	return cron_config.Config{
		CronScheduleHeartbeat:      "0 * * * * *",
		CronScheduleRescan:         "0 0 */6 * * *",
		CronScheduleUndoCompaction: "0 */10 * * * *",
		CronSchedulePlanCleanup:    "0 30 * * * *",
		CronScheduleAuditExport:    "0 5 0 * * *",
	}
}

func TestNewCronManager(t *testing.T) {
	log := testutil.Logger()
	k8s := &mockKubernetesInterface{}

	cm := NewCronManager(allSchedules(), log, k8s, false, Jobs{})

	assert.NotNil(t, cm)
	assert.Equal(t, log, cm.log)
	assert.Equal(t, k8s, cm.k8s)
	assert.NotNil(t, cm.jobIDs)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, allSchedules(), cfg)
}

func TestCronManager_RegisterJobs(t *testing.T) {
	jobs := Jobs{
		Scanner:  &mockScanner{},
		Undo:     &mockUndo{},
		Plans:    testutil.NewPlanRepository(),
		Exporter: &mockExporter{},
	}
	cm := NewCronManager(allSchedules(), testutil.Logger(), nil, true, jobs)

	require.NoError(t, cm.registerJobs(cronv3.New(cronv3.WithSeconds())))
	assert.Len(t, cm.jobIDs, 5)
}

func TestCronManager_RegisterJobs_SkipsMissingServices(t *testing.T) {
	schedules := allSchedules()
	schedules.CronScheduleRescan = ""
	cm := NewCronManager(schedules, testutil.Logger(), nil, true, Jobs{Undo: &mockUndo{}, Scanner: &mockScanner{}})

	require.NoError(t, cm.registerJobs(cronv3.New(cronv3.WithSeconds())))
	assert.Len(t, cm.jobIDs, 2)
	assert.Contains(t, cm.jobIDs, "heartbeat")
	assert.Contains(t, cm.jobIDs, "undo_compaction")
}

func TestCronManager_RegisterJobs_BadSchedule(t *testing.T) {
	schedules := allSchedules()
	schedules.CronScheduleUndoCompaction = "every ten minutes"
	cm := NewCronManager(schedules, testutil.Logger(), nil, true, Jobs{Undo: &mockUndo{}})

	assert.Error(t, cm.registerJobs(cronv3.New(cronv3.WithSeconds())))
}

func TestCronManager_Jobs(t *testing.T) {
	scanner := &mockScanner{}
	scanner.On("Scan", mock.Anything).Return(&models.ScanRun{Version: 3, SendersCount: 12}, nil).Once()

	undo := &mockUndo{}
	undo.On("Compact", mock.Anything).Return(int64(2), nil).Once()

	now := time.Date(2026, 4, 2, 0, 5, 0, 0, time.UTC)
	exporter := &mockExporter{}
	exporter.On("ExportDay", mock.Anything, time.Date(2026, 4, 1, 0, 5, 0, 0, time.UTC)).
		Return("audit/2026-04-01.jsonl", 7, nil).Once()

	plans := testutil.NewPlanRepository()
	require.NoError(t, plans.Create(context.Background(), &models.Plan{ID: "old", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, plans.Create(context.Background(), &models.Plan{ID: "live", ExpiresAt: now.Add(time.Hour)}))

	cm := NewCronManager(allSchedules(), testutil.Logger(), nil, true, Jobs{
		Scanner:  scanner,
		Undo:     undo,
		Plans:    plans,
		Exporter: exporter,
	})
	cm.now = func() time.Time { return now }

	cm.rescan()
	cm.compactUndo()
	cm.cleanupPlans()
	cm.exportAudit()

	scanner.AssertExpectations(t)
	undo.AssertExpectations(t)
	exporter.AssertExpectations(t)

	_, err := plans.GetByID(context.Background(), "old")
	assert.Error(t, err)
	live, err := plans.GetByID(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, "live", live.ID)
}

func TestCronManager_JobFailuresAreLogged(t *testing.T) {
	scanner := &mockScanner{}
	scanner.On("Scan", mock.Anything).Return(nil, errors.New("provider down")).Once()

	cm := NewCronManager(allSchedules(), testutil.Logger(), nil, true, Jobs{Scanner: scanner})
	assert.NotPanics(t, cm.rescan)
	scanner.AssertExpectations(t)
}

func TestCronManager_Stop(t *testing.T) {
	cm := NewCronManager(allSchedules(), testutil.Logger(), &mockKubernetesInterface{}, true, Jobs{})

	mockCron := cronv3.New()
	mockCron.Start()
	cm.cron = mockCron

	cm.Stop()
	cm.Stop()

	select {
	case <-cm.stopCh:
		// Channel is closed as expected
	default:
		t.Error("Stop channel was not closed")
	}
}
