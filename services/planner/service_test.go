package planner

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/testutil"
	"github.com/customeros/mailclean/internal/utils"
	"github.com/customeros/mailclean/services/audit"
	"github.com/customeros/mailclean/services/scorer"
	"github.com/customeros/mailclean/services/stats"
)

var scannedAt = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	planner interfaces.PlannerService
	stats   interfaces.StatsStore
	plans   *testutil.PlanRepository
	audit   *testutil.AuditRepository
	clock   *testutil.Clock
}

func newFixture(t *testing.T, senders []models.SenderStats, mailboxTotal int) *fixture {
	t.Helper()
	clock := testutil.NewClock(scannedAt.Add(time.Hour))
	store := stats.NewStatsStore(testutil.Logger(), testutil.NewSenderStatsRepository())
	if senders != nil {
		_, err := store.Replace(context.Background(), &models.ScanRun{ScannedAt: scannedAt, TotalMessages: mailboxTotal}, senders)
		require.NoError(t, err)
	}
	auditRepo := testutil.NewAuditRepository()
	plans := testutil.NewPlanRepository()
	sc := scorer.NewScorer(scorer.Config{UnsubscribeThreshold: 10, SuppressionLabel: "Unsubscribed"})
	svc := NewPlannerService(
		testutil.Logger(),
		Config{MaxMessages: 1000, PlanTTL: 24 * time.Hour},
		store, sc, plans,
		audit.NewAuditService(testutil.Logger(), auditRepo, nil, clock.Now),
		clock.Now,
	)
	return &fixture{planner: svc, stats: store, plans: plans, audit: auditRepo, clock: clock}
}

func sampleSenders() []models.SenderStats {
	return []models.SenderStats{
		{Email: "news@shop.com", TotalCount: 500, UnreadCount: 500, UnsubscribeDirective: "<https://shop.com/u>"},
		{Email: "deals@store.io", TotalCount: 1200, UnreadCount: 1200, UnsubscribeDirective: "<https://store.io/u>"},
		{Email: "old@list.org", TotalCount: 40, UnreadCount: 12, Labels: []string{"Unsubscribed"}, LastOpened: utils.ToPtr(scannedAt.AddDate(0, 0, -60))},
		{Email: "friend@mail.com", TotalCount: 80, UnreadCount: 2, LastOpened: utils.ToPtr(scannedAt)},
		{Email: "alerts@bank.com", TotalCount: 30, UnreadCount: 30, UnsubscribeDirective: "<https://bank.com/u>", Labels: []string{"IMPORTANT"}},
	}
}

func TestGenerate_EntriesOrderAndCap(t *testing.T) {
	f := newFixture(t, sampleSenders(), 10000)

	plan, err := f.planner.Generate(context.Background())
	require.NoError(t, err)

	require.Len(t, plan.Entries, 4)
	emails := []string{}
	for _, e := range plan.Entries {
		emails = append(emails, e.SenderEmail)
	}
	// risk 0 entries first by affected desc, then bank (0.2), then old list (0.1 + 1/3)
	assert.Equal(t, []string{"deals@store.io", "news@shop.com", "alerts@bank.com", "old@list.org"}, emails)
	assert.Equal(t, 1000, plan.Entries[0].EmailsAffected)
	assert.Equal(t, enum.ActionDelete, plan.Entries[3].Action)
	assert.Equal(t, 0.4333, plan.Entries[3].RiskScore)
}

func TestGenerate_Conservation(t *testing.T) {
	f := newFixture(t, sampleSenders(), 10000)

	plan, err := f.planner.Generate(context.Background())
	require.NoError(t, err)

	sum := 0
	for _, e := range plan.Entries {
		sum += e.EmailsAffected
	}
	assert.Equal(t, sum, plan.TotalEmails)
	assert.Equal(t, 1570, plan.TotalEmails)
	assert.Equal(t, 15.7, plan.EstimatedCleanupPercent)
}

func TestGenerate_Deterministic(t *testing.T) {
	f := newFixture(t, sampleSenders(), 10000)

	first, err := f.planner.Generate(context.Background())
	require.NoError(t, err)
	f.clock.Advance(3 * time.Hour)
	second, err := f.planner.Generate(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.TotalEmails, second.TotalEmails)
}

func TestGenerate_FiveHundredUnreadScenario(t *testing.T) {
	f := newFixture(t, []models.SenderStats{
		{Email: "promo@brand.com", TotalCount: 500, UnreadCount: 500, UnsubscribeDirective: "<mailto:u@brand.com>, <https://brand.com/unsub>"},
	}, 0)

	plan, err := f.planner.Generate(context.Background())
	require.NoError(t, err)

	require.Len(t, plan.Entries, 1)
	entry := plan.Entries[0]
	assert.Equal(t, enum.ActionUnsubscribe, entry.Action)
	assert.Equal(t, 500, entry.EmailsAffected)
	assert.Equal(t, 0.9636, entry.Confidence)
	assert.Equal(t, 0.0, entry.RiskScore)
	assert.Equal(t, 0.0, plan.EstimatedCleanupPercent)
}

func TestGenerate_EmptyStore(t *testing.T) {
	f := newFixture(t, nil, 0)

	plan, err := f.planner.Generate(context.Background())
	require.NoError(t, err)

	assert.Empty(t, plan.Entries)
	assert.Equal(t, 0, plan.TotalEmails)
	assert.Equal(t, 1, f.audit.CountByType(enum.AuditPlanGenerated))
}

func TestGenerate_PersistsAndAudits(t *testing.T) {
	f := newFixture(t, sampleSenders(), 10000)

	plan, err := f.planner.Generate(context.Background())
	require.NoError(t, err)

	stored, err := f.planner.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Entries, stored.Entries)
	assert.Equal(t, plan.CreatedAt.Add(24*time.Hour), stored.ExpiresAt)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, enum.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, plan.ID, entries[0].Details["plan_id"])
}

func TestGetPlan_Errors(t *testing.T) {
	f := newFixture(t, nil, 0)

	_, err := f.planner.GetPlan(context.Background(), "")
	assert.ErrorIs(t, err, mailerrors.ErrInvalidInput)

	_, err = f.planner.GetPlan(context.Background(), "8c5e3a0e-missing")
	assert.ErrorIs(t, err, mailerrors.ErrNotFound)
}

func TestGenerate_AuditFailure(t *testing.T) {
	f := newFixture(t, sampleSenders(), 10000)
	f.audit.Err = errors.New("db down")

	_, err := f.planner.Generate(context.Background())
	assert.ErrorIs(t, err, mailerrors.ErrStorageFailure)
}
