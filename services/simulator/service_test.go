package simulator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/testutil"
	"github.com/customeros/mailclean/services/audit"
	"github.com/customeros/mailclean/services/stats"
)

var created = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	sim      interfaces.SimulatorService
	plans    *testutil.PlanRepository
	audit    *testutil.AuditRepository
	provider *testutil.Provider
	clock    *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewClock(created.Add(time.Minute))
	store := stats.NewStatsStore(testutil.Logger(), testutil.NewSenderStatsRepository())
	_, err := store.Replace(context.Background(), &models.ScanRun{ScannedAt: created}, []models.SenderStats{
		{Email: "news@shop.com", TotalCount: 2500, UnreadCount: 2500, UnsubscribeDirective: "<mailto:x@shop.com>, <https://shop.com/u>", OneClick: true},
		{Email: "promo@brand.com", TotalCount: 20, UnreadCount: 20, UnsubscribeDirective: "<https://brand.com/u>"},
		{Email: "digest@forum.net", TotalCount: 20, UnreadCount: 20, UnsubscribeDirective: "<mailto:leave@forum.net>"},
	})
	require.NoError(t, err)

	plans := testutil.NewPlanRepository()
	require.NoError(t, plans.Create(context.Background(), &models.Plan{
		ID:        "plan-1",
		CreatedAt: created,
		ExpiresAt: created.Add(24 * time.Hour),
		Entries: models.PlanEntries{
			{SenderEmail: "news@shop.com", Action: enum.ActionUnsubscribe, EmailsAffected: 2500},
			{SenderEmail: "promo@brand.com", Action: enum.ActionUnsubscribe, EmailsAffected: 20},
			{SenderEmail: "digest@forum.net", Action: enum.ActionUnsubscribe, EmailsAffected: 20},
			{SenderEmail: "old@list.org", Action: enum.ActionDelete, EmailsAffected: 7},
		},
		TotalEmails: 2547,
	}))

	auditRepo := testutil.NewAuditRepository()
	sim := NewSimulatorService(
		testutil.Logger(),
		Config{SuppressionLabel: "Unsubscribed"},
		plans, store,
		audit.NewAuditService(testutil.Logger(), auditRepo, nil, clock.Now),
		clock.Now,
	)
	return &fixture{sim: sim, plans: plans, audit: auditRepo, provider: testutil.NewProvider("me@mail.com"), clock: clock}
}

func TestSimulate_Report(t *testing.T) {
	f := newFixture(t)

	report, err := f.sim.Simulate(context.Background(), "plan-1")
	require.NoError(t, err)

	assert.Equal(t, "plan-1", report.PlanID)
	assert.Equal(t, 2547, report.AffectedEmails)
	assert.Equal(t, []string{"Unsubscribed"}, report.LabelsCreated)
	assert.Equal(t, 0, report.ProviderCalls)
	assert.Equal(t, []string{
		"POST https://shop.com/u (one-click unsubscribe for news@shop.com)",
		`labels.create "Unsubscribed"`,
		"messages.batchModify 1000 messages from news@shop.com: add [Unsubscribed] remove [INBOX]",
		"messages.batchModify 1000 messages from news@shop.com: add [Unsubscribed] remove [INBOX]",
		"messages.batchModify 500 messages from news@shop.com: add [Unsubscribed] remove [INBOX]",
		"GET https://brand.com/u (unsubscribe link for promo@brand.com)",
		"messages.batchModify 20 messages from promo@brand.com: add [Unsubscribed] remove [INBOX]",
		"messages.batchModify 20 messages from digest@forum.net: add [Unsubscribed] remove [INBOX]",
		"messages.trash x7 for old@list.org",
	}, report.APICalls)
}

func TestSimulate_PureAndRepeatable(t *testing.T) {
	f := newFixture(t)

	first, err := f.sim.Simulate(context.Background(), "plan-1")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	second, err := f.sim.Simulate(context.Background(), "plan-1")
	require.NoError(t, err)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.Equal(t, string(a), string(b))
	assert.Equal(t, 0, f.provider.TotalCalls())
	assert.Equal(t, 2, f.audit.CountByType(enum.AuditSimulationRun))
}

func TestSimulate_InvalidPlans(t *testing.T) {
	f := newFixture(t)

	_, err := f.sim.Simulate(context.Background(), "missing")
	assert.ErrorIs(t, err, mailerrors.ErrInvalidPlan)

	_, err = f.sim.Simulate(context.Background(), "")
	assert.ErrorIs(t, err, mailerrors.ErrInvalidPlan)

	f.clock.Set(created.Add(24 * time.Hour))
	_, err = f.sim.Simulate(context.Background(), "plan-1")
	assert.ErrorIs(t, err, mailerrors.ErrInvalidPlan)

	entries := f.audit.Entries()
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, enum.OutcomeRejected, e.Outcome)
	}
}
