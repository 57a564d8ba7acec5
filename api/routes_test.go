package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailclean/api/handlers"
	"github.com/customeros/mailclean/config"
	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/internal/enum"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/retry"
	"github.com/customeros/mailclean/internal/testutil"
	"github.com/customeros/mailclean/services"
	"github.com/customeros/mailclean/services/audit"
	"github.com/customeros/mailclean/services/auth"
	"github.com/customeros/mailclean/services/executor"
	"github.com/customeros/mailclean/services/planner"
	"github.com/customeros/mailclean/services/scanner"
	"github.com/customeros/mailclean/services/scorer"
	"github.com/customeros/mailclean/services/simulator"
	"github.com/customeros/mailclean/services/stats"
	"github.com/customeros/mailclean/services/undo"
)

type testServer struct {
	router   *gin.Engine
	provider *testutil.Provider
	audit    *testutil.AuditRepository
	clock    *testutil.Clock
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := testutil.Logger()
	clock := testutil.NewClock(time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC))
	provider := testutil.NewProvider("owner@mail.com")
	auditRepo := testutil.NewAuditRepository()
	plans := testutil.NewPlanRepository()
	executions := testutil.NewExecutionRepository()

	auditSvc := audit.NewAuditService(log, auditRepo, nil, clock.Now)
	store := stats.NewStatsStore(log, testutil.NewSenderStatsRepository())
	sc := scorer.NewScorer(scorer.Config{UnsubscribeThreshold: 10, SuppressionLabel: "Unsubscribed"})
	policy := retry.Policy{MaxRetries: 2, Min: time.Millisecond, Max: 2 * time.Millisecond}
	undoSvc := undo.NewUndoService(log, provider, testutil.NewUndoRepository(), executions, auditSvc, policy, clock.Now)

	svcs := &services.Services{
		Provider: provider,
		Audit:    auditSvc,
		Stats:    store,
		Scorer:   sc,
		Scanner: scanner.NewScannerService(log, scanner.Config{
			MaxMessages: 500, Concurrency: 4, PageSize: 100,
		}, provider, store, auditSvc, clock.Now),
		Planner: planner.NewPlannerService(log, planner.Config{MaxMessages: 1000, PlanTTL: 24 * time.Hour},
			store, sc, plans, auditSvc, clock.Now),
		Simulator: simulator.NewSimulatorService(log, simulator.Config{SuppressionLabel: "Unsubscribed"},
			plans, store, auditSvc, clock.Now),
		Undo: undoSvc,
		Executor: executor.NewExecutorService(log, executor.Config{
			MaxMessages:         1000,
			ProviderConcurrency: 2,
			MaxRetries:          policy.MaxRetries,
			BackoffMin:          policy.Min,
			BackoffMax:          policy.Max,
			SuppressionLabel:    "Unsubscribed",
		}, provider, &testutil.Unsubscriber{}, store, plans, executions, undoSvc, auditSvc, clock.Now),
		Auth:        auth.NewAuthService(log, provider, auditSvc),
		MaxMessages: 1000,
	}

	router := gin.New()
	RegisterRoutes(router, svcs, &config.AppConfig{
		APIKey:      apiKey,
		CorsOrigins: []string{"http://localhost:3000"},
	}, log)

	return &testServer{router: router, provider: provider, audit: auditRepo, clock: clock}
}

func (s *testServer) seed() {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		s.provider.PutMessage(testutil.Message{
			ID:                  fmt.Sprintf("news-%02d", i),
			From:                "news@shop.com",
			Date:                base.Add(time.Duration(i) * time.Hour),
			Labels:              map[string]bool{"INBOX": true, "UNREAD": true, "CATEGORY_PROMOTIONS": true},
			ListUnsubscribe:     "<https://shop.com/u?id=7>",
			ListUnsubscribePost: "List-Unsubscribe=One-Click",
		})
	}
	for i := 0; i < 3; i++ {
		s.provider.PutMessage(testutil.Message{
			ID:     fmt.Sprintf("friend-%d", i),
			From:   "friend@mail.com",
			Date:   base.Add(time.Duration(i) * 24 * time.Hour),
			Labels: map[string]bool{"INBOX": true, "IMPORTANT": true, "CATEGORY_PERSONAL": true},
		})
	}
}

func (s *testServer) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, w, &body)
	assert.NotEmpty(t, body["error"])
	return body["kind"]
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "secret")
	w := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAPIKey(t *testing.T) {
	s := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/scan/summary", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/scan/summary", nil, "X-MAILCLEAN-API-KEY", "wrong").Code)

	w := s.do(http.MethodGet, "/scan/summary", nil, "X-MAILCLEAN-API-KEY", "secret")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodOptions, "/plan/execute", nil, "Origin", "http://localhost:3000")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = s.do(http.MethodGet, "/health", nil, "Origin", "http://evil.example")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestOAuthMe(t *testing.T) {
	s := newTestServer(t, "")
	w := s.do(http.MethodGet, "/oauth/me", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status dto.AuthStatus
	decode(t, w, &status)
	assert.True(t, status.Authenticated)
	assert.Equal(t, "owner@mail.com", status.Email)
	assert.Equal(t, 1, s.audit.CountByType(enum.AuditTokenValidation))
}

func TestScanAndBrowseSenders(t *testing.T) {
	s := newTestServer(t, "")

	var empty handlers.ScanSummary
	decode(t, s.do(http.MethodGet, "/scan/summary", nil), &empty)
	assert.Nil(t, empty.LastScanAt)
	assert.Zero(t, empty.TotalEmailsScanned)

	s.seed()
	w := s.do(http.MethodPost, "/scan/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var summary handlers.ScanSummary
	decode(t, s.do(http.MethodGet, "/scan/summary", nil), &summary)
	assert.Equal(t, 33, summary.TotalEmailsScanned)
	assert.Equal(t, 30, summary.TotalUnread)
	assert.Equal(t, 30, summary.UnreadByCategory["promotions"])
	assert.Equal(t, 1, summary.NeverReadSendersCount)
	assert.InDelta(t, 90.9, summary.EstimatedCleanupPotentialPercent, 0.001)
	require.NotNil(t, summary.LastScanAt)

	var page handlers.SendersPage
	decode(t, s.do(http.MethodGet, "/senders?page_size=1", nil), &page)
	require.Len(t, page.Senders, 1)
	assert.Equal(t, "news@shop.com", page.Senders[0].Email)
	assert.Equal(t, enum.ActionUnsubscribe, page.Senders[0].SuggestedAction)
	require.NotNil(t, page.NextPageToken)

	var second handlers.SendersPage
	decode(t, s.do(http.MethodGet, "/senders?page_size=1&page_token="+*page.NextPageToken, nil), &second)
	require.Len(t, second.Senders, 1)
	assert.Equal(t, "friend@mail.com", second.Senders[0].Email)
	assert.Nil(t, second.NextPageToken)

	var promotions handlers.SendersPage
	decode(t, s.do(http.MethodGet, "/senders?category=promotions", nil), &promotions)
	require.Len(t, promotions.Senders, 1)

	var sender handlers.SenderResponse
	decode(t, s.do(http.MethodGet, "/senders/"+page.Senders[0].ID, nil), &sender)
	assert.Equal(t, 30, sender.TotalEmails)
	assert.Equal(t, 30, sender.UnreadCount)
	require.NotNil(t, sender.ListUnsubscribe)
	assert.True(t, sender.OneClick)

	var candidates []handlers.SenderResponse
	decode(t, s.do(http.MethodGet, "/insights/unsubscribe-candidates", nil), &candidates)
	require.Len(t, candidates, 1)
	assert.Equal(t, "news@shop.com", candidates[0].Email)

	assert.Equal(t, "invalid_input", errorKind(t, s.do(http.MethodGet, "/senders?page_size=ten", nil)))
	assert.Equal(t, "invalid_input", errorKind(t, s.do(http.MethodGet, "/senders?category=spam", nil)))
	w = s.do(http.MethodGet, "/senders/sndr_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorKind(t, w))
}

func TestPlanLifecycle(t *testing.T) {
	s := newTestServer(t, "")
	s.seed()
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/scan/run", nil).Code)

	w := s.do(http.MethodPost, "/plan/generate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var plan handlers.PlanResponse
	decode(t, w, &plan)
	require.Len(t, plan.Senders, 1)
	assert.Equal(t, "news@shop.com", plan.Senders[0].Sender)
	assert.Equal(t, enum.ActionUnsubscribe, plan.Senders[0].RecommendedAction)
	assert.Equal(t, 30, plan.Summary.TotalEmails)

	var stored handlers.PlanResponse
	decode(t, s.do(http.MethodGet, "/plan/"+plan.PlanID, nil), &stored)
	assert.Equal(t, plan, stored)

	first := s.do(http.MethodPost, "/plan/simulate", map[string]string{"plan_id": plan.PlanID})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	second := s.do(http.MethodPost, "/plan/simulate", map[string]string{"plan_id": plan.PlanID})
	assert.Equal(t, first.Body.String(), second.Body.String())

	var report dto.SimulationReport
	decode(t, first, &report)
	assert.Equal(t, 30, report.AffectedEmails)
	assert.Equal(t, 0, report.ProviderCalls)
	assert.Equal(t, []string{"Unsubscribed"}, report.LabelsCreated)
	assert.Zero(t, s.provider.MutatingCalls())

	w = s.do(http.MethodPost, "/plan/simulate", map[string]string{"plan_id": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "invalid_plan", errorKind(t, w))

	s.clock.Advance(25 * time.Hour)
	w = s.do(http.MethodPost, "/plan/simulate", map[string]string{"plan_id": plan.PlanID})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecuteAndUndo(t *testing.T) {
	s := newTestServer(t, "")
	s.seed()
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/scan/run", nil).Code)

	body := map[string]string{"target_email": "news@shop.com", "action_type": "unsubscribe"}
	w := s.do(http.MethodPost, "/plan/execute", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var exec handlers.ExecutionResponse
	decode(t, w, &exec)
	assert.Equal(t, enum.ExecutionSucceeded, exec.State)
	assert.Equal(t, 30, exec.MessagesAffected)
	assert.True(t, exec.HasUndo)
	assert.True(t, exec.Unsubscribed)

	w = s.do(http.MethodPost, "/plan/execute", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_executed", errorKind(t, w))

	var status dto.UndoStatus
	decode(t, s.do(http.MethodGet, "/undo/status/"+exec.ExecutionID, nil), &status)
	assert.Equal(t, "active", status.Status)
	assert.Equal(t, 3600, status.ExpiresInSeconds)

	w = s.do(http.MethodPost, "/action/undo/"+exec.ExecutionID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result dto.UndoResult
	decode(t, w, &result)
	assert.Equal(t, "reverted", result.Status)
	assert.Equal(t, 30, result.RestoredCount)
	assert.Equal(t, 30, s.provider.CountWhere(func(m testutil.Message) bool {
		return m.From == "news@shop.com" && m.Labels["INBOX"]
	}))

	w = s.do(http.MethodPost, "/action/undo/"+exec.ExecutionID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "undo_not_available", errorKind(t, w))

	w = s.do(http.MethodPost, "/action/undo/exec_unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecute_Rejections(t *testing.T) {
	s := newTestServer(t, "")
	s.seed()
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/scan/run", nil).Code)

	w := s.do(http.MethodPost, "/plan/execute", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, s.audit.CountByType(enum.AuditExecution))

	w = s.do(http.MethodPost, "/plan/execute", map[string]string{"target_email": "news@shop.com", "action_type": "archive"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", errorKind(t, w))

	w = s.do(http.MethodPost, "/plan/execute", map[string]string{"target_email": "stranger@nowhere.com", "action_type": "delete"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, "/categories/spam", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/plan/execute", map[string]string{"target_email": "news@shop.com", "action_type": "delete", "plan_id": "made-up-plan"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "invalid_plan", errorKind(t, w))

	assert.Equal(t, 4, s.audit.CountByType(enum.AuditExecution))
	assert.Zero(t, s.provider.MutatingCalls())
}

func TestWipeCategory(t *testing.T) {
	s := newTestServer(t, "")
	s.seed()

	w := s.do(http.MethodDelete, "/categories/Promotions", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var exec handlers.ExecutionResponse
	decode(t, w, &exec)
	assert.Equal(t, "category:promotions", exec.Target)
	assert.Equal(t, enum.ActionDelete, exec.Action)
	assert.Equal(t, 30, exec.MessagesAffected)
	assert.Equal(t, 30, s.provider.CountWhere(func(m testutil.Message) bool { return m.Trashed }))
}

func TestAuditLogs(t *testing.T) {
	s := newTestServer(t, "")
	s.seed()
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/scan/run", nil).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/plan/generate", nil).Code)
	s.do(http.MethodPost, "/plan/execute", map[string]string{"target_email": "friend@mail.com", "action_type": "delete"})

	var all []models.AuditEntry
	decode(t, s.do(http.MethodGet, "/audit/logs", nil), &all)
	require.Len(t, all, 3)
	assert.Equal(t, enum.AuditScanRun, all[0].EventType)
	assert.Equal(t, enum.AuditPlanGenerated, all[1].EventType)
	assert.Equal(t, enum.AuditExecution, all[2].EventType)

	var executions []models.AuditEntry
	decode(t, s.do(http.MethodGet, "/audit/logs?event_type=execution&limit=5", nil), &executions)
	require.Len(t, executions, 1)
	assert.Equal(t, enum.OutcomeSuccess, executions[0].Outcome)

	var limited []models.AuditEntry
	decode(t, s.do(http.MethodGet, "/audit/logs?limit=1", nil), &limited)
	require.Len(t, limited, 1)
	assert.Equal(t, all[2].ID, limited[0].ID)

	var page []models.AuditEntry
	decode(t, s.do(http.MethodGet, fmt.Sprintf("/audit/logs?after_id=%d&limit=1", all[0].ID), nil), &page)
	require.Len(t, page, 1)
	assert.Equal(t, enum.AuditPlanGenerated, page[0].EventType)

	var window []models.AuditEntry
	decode(t, s.do(http.MethodGet, "/audit/logs?from=2000-01-01T00:00:00Z&to=2000-01-02T00:00:00Z", nil), &window)
	assert.Empty(t, window)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/audit/logs?limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/audit/logs?after_id=x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/audit/logs?from=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/audit/logs?event_type=bogus", nil).Code)
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	s := newTestServer(t, "")
	s.router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := s.do(http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal", errorKind(t, w))
}
