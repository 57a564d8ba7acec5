package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/services/planner"
	"github.com/customeros/mailclean/services/scorer"
)

type ScanSummary struct {
	TotalEmailsScanned               int             `json:"total_emails_scanned"`
	TotalUnread                      int             `json:"total_unread"`
	UnreadByCategory                 models.CountMap `json:"unread_by_category"`
	NeverReadSendersCount            int             `json:"never_read_senders_count"`
	EstimatedCleanupPotentialPercent float64         `json:"estimated_cleanup_potential_percent"`
	LastScanAt                       *time.Time      `json:"last_scan_at"`
	Run                              *models.ScanRun `json:"run,omitempty"`
}

type ScanHandler struct {
	scanner     interfaces.ScannerService
	stats       interfaces.StatsStore
	scorer      *scorer.Scorer
	maxMessages int
}

func NewScanHandler(scanner interfaces.ScannerService, stats interfaces.StatsStore, sc *scorer.Scorer, maxMessages int) *ScanHandler {
	return &ScanHandler{scanner: scanner, stats: stats, scorer: sc, maxMessages: maxMessages}
}

// Summary reports mailbox totals of the current snapshot. It never calls the
// provider.
func (h *ScanHandler) Summary() gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := h.stats.Current()
		c.JSON(http.StatusOK, BuildScanSummary(snapshot, h.scorer, h.maxMessages))
	}
}

// Run scans the mailbox now and returns the stored scan run.
func (h *ScanHandler) Run() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ScanHandler.Run")
		defer span.Finish()

		run, err := h.scanner.Scan(ctx)
		if err != nil {
			respondError(c, span, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func BuildScanSummary(snapshot *models.Snapshot, sc *scorer.Scorer, maxMessages int) ScanSummary {
	neverRead := 0
	snapshot.Range(func(sender models.SenderStats) bool {
		if sender.LastOpened == nil {
			neverRead++
		}
		return true
	})
	_, percent := planner.Summarize(planner.BuildEntries(snapshot, sc, maxMessages), snapshot.Run.TotalMessages)

	unread := snapshot.Run.UnreadByCategory
	if unread == nil {
		unread = models.CountMap{}
	}
	summary := ScanSummary{
		TotalEmailsScanned:               snapshot.Run.TotalMessages,
		TotalUnread:                      snapshot.Run.TotalUnread,
		UnreadByCategory:                 unread,
		NeverReadSendersCount:            neverRead,
		EstimatedCleanupPotentialPercent: percent,
	}
	if snapshot.Version() > 0 {
		scannedAt := snapshot.ScannedAt()
		run := snapshot.Run
		summary.LastScanAt = &scannedAt
		summary.Run = &run
	}
	return summary
}
