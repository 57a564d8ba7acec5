package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	apierrors "github.com/customeros/mailclean/api/errors"
	"github.com/customeros/mailclean/internal/enum"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
	"github.com/customeros/mailclean/services/scorer"
)

type SenderResponse struct {
	ID              string        `json:"id"`
	Email           string        `json:"email"`
	Name            string        `json:"name"`
	TotalEmails     int           `json:"total_emails"`
	UnreadCount     int           `json:"unread_count"`
	FirstSeenDate   *time.Time    `json:"first_seen_date"`
	LastOpenedDate  *time.Time    `json:"last_opened_date"`
	Labels          []string      `json:"labels"`
	Category        enum.Category `json:"category"`
	ListUnsubscribe *string       `json:"list_unsubscribe"`
	OneClick        bool          `json:"one_click"`
	SuggestedAction enum.Action   `json:"suggested_action"`
	Confidence      float64       `json:"confidence"`
	RiskScore       float64       `json:"risk_score"`
}

type SendersPage struct {
	Senders       []SenderResponse `json:"senders"`
	NextPageToken *string          `json:"next_page_token"`
}

type PlanSenderResponse struct {
	Sender            string      `json:"sender"`
	EmailsAffected    int         `json:"emails_affected"`
	RecommendedAction enum.Action `json:"recommended_action"`
	Confidence        float64     `json:"confidence"`
	RiskScore         float64     `json:"risk_score"`
}

type PlanSummary struct {
	TotalEmails             int     `json:"total_emails"`
	EstimatedCleanupPercent float64 `json:"estimated_cleanup_percent"`
}

type PlanResponse struct {
	PlanID          string               `json:"plan_id"`
	CreatedAt       time.Time            `json:"created_at"`
	ExpiresAt       time.Time            `json:"expires_at"`
	SnapshotVersion int64                `json:"snapshot_version"`
	Senders         []PlanSenderResponse `json:"senders"`
	Summary         PlanSummary          `json:"summary"`
}

type ExecutionResponse struct {
	ExecutionID      string              `json:"execution_id"`
	Target           string              `json:"target"`
	Action           enum.Action         `json:"action"`
	PlanID           string              `json:"plan_id,omitempty"`
	State            enum.ExecutionState `json:"state"`
	TargetedCount    int                 `json:"targeted_count"`
	MessagesAffected int                 `json:"messages_affected"`
	FailedCount      int                 `json:"failed_count"`
	Unsubscribed     bool                `json:"unsubscribed"`
	Error            string              `json:"error,omitempty"`
	AuditEntryID     int64               `json:"audit_entry_id"`
	HasUndo          bool                `json:"has_undo"`
	Reverted         bool                `json:"reverted"`
	RevertedAt       *time.Time          `json:"reverted_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

func newSenderResponse(sender models.SenderStats, score scorer.Score) SenderResponse {
	resp := SenderResponse{
		ID:              sender.ID,
		Email:           sender.Email,
		Name:            sender.DisplayName,
		TotalEmails:     sender.TotalCount,
		UnreadCount:     sender.UnreadCount,
		LastOpenedDate:  sender.LastOpened,
		Labels:          append([]string{}, sender.Labels...),
		Category:        sender.Category,
		OneClick:        sender.OneClick,
		SuggestedAction: score.Action,
		Confidence:      score.Confidence,
		RiskScore:       score.Risk,
	}
	if !sender.FirstSeen.IsZero() {
		firstSeen := sender.FirstSeen
		resp.FirstSeenDate = &firstSeen
	}
	if sender.UnsubscribeDirective != "" {
		directive := sender.UnsubscribeDirective
		resp.ListUnsubscribe = &directive
	}
	return resp
}

func newPlanResponse(plan *models.Plan) PlanResponse {
	senders := make([]PlanSenderResponse, 0, len(plan.Entries))
	for _, entry := range plan.Entries {
		senders = append(senders, PlanSenderResponse{
			Sender:            entry.SenderEmail,
			EmailsAffected:    entry.EmailsAffected,
			RecommendedAction: entry.Action,
			Confidence:        entry.Confidence,
			RiskScore:         entry.RiskScore,
		})
	}
	return PlanResponse{
		PlanID:          plan.ID,
		CreatedAt:       plan.CreatedAt,
		ExpiresAt:       plan.ExpiresAt,
		SnapshotVersion: plan.SnapshotVersion,
		Senders:         senders,
		Summary: PlanSummary{
			TotalEmails:             plan.TotalEmails,
			EstimatedCleanupPercent: plan.EstimatedCleanupPercent,
		},
	}
}

func newExecutionResponse(record *models.ExecutionRecord) ExecutionResponse {
	return ExecutionResponse{
		ExecutionID:      record.ID,
		Target:           record.Target,
		Action:           record.Action,
		PlanID:           record.PlanID,
		State:            record.State,
		TargetedCount:    record.TargetedCount,
		MessagesAffected: record.AffectedCount,
		FailedCount:      record.FailedCount,
		Unsubscribed:     record.Unsubscribed,
		Error:            record.Error,
		AuditEntryID:     record.AuditEntryID,
		HasUndo:          record.HasUndo,
		Reverted:         record.Reverted,
		RevertedAt:       record.RevertedAt,
		CreatedAt:        record.CreatedAt,
	}
}

// respondError writes the mapped status and body and records err on span.
func respondError(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)
	c.JSON(apierrors.StatusCode(err), apierrors.NewErrorResponse(err))
}
