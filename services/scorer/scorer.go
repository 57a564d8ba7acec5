package scorer

import (
	"math"
	"time"

	"github.com/customeros/mailclean/internal/enum"
	"github.com/customeros/mailclean/internal/models"
)

const (
	// confidence saturates with volume around this many messages
	volumeHalfPoint = 50.0
	volumeWeight    = 0.4
	unreadWeight    = 0.6

	recencyHalfLifeDays = 30.0
	deleteRiskPenalty   = 0.1
	importantRiskBoost  = 0.2

	LabelImportant = "IMPORTANT"
	LabelStarred   = "STARRED"
)

type Config struct {
	UnsubscribeThreshold int
	SuppressionLabel     string
}

type Score struct {
	Action     enum.Action `json:"suggested_action"`
	Confidence float64     `json:"confidence"`
	Risk       float64     `json:"risk_score"`
}

// Scorer is pure: equal inputs give equal scores.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Score(sender models.SenderStats, now time.Time) Score {
	if !wellFormed(sender) {
		return Score{Action: enum.ActionNone}
	}

	action := s.suggestAction(sender)
	return Score{
		Action:     action,
		Confidence: confidence(sender),
		Risk:       risk(sender, action, now),
	}
}

func (s *Scorer) suggestAction(sender models.SenderStats) enum.Action {
	switch {
	case s.cfg.SuppressionLabel != "" && sender.HasLabel(s.cfg.SuppressionLabel) && sender.TotalCount > 0:
		return enum.ActionDelete
	case sender.UnreadCount == sender.TotalCount &&
		sender.TotalCount > s.cfg.UnsubscribeThreshold &&
		sender.UnsubscribeDirective != "":
		return enum.ActionUnsubscribe
	default:
		return enum.ActionNone
	}
}

func wellFormed(sender models.SenderStats) bool {
	return sender.Email != "" &&
		sender.TotalCount >= 0 &&
		sender.UnreadCount >= 0 &&
		sender.UnreadCount <= sender.TotalCount
}

func confidence(sender models.SenderStats) float64 {
	if sender.TotalCount == 0 {
		return 0
	}
	total := float64(sender.TotalCount)
	volume := total / (total + volumeHalfPoint)
	unreadRatio := float64(sender.UnreadCount) / total
	return round4(clamp(volumeWeight*volume + unreadWeight*unreadRatio))
}

func risk(sender models.SenderStats, action enum.Action, now time.Time) float64 {
	r := 0.0
	if sender.LastOpened != nil {
		days := now.Sub(*sender.LastOpened).Hours() / 24
		if days < 0 {
			days = 0
		}
		r = recencyHalfLifeDays / (recencyHalfLifeDays + days)
	}
	if action == enum.ActionDelete {
		r += deleteRiskPenalty
	}
	if sender.HasLabel(LabelImportant) || sender.HasLabel(LabelStarred) {
		r += importantRiskBoost
	}
	return round4(clamp(r))
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
