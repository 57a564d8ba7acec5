package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/customeros/mailclean/internal/enum"
)

type PlanEntry struct {
	SenderEmail    string      `json:"sender_email"`
	Action         enum.Action `json:"action"`
	EmailsAffected int         `json:"emails_affected"`
	Confidence     float64     `json:"confidence"`
	RiskScore      float64     `json:"risk_score"`
}

// PlanEntries is the ordered entry list stored as JSONB.
type PlanEntries []PlanEntry

func (p PlanEntries) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

func (p *PlanEntries) Scan(value interface{}) error {
	if value == nil {
		*p = PlanEntries{}
		return nil
	}
	bytes, err := asBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, p)
}

// Plan is immutable once stored.
type Plan struct {
	ID                      string      `gorm:"column:id;type:varchar(50);primaryKey"`
	CreatedAt               time.Time   `gorm:"column:created_at;type:timestamp;not null"`
	ExpiresAt               time.Time   `gorm:"column:expires_at;type:timestamp;not null;index"`
	SnapshotVersion         int64       `gorm:"column:snapshot_version;not null"`
	Entries                 PlanEntries `gorm:"column:entries;type:jsonb;not null"`
	TotalEmails             int         `gorm:"column:total_emails;not null"`
	EstimatedCleanupPercent float64     `gorm:"column:estimated_cleanup_percent;not null"`
}

func (Plan) TableName() string {
	return "plans"
}

func (p *Plan) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
