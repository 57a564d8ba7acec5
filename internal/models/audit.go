package models

import (
	"time"

	"github.com/customeros/mailclean/internal/enum"
)

// AuditEntry is append-only. IDs come from a bigserial so they increase with
// insertion order.
type AuditEntry struct {
	ID        int64               `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EventType enum.AuditEventType `gorm:"column:event_type;type:varchar(30);not null;index" json:"event_type"`
	Timestamp time.Time           `gorm:"column:timestamp;type:timestamp;not null;index" json:"timestamp"`
	Details   JSONMap             `gorm:"column:details;type:jsonb" json:"details"`
	Outcome   enum.AuditOutcome   `gorm:"column:outcome;type:varchar(20);not null" json:"outcome"`
}

func (AuditEntry) TableName() string {
	return "audit_log"
}

// AuditFilter selects audit entries. Results are always oldest first. With
// AfterID set the listing pages forward from that entry; otherwise a limited
// listing holds the newest matching entries.
type AuditFilter struct {
	EventType enum.AuditEventType
	From      *time.Time
	To        *time.Time
	AfterID   *int64
	Limit     int
}

// Tail reports whether a limited listing should keep the newest entries.
func (f AuditFilter) Tail() bool {
	return f.Limit > 0 && f.AfterID == nil
}
