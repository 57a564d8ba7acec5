package models

import (
	"time"

	"github.com/lib/pq"

	"github.com/customeros/mailclean/internal/enum"
)

const CategoryTargetPrefix = "category:"

// ExecutionRecord is the durable result of one executed action. Only the
// undo manager flips Reverted.
type ExecutionRecord struct {
	ID            string              `gorm:"column:id;type:varchar(50);primaryKey"`
	Target        string              `gorm:"column:target;type:varchar(320);not null;index:idx_execution_lookup"`
	Action        enum.Action         `gorm:"column:action;type:varchar(20);not null;index:idx_execution_lookup"`
	PlanID        string              `gorm:"column:plan_id;type:varchar(50);not null;default:''"`
	State         enum.ExecutionState `gorm:"column:state;type:varchar(20);not null"`
	TargetedCount int                 `gorm:"column:targeted_count;not null"`
	AffectedCount int                 `gorm:"column:affected_count;not null"`
	FailedCount   int                 `gorm:"column:failed_count;not null"`
	Unsubscribed  bool                `gorm:"column:unsubscribed;not null;default:false"`
	Error         string              `gorm:"column:error;type:text"`
	AuditEntryID  int64               `gorm:"column:audit_entry_id"`
	HasUndo       bool                `gorm:"column:has_undo;not null;default:false"`
	Reverted      bool                `gorm:"column:reverted;not null;default:false"`
	RevertedAt    *time.Time          `gorm:"column:reverted_at;type:timestamp"`
	CreatedAt     time.Time           `gorm:"column:created_at;type:timestamp;not null"`
}

func (ExecutionRecord) TableName() string {
	return "executions"
}

// UndoRecord captures the inverse of one execution.
type UndoRecord struct {
	ExecutionID    string           `gorm:"column:execution_id;type:varchar(50);primaryKey"`
	InverseKind    enum.InverseKind `gorm:"column:inverse_kind;type:varchar(20);not null"`
	AddLabelIDs    pq.StringArray   `gorm:"column:add_label_ids;type:text[]"`
	RemoveLabelIDs pq.StringArray   `gorm:"column:remove_label_ids;type:text[]"`
	MessageIDs     pq.StringArray   `gorm:"column:message_ids;type:text[]"`
	Description    string           `gorm:"column:description;type:text"`
	State          enum.UndoState   `gorm:"column:state;type:varchar(20);not null;index"`
	CreatedAt      time.Time        `gorm:"column:created_at;type:timestamp;not null"`
	ExpiresAt      time.Time        `gorm:"column:expires_at;type:timestamp;not null;index"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;type:timestamp"`
}

func (UndoRecord) TableName() string {
	return "undo_records"
}

// EffectiveState applies lazy expiry: an active record at or past its
// expiry reads as expired.
func (u *UndoRecord) EffectiveState(now time.Time) enum.UndoState {
	if u.State == enum.UndoActive && !now.Before(u.ExpiresAt) {
		return enum.UndoExpired
	}
	return u.State
}
