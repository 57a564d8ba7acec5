package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/lib/pq"

	"github.com/customeros/mailclean/internal/enum"
)

// SenderStats is the aggregated view of one sender in a scan snapshot.
// Rows are replaced wholesale on every scan.
type SenderStats struct {
	ID                   string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Email                string         `gorm:"column:email;type:varchar(320);uniqueIndex;not null" json:"email"`
	DisplayName          string         `gorm:"column:display_name;type:varchar(255)" json:"display_name"`
	TotalCount           int            `gorm:"column:total_count;not null" json:"total_count"`
	UnreadCount          int            `gorm:"column:unread_count;not null" json:"unread_count"`
	FirstSeen            time.Time      `gorm:"column:first_seen;type:timestamp" json:"first_seen"`
	LastOpened           *time.Time     `gorm:"column:last_opened;type:timestamp" json:"last_opened"`
	Labels               pq.StringArray `gorm:"column:labels;type:text[]" json:"labels"`
	Category             enum.Category  `gorm:"column:category;type:varchar(20);index" json:"category"`
	UnsubscribeDirective string         `gorm:"column:unsubscribe_directive;type:text" json:"list_unsubscribe,omitempty"`
	OneClick             bool           `gorm:"column:one_click;not null;default:false" json:"one_click"`
	ScanVersion          int64          `gorm:"column:scan_version;index" json:"-"`
}

func (SenderStats) TableName() string {
	return "sender_stats"
}

// SenderID derives the stable sender id from a normalized email.
func SenderID(email string) string {
	sum := sha256.Sum256([]byte(email))
	return "sndr_" + hex.EncodeToString(sum[:])[:12]
}

func (s *SenderStats) HasLabel(label string) bool {
	for _, l := range s.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// ScanRun records the mailbox totals of one completed scan.
type ScanRun struct {
	ID               string    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Version          int64     `gorm:"column:version;uniqueIndex;not null" json:"version"`
	ScannedAt        time.Time `gorm:"column:scanned_at;type:timestamp;not null" json:"scanned_at"`
	TotalMessages    int       `gorm:"column:total_messages;not null" json:"total_messages"`
	TotalUnread      int       `gorm:"column:total_unread;not null" json:"total_unread"`
	UnreadByCategory CountMap  `gorm:"column:unread_by_category;type:jsonb" json:"unread_by_category"`
	MessagesScanned  int       `gorm:"column:messages_scanned;not null" json:"messages_scanned"`
	SendersCount     int       `gorm:"column:senders_count;not null" json:"senders_count"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"created_at"`
}

func (ScanRun) TableName() string {
	return "scan_runs"
}
