package interfaces

import (
	"context"

	"github.com/customeros/mailclean/internal/models"
)

type AuditPublisher interface {
	PublishAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	Close() error
}
