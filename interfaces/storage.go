package interfaces

import (
	"context"
	"time"
)

type StorageService interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type AuditExporter interface {
	// ExportDay writes every audit entry of the UTC day containing day and
	// returns the object key and entry count.
	ExportDay(ctx context.Context, day time.Time) (string, int, error)
}
