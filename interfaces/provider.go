package interfaces

import (
	"context"

	"github.com/customeros/mailclean/dto"
)

// MailProvider is the narrow mail API surface the engine needs. Errors are
// classified into ErrProviderUnavailable, ErrProviderRejected or ErrNotFound.
type MailProvider interface {
	GetProfile(ctx context.Context) (*dto.MailboxProfile, error)
	LabelCounts(ctx context.Context, labelIDs []string) (map[string]dto.LabelCount, error)
	ListLabels(ctx context.Context) (map[string]string, error)
	ListMessages(ctx context.Context, query string, labelIDs []string, pageToken string, pageSize int64) (*dto.MessagePage, error)
	GetMetadata(ctx context.Context, id string) (*dto.MessageMetadata, error)
	EnsureLabel(ctx context.Context, name string) (string, error)
	// ModifyMessages applies one batchModify call. ids must not exceed
	// MaxBatchSize.
	ModifyMessages(ctx context.Context, ids, addLabelIDs, removeLabelIDs []string) error
	TrashMessage(ctx context.Context, id string) error
	UntrashMessage(ctx context.Context, id string) error
}

const MaxBatchSize = 1000

type UnsubscribeOutcome struct {
	URL        string
	Method     string
	StatusCode int
}

type Unsubscriber interface {
	Unsubscribe(ctx context.Context, directive string, oneClick bool) (*UnsubscribeOutcome, error)
}
