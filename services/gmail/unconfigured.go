package gmail

import (
	"context"

	"github.com/pkg/errors"

	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/interfaces"
	mailerrors "github.com/customeros/mailclean/internal/errors"
)

var errNotConfigured = errors.Wrap(mailerrors.ErrProviderRejected, "gmail credentials are not configured")

// unconfiguredProvider answers every call with ErrProviderRejected so the
// service can run read-only endpoints without Gmail credentials.
type unconfiguredProvider struct{}

func NewUnconfiguredProvider() interfaces.MailProvider {
	return unconfiguredProvider{}
}

func (unconfiguredProvider) GetProfile(context.Context) (*dto.MailboxProfile, error) {
	return nil, errNotConfigured
}

func (unconfiguredProvider) LabelCounts(context.Context, []string) (map[string]dto.LabelCount, error) {
	return nil, errNotConfigured
}

func (unconfiguredProvider) ListLabels(context.Context) (map[string]string, error) {
	return nil, errNotConfigured
}

func (unconfiguredProvider) ListMessages(context.Context, string, []string, string, int64) (*dto.MessagePage, error) {
	return nil, errNotConfigured
}

func (unconfiguredProvider) GetMetadata(context.Context, string) (*dto.MessageMetadata, error) {
	return nil, errNotConfigured
}

func (unconfiguredProvider) EnsureLabel(context.Context, string) (string, error) {
	return "", errNotConfigured
}

func (unconfiguredProvider) ModifyMessages(context.Context, []string, []string, []string) error {
	return errNotConfigured
}

func (unconfiguredProvider) TrashMessage(context.Context, string) error {
	return errNotConfigured
}

func (unconfiguredProvider) UntrashMessage(context.Context, string) error {
	return errNotConfigured
}
