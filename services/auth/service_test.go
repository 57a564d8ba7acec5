package auth

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/testutil"
	"github.com/customeros/mailclean/services/audit"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name        string
		hookErr     error
		wantAuth    bool
		wantErr     error
		wantOutcome enum.AuditOutcome
	}{
		{name: "valid token", wantAuth: true, wantOutcome: enum.OutcomeSuccess},
		{name: "revoked token", hookErr: errors.Wrap(mailerrors.ErrProviderRejected, "invalid_grant"), wantOutcome: enum.OutcomeRejected},
		{name: "provider down", hookErr: errors.Wrap(mailerrors.ErrProviderUnavailable, "503"), wantErr: mailerrors.ErrProviderUnavailable, wantOutcome: enum.OutcomeFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := testutil.NewProvider("me@mail.com")
			provider.Hook = func(string, string) error { return tt.hookErr }
			repo := testutil.NewAuditRepository()
			svc := NewAuthService(testutil.Logger(), provider, audit.NewAuditService(testutil.Logger(), repo, nil, time.Now))

			status, err := svc.Status(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantAuth, status.Authenticated)
				if tt.wantAuth {
					assert.Equal(t, "me@mail.com", status.Email)
				}
			}

			entries := repo.Entries()
			require.Len(t, entries, 1)
			assert.Equal(t, enum.AuditTokenValidation, entries[0].EventType)
			assert.Equal(t, tt.wantOutcome, entries[0].Outcome)
		})
	}
}

func TestStatus_NoProvider(t *testing.T) {
	repo := testutil.NewAuditRepository()
	svc := NewAuthService(testutil.Logger(), nil, audit.NewAuditService(testutil.Logger(), repo, nil, time.Now))

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Authenticated)
	assert.Equal(t, 1, repo.CountByType(enum.AuditTokenValidation))
}
