package auth

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/enum"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/tracing"
)

type authService struct {
	log      logger.Logger
	provider interfaces.MailProvider
	audit    interfaces.AuditService
}

func NewAuthService(log logger.Logger, provider interfaces.MailProvider, audit interfaces.AuditService) interfaces.AuthService {
	return &authService{log: log, provider: provider, audit: audit}
}

// Status checks the configured credentials with a profile call. A rejected
// token is reported as unauthenticated rather than as an error.
func (s *authService) Status(ctx context.Context) (*dto.AuthStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AuthService.Status")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if s.provider == nil {
		if _, err := s.audit.Append(ctx, enum.AuditTokenValidation, enum.OutcomeRejected, map[string]interface{}{
			"error": "gmail credentials are not configured",
		}); err != nil {
			return nil, err
		}
		return &dto.AuthStatus{Authenticated: false}, nil
	}

	profile, err := s.provider.GetProfile(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		outcome := enum.OutcomeFailure
		if errors.Is(err, mailerrors.ErrProviderRejected) {
			outcome = enum.OutcomeRejected
		}
		if _, auditErr := s.audit.Append(context.WithoutCancel(ctx), enum.AuditTokenValidation, outcome, map[string]interface{}{
			"error": err.Error(),
			"kind":  mailerrors.Kind(err),
		}); auditErr != nil {
			return nil, auditErr
		}
		if outcome == enum.OutcomeRejected {
			s.log.Warnf("Gmail token rejected: %v", err)
			return &dto.AuthStatus{Authenticated: false}, nil
		}
		return nil, err
	}

	if _, err := s.audit.Append(ctx, enum.AuditTokenValidation, enum.OutcomeSuccess, map[string]interface{}{
		"email": profile.EmailAddress,
	}); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &dto.AuthStatus{Authenticated: true, Email: profile.EmailAddress}, nil
}
