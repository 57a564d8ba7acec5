package gmail

import (
	"context"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	mailerrors "github.com/customeros/mailclean/internal/errors"
)

var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"backendError":          true,
}

// classify maps a Gmail API failure onto the provider error taxonomy.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusNotFound:
			return errors.Wrapf(mailerrors.ErrNotFound, "%s: %s", op, apiErr.Message)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return errors.Wrapf(mailerrors.ErrProviderUnavailable, "%s: %d %s", op, apiErr.Code, apiErr.Message)
		case apiErr.Code == http.StatusForbidden && hasRateLimitReason(apiErr):
			return errors.Wrapf(mailerrors.ErrProviderUnavailable, "%s: %s", op, apiErr.Message)
		default:
			return errors.Wrapf(mailerrors.ErrProviderRejected, "%s: %d %s", op, apiErr.Code, apiErr.Message)
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return errors.Wrapf(mailerrors.ErrProviderRejected, "%s: token refresh failed: %v", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Wrapf(mailerrors.ErrProviderUnavailable, "%s: %v", op, err)
	}
	return errors.Wrapf(mailerrors.ErrProviderUnavailable, "%s: %v", op, err)
}

func hasRateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if rateLimitReasons[item.Reason] {
			return true
		}
	}
	return false
}
