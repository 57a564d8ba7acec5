package gmail

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/customeros/mailclean/config"
)

// NewGmailService builds an authorized Gmail API client from the configured
// refresh token. The access token is refreshed on first use.
func NewGmailService(ctx context.Context, cfg *config.GmailConfig) (*gmailapi.Service, error) {
	if !cfg.Configured() {
		return nil, errors.New("gmail credentials are not configured")
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailapi.GmailModifyScope},
	}
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now(),
	}

	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, token))
	httpClient.Timeout = cfg.RequestTimeout

	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gmail service")
	}
	return svc, nil
}

// NewGmailServiceWithClient points the Gmail client at endpoint using the
// given http client. Used against local stand-ins of the API.
func NewGmailServiceWithClient(ctx context.Context, endpoint string, client *http.Client) (*gmailapi.Service, error) {
	svc, err := gmailapi.NewService(ctx, option.WithEndpoint(endpoint), option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gmail service")
	}
	return svc, nil
}
