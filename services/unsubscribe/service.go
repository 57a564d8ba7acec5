package unsubscribe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailclean/interfaces"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/tracing"
	"github.com/customeros/mailclean/internal/utils"
)

const (
	userAgent    = "mailclean/1.0"
	oneClickBody = "List-Unsubscribe=One-Click"
)

type httpUnsubscriber struct {
	log    logger.Logger
	client *http.Client
}

// NewHTTPUnsubscriber follows List-Unsubscribe http(s) links. A nil client
// gets a default one with the given timeout.
func NewHTTPUnsubscriber(log logger.Logger, client *http.Client, timeout time.Duration) interfaces.Unsubscriber {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &httpUnsubscriber{log: log, client: client}
}

// Unsubscribe sends an RFC 8058 one-click POST when the sender advertises it
// and falls back to a plain GET otherwise or when the POST is refused.
func (u *httpUnsubscriber) Unsubscribe(ctx context.Context, directive string, oneClick bool) (*interfaces.UnsubscribeOutcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Unsubscriber.Unsubscribe")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)

	url := utils.ExtractHTTPUnsubscribeURL(directive)
	if url == "" {
		err := errors.Wrap(mailerrors.ErrInvalidInput, "no http unsubscribe link in directive")
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogKV("url", url, "oneClick", oneClick)

	if oneClick {
		outcome, err := u.send(ctx, span, http.MethodPost, url)
		if err == nil {
			return outcome, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		u.log.Warnf("one-click unsubscribe POST to %s failed, trying GET: %v", url, err)
	}

	outcome, err := u.send(ctx, span, http.MethodGet, url)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return outcome, nil
}

func (u *httpUnsubscriber) send(ctx context.Context, span opentracing.Span, method, url string) (*interfaces.UnsubscribeOutcome, error) {
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(oneClickBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrapf(mailerrors.ErrInvalidInput, "build request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req = tracing.InjectSpanContextIntoHTTPRequest(req, span)

	resp, err := u.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(mailerrors.ErrProviderUnavailable, "%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.Wrapf(mailerrors.ErrProviderUnavailable, "%s %s: status %d", method, url, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, errors.Wrapf(mailerrors.ErrProviderRejected, "%s %s: status %d", method, url, resp.StatusCode)
	}
	return &interfaces.UnsubscribeOutcome{URL: url, Method: method, StatusCode: resp.StatusCode}, nil
}
