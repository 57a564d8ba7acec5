package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/customeros/mailclean/interfaces"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/testutil"
)

type fakeGmail struct {
	mu      sync.Mutex
	labels  []map[string]string
	created []string
	hits    map[string]int
	status  map[string]int
}

func (f *fakeGmail) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, path string, body interface{}) {
		f.mu.Lock()
		f.hits[path]++
		code := f.status[path]
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if code != 0 {
			w.WriteHeader(code)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"code": code, "message": http.StatusText(code)},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}
	mux.HandleFunc("/gmail/v1/users/me/profile", func(w http.ResponseWriter, r *http.Request) {
		write(w, r.URL.Path, map[string]interface{}{"emailAddress": "me@mail.com", "messagesTotal": 4200, "threadsTotal": 3100})
	})
	mux.HandleFunc("/gmail/v1/users/me/labels", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var label map[string]string
			_ = json.NewDecoder(r.Body).Decode(&label)
			f.mu.Lock()
			f.created = append(f.created, label["name"])
			f.labels = append(f.labels, map[string]string{"id": "Label_9", "name": label["name"]})
			f.mu.Unlock()
			write(w, r.URL.Path+"#create", map[string]string{"id": "Label_9", "name": label["name"]})
			return
		}
		f.mu.Lock()
		labels := append([]map[string]string(nil), f.labels...)
		f.mu.Unlock()
		write(w, r.URL.Path, map[string]interface{}{"labels": labels})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		write(w, r.URL.Path, map[string]interface{}{
			"messages":      []map[string]string{{"id": "m1"}, {"id": "m2"}},
			"nextPageToken": "p2",
		})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		write(w, r.URL.Path, map[string]interface{}{
			"id":       "m1",
			"labelIds": []string{"INBOX", "UNREAD"},
			"payload": map[string]interface{}{"headers": []map[string]string{
				{"name": "From", "value": "Shop <news@shop.com>"},
				{"name": "Date", "value": "Mon, 02 Mar 2026 10:00:00 +0000"},
				{"name": "List-Unsubscribe", "value": "<https://shop.com/u>"},
				{"name": "List-Unsubscribe-Post", "value": "List-Unsubscribe=One-Click"},
			}},
		})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/gone/trash", func(w http.ResponseWriter, r *http.Request) {
		write(w, r.URL.Path, nil)
	})
	return mux
}

func newTestProvider(t *testing.T) (interfaces.MailProvider, *fakeGmail) {
	t.Helper()
	fake := &fakeGmail{
		labels: []map[string]string{{"id": "INBOX", "name": "INBOX"}},
		hits:   map[string]int{},
		status: map[string]int{"/gmail/v1/users/me/messages/gone/trash": http.StatusNotFound},
	}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	svc, err := NewGmailServiceWithClient(context.Background(), srv.URL+"/", srv.Client())
	require.NoError(t, err)
	return NewGmailProvider(testutil.Logger(), svc, "me", 1000, 10), fake
}

func TestProvider_ProfileAndMetadata(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	profile, err := p.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "me@mail.com", profile.EmailAddress)
	assert.Equal(t, 4200, profile.MessagesTotal)

	page, err := p.ListMessages(ctx, "newer_than:1y", nil, "", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, page.IDs)
	assert.Equal(t, "p2", page.NextPageToken)

	meta, err := p.GetMetadata(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Shop <news@shop.com>", meta.From)
	assert.Equal(t, "<https://shop.com/u>", meta.ListUnsubscribe)
	assert.Equal(t, "List-Unsubscribe=One-Click", meta.ListUnsubscribePost)
	assert.Equal(t, 2026, meta.Date.Year())
	assert.Equal(t, []string{"INBOX", "UNREAD"}, meta.LabelIDs)
}

func TestProvider_EnsureLabelCreatesOnce(t *testing.T) {
	p, fake := newTestProvider(t)
	ctx := context.Background()

	id, err := p.EnsureLabel(ctx, "Unsubscribed")
	require.NoError(t, err)
	assert.Equal(t, "Label_9", id)

	id, err = p.EnsureLabel(ctx, "Unsubscribed")
	require.NoError(t, err)
	assert.Equal(t, "Label_9", id)
	assert.Equal(t, []string{"Unsubscribed"}, fake.created)
}

func TestProvider_ErrorMapping(t *testing.T) {
	p, _ := newTestProvider(t)

	err := p.TrashMessage(context.Background(), "gone")
	assert.ErrorIs(t, err, mailerrors.ErrNotFound)

	ids := make([]string, interfaces.MaxBatchSize+1)
	err = p.ModifyMessages(context.Background(), ids, []string{"Label_9"}, nil)
	assert.ErrorIs(t, err, mailerrors.ErrProviderRejected)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "not found", err: &googleapi.Error{Code: 404}, want: mailerrors.ErrNotFound},
		{name: "rate limited", err: &googleapi.Error{Code: 429}, want: mailerrors.ErrProviderUnavailable},
		{name: "server error", err: &googleapi.Error{Code: 503}, want: mailerrors.ErrProviderUnavailable},
		{name: "quota 403", err: &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, want: mailerrors.ErrProviderUnavailable},
		{name: "forbidden", err: &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "insufficientPermissions"}}}, want: mailerrors.ErrProviderRejected},
		{name: "bad request", err: &googleapi.Error{Code: 400}, want: mailerrors.ErrProviderRejected},
		{name: "token refresh", err: &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, want: mailerrors.ErrProviderRejected},
		{name: "transport", err: errors.New("connection reset"), want: mailerrors.ErrProviderUnavailable},
		{name: "cancelled", err: context.Canceled, want: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err, "op"), tt.want)
		})
	}
}

func TestUnconfiguredProvider_RejectsEverything(t *testing.T) {
	p := NewUnconfiguredProvider()
	ctx := context.Background()

	_, err := p.GetProfile(ctx)
	assert.True(t, errors.Is(err, mailerrors.ErrProviderRejected))
	_, err = p.ListMessages(ctx, "", nil, "", 10)
	assert.True(t, errors.Is(err, mailerrors.ErrProviderRejected))
	assert.True(t, errors.Is(p.TrashMessage(ctx, "m1"), mailerrors.ErrProviderRejected))
	assert.False(t, mailerrors.IsTransient(p.ModifyMessages(ctx, []string{"m1"}, nil, nil)))
}
