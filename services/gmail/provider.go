package gmail

import (
	"context"
	"net/mail"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/interfaces"
	mailerrors "github.com/customeros/mailclean/internal/errors"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/tracing"
)

var metadataHeaders = []string{"From", "Date", "List-Unsubscribe", "List-Unsubscribe-Post"}

type gmailProvider struct {
	log     logger.Logger
	svc     *gmailapi.Service
	userID  string
	limiter *rate.Limiter
}

// NewGmailProvider wraps svc behind a token bucket of rps requests per second.
func NewGmailProvider(log logger.Logger, svc *gmailapi.Service, userID string, rps float64, burst int) interfaces.MailProvider {
	if userID == "" {
		userID = "me"
	}
	if burst <= 0 {
		burst = 1
	}
	return &gmailProvider{
		log:     log,
		svc:     svc,
		userID:  userID,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *gmailProvider) start(ctx context.Context, operation string) (opentracing.Span, context.Context, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GmailProvider."+operation)
	tracing.SetDefaultProviderSpanTags(ctx, span)
	if err := p.limiter.Wait(ctx); err != nil {
		tracing.TraceErr(span, err)
		if ctx.Err() != nil {
			return span, ctx, ctx.Err()
		}
		return span, ctx, errors.Wrap(mailerrors.ErrProviderUnavailable, err.Error())
	}
	return span, ctx, nil
}

func (p *gmailProvider) GetProfile(ctx context.Context) (*dto.MailboxProfile, error) {
	span, ctx, err := p.start(ctx, "GetProfile")
	defer span.Finish()
	if err != nil {
		return nil, err
	}

	profile, err := p.svc.Users.GetProfile(p.userID).Context(ctx).Do()
	if err != nil {
		err = classify(err, "get profile")
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &dto.MailboxProfile{
		EmailAddress:  profile.EmailAddress,
		MessagesTotal: int(profile.MessagesTotal),
		ThreadsTotal:  int(profile.ThreadsTotal),
	}, nil
}

func (p *gmailProvider) LabelCounts(ctx context.Context, labelIDs []string) (map[string]dto.LabelCount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GmailProvider.LabelCounts")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)

	counts := make(map[string]dto.LabelCount, len(labelIDs))
	for _, id := range labelIDs {
		if err := p.limiter.Wait(ctx); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		label, err := p.svc.Users.Labels.Get(p.userID, id).Context(ctx).Do()
		if err != nil {
			err = classify(err, "get label "+id)
			if errors.Is(err, mailerrors.ErrNotFound) {
				counts[id] = dto.LabelCount{}
				continue
			}
			tracing.TraceErr(span, err)
			return nil, err
		}
		counts[id] = dto.LabelCount{Total: int(label.MessagesTotal), Unread: int(label.MessagesUnread)}
	}
	return counts, nil
}

func (p *gmailProvider) ListLabels(ctx context.Context) (map[string]string, error) {
	span, ctx, err := p.start(ctx, "ListLabels")
	defer span.Finish()
	if err != nil {
		return nil, err
	}

	res, err := p.svc.Users.Labels.List(p.userID).Context(ctx).Do()
	if err != nil {
		err = classify(err, "list labels")
		tracing.TraceErr(span, err)
		return nil, err
	}
	labels := make(map[string]string, len(res.Labels))
	for _, l := range res.Labels {
		labels[l.Id] = l.Name
	}
	return labels, nil
}

func (p *gmailProvider) ListMessages(ctx context.Context, query string, labelIDs []string, pageToken string, pageSize int64) (*dto.MessagePage, error) {
	span, ctx, err := p.start(ctx, "ListMessages")
	defer span.Finish()
	if err != nil {
		return nil, err
	}
	span.LogKV("query", query, "pageToken", pageToken)

	call := p.svc.Users.Messages.List(p.userID).IncludeSpamTrash(false)
	if query != "" {
		call = call.Q(query)
	}
	if len(labelIDs) > 0 {
		call = call.LabelIds(labelIDs...)
	}
	if pageSize > 0 {
		call = call.MaxResults(pageSize)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		err = classify(err, "list messages")
		tracing.TraceErr(span, err)
		return nil, err
	}

	page := &dto.MessagePage{IDs: make([]string, 0, len(res.Messages)), NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

func (p *gmailProvider) GetMetadata(ctx context.Context, id string) (*dto.MessageMetadata, error) {
	span, ctx, err := p.start(ctx, "GetMetadata")
	defer span.Finish()
	if err != nil {
		return nil, err
	}

	msg, err := p.svc.Users.Messages.Get(p.userID, id).Format("metadata").MetadataHeaders(metadataHeaders...).Context(ctx).Do()
	if err != nil {
		err = classify(err, "get message "+id)
		tracing.TraceErr(span, err)
		return nil, err
	}

	meta := &dto.MessageMetadata{ID: msg.Id, LabelIDs: msg.LabelIds}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				meta.From = h.Value
			case "Date":
				if t, err := mail.ParseDate(h.Value); err == nil {
					meta.Date = t.UTC()
				}
			case "List-Unsubscribe":
				meta.ListUnsubscribe = h.Value
			case "List-Unsubscribe-Post":
				meta.ListUnsubscribePost = h.Value
			}
		}
	}
	if meta.Date.IsZero() && msg.InternalDate > 0 {
		meta.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	return meta, nil
}

func (p *gmailProvider) EnsureLabel(ctx context.Context, name string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GmailProvider.EnsureLabel")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span)

	labels, err := p.ListLabels(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	for id, existing := range labels {
		if existing == name {
			return id, nil
		}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	created, err := p.svc.Users.Labels.Create(p.userID, &gmailapi.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		err = classify(err, "create label "+name)
		tracing.TraceErr(span, err)
		return "", err
	}
	p.log.Infof("Created gmail label %s (%s)", name, created.Id)
	return created.Id, nil
}

func (p *gmailProvider) ModifyMessages(ctx context.Context, ids, addLabelIDs, removeLabelIDs []string) error {
	if len(ids) > interfaces.MaxBatchSize {
		return errors.Wrapf(mailerrors.ErrProviderRejected, "batchModify accepts at most %d ids, got %d", interfaces.MaxBatchSize, len(ids))
	}
	if len(ids) == 0 {
		return nil
	}
	span, ctx, err := p.start(ctx, "ModifyMessages")
	defer span.Finish()
	if err != nil {
		return err
	}
	span.LogKV("count", len(ids))

	req := &gmailapi.BatchModifyMessagesRequest{Ids: ids}
	if len(addLabelIDs) > 0 {
		req.AddLabelIds = addLabelIDs
	}
	if len(removeLabelIDs) > 0 {
		req.RemoveLabelIds = removeLabelIDs
	}
	if err := p.svc.Users.Messages.BatchModify(p.userID, req).Context(ctx).Do(); err != nil {
		err = classify(err, "batch modify")
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (p *gmailProvider) TrashMessage(ctx context.Context, id string) error {
	span, ctx, err := p.start(ctx, "TrashMessage")
	defer span.Finish()
	if err != nil {
		return err
	}
	if _, err := p.svc.Users.Messages.Trash(p.userID, id).Context(ctx).Do(); err != nil {
		err = classify(err, "trash "+id)
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (p *gmailProvider) UntrashMessage(ctx context.Context, id string) error {
	span, ctx, err := p.start(ctx, "UntrashMessage")
	defer span.Finish()
	if err != nil {
		return err
	}
	if _, err := p.svc.Users.Messages.Untrash(p.userID, id).Context(ctx).Do(); err != nil {
		err = classify(err, "untrash "+id)
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
