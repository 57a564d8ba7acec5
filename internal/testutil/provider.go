package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/interfaces"
	mailerrors "github.com/customeros/mailclean/internal/errors"
)

// Message is one mailbox message held by Provider.
type Message struct {
	ID                  string
	From                string
	Date                time.Time
	Labels              map[string]bool
	ListUnsubscribe     string
	ListUnsubscribePost string
	Trashed             bool
	Purged              bool
}

// Provider is an in-memory mail provider that counts every call.
type Provider struct {
	mu       sync.Mutex
	Email    string
	messages map[string]*Message
	labels   map[string]string
	calls    map[string]int

	// Hook, when set, runs before every call and may return an error for it.
	// op is the method name, id the message id when there is one.
	Hook func(op string, id string) error
}

func NewProvider(email string) *Provider {
	return &Provider{
		Email:    email,
		messages: make(map[string]*Message),
		labels:   make(map[string]string),
		calls:    make(map[string]int),
	}
}

// AddMessages creates count messages from sender carrying labels.
func (p *Provider) AddMessages(prefix, from string, count int, labels ...string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%s-%05d", prefix, i)
		set := make(map[string]bool, len(labels))
		for _, l := range labels {
			set[l] = true
		}
		p.messages[id] = &Message{ID: id, From: from, Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute), Labels: set}
		ids = append(ids, id)
	}
	return ids
}

// PutMessage stores a fully specified message.
func (p *Provider) PutMessage(m Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.Labels == nil {
		m.Labels = map[string]bool{}
	}
	msg := m
	p.messages[m.ID] = &msg
}

func (p *Provider) Message(id string) Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := *p.messages[id]
	labels := make(map[string]bool, len(m.Labels))
	for k, v := range m.Labels {
		labels[k] = v
	}
	m.Labels = labels
	return m
}

// Purge simulates the provider permanently deleting messages.
func (p *Provider) Purge(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		if m, ok := p.messages[id]; ok {
			m.Purged = true
		}
	}
}

func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *Provider) TotalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

// MutatingCalls counts calls that change mailbox state.
func (p *Provider) MutatingCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls["ModifyMessages"] + p.calls["TrashMessage"] + p.calls["UntrashMessage"] + p.calls["EnsureLabel"]
}

func (p *Provider) CountWhere(fn func(Message) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.messages {
		if fn(*m) {
			n++
		}
	}
	return n
}

func (p *Provider) enter(ctx context.Context, op, id string) error {
	p.mu.Lock()
	p.calls[op]++
	hook := p.Hook
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if hook != nil {
		return hook(op, id)
	}
	return nil
}

func (p *Provider) GetProfile(ctx context.Context) (*dto.MailboxProfile, error) {
	if err := p.enter(ctx, "GetProfile", ""); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, m := range p.messages {
		if !m.Purged {
			total++
		}
	}
	return &dto.MailboxProfile{EmailAddress: p.Email, MessagesTotal: total, ThreadsTotal: total}, nil
}

func (p *Provider) LabelCounts(ctx context.Context, labelIDs []string) (map[string]dto.LabelCount, error) {
	if err := p.enter(ctx, "LabelCounts", ""); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]dto.LabelCount, len(labelIDs))
	for _, label := range labelIDs {
		var c dto.LabelCount
		for _, m := range p.messages {
			if m.Trashed || m.Purged || !m.Labels[label] {
				continue
			}
			c.Total++
			if m.Labels["UNREAD"] {
				c.Unread++
			}
		}
		out[label] = c
	}
	return out, nil
}

func (p *Provider) ListLabels(ctx context.Context) (map[string]string, error) {
	if err := p.enter(ctx, "ListLabels", ""); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.labels))
	for id, name := range p.labels {
		out[id] = name
	}
	return out, nil
}

// ListMessages understands "from:<address>" queries and label filters.
// Trashed and purged messages are never listed.
func (p *Provider) ListMessages(ctx context.Context, query string, labelIDs []string, pageToken string, pageSize int64) (*dto.MessagePage, error) {
	if err := p.enter(ctx, "ListMessages", ""); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	from := ""
	for _, term := range strings.Fields(query) {
		if strings.HasPrefix(term, "from:") {
			from = strings.TrimPrefix(term, "from:")
		}
	}
	var ids []string
	for id, m := range p.messages {
		if m.Trashed || m.Purged {
			continue
		}
		if from != "" && !strings.EqualFold(m.From, from) {
			continue
		}
		matched := true
		for _, l := range labelIDs {
			if !m.Labels[l] {
				matched = false
				break
			}
		}
		if matched {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return nil, errors.Wrap(mailerrors.ErrProviderRejected, "bad page token")
		}
		offset = n
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	if offset > len(ids) {
		offset = len(ids)
	}
	end := offset + int(pageSize)
	page := &dto.MessagePage{}
	if end < len(ids) {
		page.NextPageToken = strconv.Itoa(end)
	} else {
		end = len(ids)
	}
	page.IDs = append(page.IDs, ids[offset:end]...)
	return page, nil
}

func (p *Provider) GetMetadata(ctx context.Context, id string) (*dto.MessageMetadata, error) {
	if err := p.enter(ctx, "GetMetadata", id); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.messages[id]
	if !ok || m.Purged {
		return nil, errors.Wrapf(mailerrors.ErrNotFound, "message %s", id)
	}
	labels := make([]string, 0, len(m.Labels))
	for l := range m.Labels {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return &dto.MessageMetadata{
		ID:                  m.ID,
		From:                m.From,
		Date:                m.Date,
		ListUnsubscribe:     m.ListUnsubscribe,
		ListUnsubscribePost: m.ListUnsubscribePost,
		LabelIDs:            labels,
	}, nil
}

func (p *Provider) EnsureLabel(ctx context.Context, name string) (string, error) {
	if err := p.enter(ctx, "EnsureLabel", name); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, existing := range p.labels {
		if existing == name {
			return id, nil
		}
	}
	id := fmt.Sprintf("Label_%d", len(p.labels)+1)
	p.labels[id] = name
	return id, nil
}

func (p *Provider) ModifyMessages(ctx context.Context, ids, addLabelIDs, removeLabelIDs []string) error {
	if len(ids) > interfaces.MaxBatchSize {
		return errors.Wrap(mailerrors.ErrProviderRejected, "batch too large")
	}
	if err := p.enter(ctx, "ModifyMessages", strings.Join(ids, ",")); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		m, ok := p.messages[id]
		if !ok || m.Purged {
			continue
		}
		for _, l := range addLabelIDs {
			m.Labels[l] = true
		}
		for _, l := range removeLabelIDs {
			delete(m.Labels, l)
		}
	}
	return nil
}

func (p *Provider) TrashMessage(ctx context.Context, id string) error {
	if err := p.enter(ctx, "TrashMessage", id); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.messages[id]
	if !ok || m.Purged {
		return errors.Wrapf(mailerrors.ErrNotFound, "message %s", id)
	}
	m.Trashed = true
	return nil
}

func (p *Provider) UntrashMessage(ctx context.Context, id string) error {
	if err := p.enter(ctx, "UntrashMessage", id); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.messages[id]
	if !ok || m.Purged {
		return errors.Wrapf(mailerrors.ErrNotFound, "message %s", id)
	}
	m.Trashed = false
	return nil
}

var _ interfaces.MailProvider = (*Provider)(nil)
