package testutil

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/utils"
)

// Unsubscriber records requests instead of sending them.
type Unsubscriber struct {
	mu       sync.Mutex
	Requests []string
	Err      error
}

func (u *Unsubscriber) Unsubscribe(ctx context.Context, directive string, oneClick bool) (*interfaces.UnsubscribeOutcome, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url := utils.ExtractHTTPUnsubscribeURL(directive)
	u.Requests = append(u.Requests, url)
	if u.Err != nil {
		return nil, u.Err
	}
	method := "GET"
	if oneClick {
		method = "POST"
	}
	return &interfaces.UnsubscribeOutcome{URL: url, Method: method, StatusCode: 200}, nil
}

func (u *Unsubscriber) Count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.Requests)
}

// Publisher collects published audit entries.
type Publisher struct {
	mu        sync.Mutex
	Published []models.AuditEntry
	Err       error
}

func (p *Publisher) PublishAuditEntry(_ context.Context, entry *models.AuditEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Published = append(p.Published, *entry)
	return nil
}

func (p *Publisher) Close() error {
	return nil
}

func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Published)
}

// Storage keeps uploaded objects in memory.
type Storage struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

func NewStorage() *Storage {
	return &Storage{Objects: make(map[string][]byte)}
}

func (s *Storage) Upload(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *Storage) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Objects[key]
	if !ok {
		return nil, errors.Errorf("object %s not found", key)
	}
	return data, nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, key)
	return nil
}

func Logger() logger.Logger {
	return logger.NewNopLogger()
}

var (
	_ interfaces.Unsubscriber   = (*Unsubscriber)(nil)
	_ interfaces.AuditPublisher = (*Publisher)(nil)
	_ interfaces.StorageService = (*Storage)(nil)
)
