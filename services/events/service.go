package events

import (
	"context"

	"github.com/customeros/mailclean/config"
	"github.com/customeros/mailclean/interfaces"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/models"
)

// NewAuditPublisher connects to RabbitMQ when a URL is configured and
// otherwise returns a publisher that drops every entry.
func NewAuditPublisher(cfg *config.RabbitMQConfig, log logger.Logger) (interfaces.AuditPublisher, error) {
	if cfg == nil || cfg.URL == "" {
		log.Info("RABBITMQ_URL not set, audit events will not be published")
		return NoopPublisher{}, nil
	}
	publisher, err := NewRabbitMQPublisher(cfg.URL, log, DefaultPublisherConfig(cfg.Exchange))
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

type NoopPublisher struct{}

func (NoopPublisher) PublishAuditEntry(context.Context, *models.AuditEntry) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
