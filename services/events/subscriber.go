package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mailclean/dto"
	"github.com/customeros/mailclean/internal/logger"
	"github.com/customeros/mailclean/internal/models"
	"github.com/customeros/mailclean/internal/tracing"
	"github.com/customeros/mailclean/internal/utils"
)

// AuditHandler receives one decoded audit entry. Returning an error sends the
// message to the dead letter queue.
type AuditHandler func(ctx context.Context, entry *models.AuditEntry) error

type RabbitMQSubscriber struct {
	connection      *amqp091.Connection
	connectionMutex sync.Mutex
	url             string
	logger          logger.Logger
}

func NewRabbitMQSubscriber(rabbitmqURL string, logger logger.Logger) (*RabbitMQSubscriber, error) {
	subscriber := &RabbitMQSubscriber{
		url:    rabbitmqURL,
		logger: logger,
	}
	if err := subscriber.connect(); err != nil {
		return nil, err
	}
	return subscriber, nil
}

// Consume delivers audit entries from queueName to handler until ctx is done.
func (r *RabbitMQSubscriber) Consume(ctx context.Context, queueName string, handler AuditHandler) error {
	for {
		channel, err := r.channel()
		if err != nil {
			r.logger.Errorf("Failed to open channel for queue %s: %v. Retrying...", queueName, err)
			if !sleepCtx(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		}

		msgs, err := channel.ConsumeWithContext(
			ctx,
			queueName, // queue
			"",        // consumer tag
			false,     // auto-ack
			false,     // exclusive
			false,     // no-local
			false,     // no-wait
			nil,       // args
		)
		if err != nil {
			channel.Close()
			r.logger.Errorf("Failed to register consumer on queue %s: %v. Retrying...", queueName, err)
			if !sleepCtx(ctx, 5*time.Second) {
				return ctx.Err()
			}
			continue
		}

		r.logger.Infof("Listening for messages on queue %s", queueName)
		for d := range msgs {
			r.handleMessage(ctx, d, queueName, handler)
		}
		channel.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warnf("Connection lost for queue %s. Reconnecting...", queueName)
		if !sleepCtx(ctx, 5*time.Second) {
			return ctx.Err()
		}
	}
}

func (r *RabbitMQSubscriber) handleMessage(ctx context.Context, d amqp091.Delivery, queueName string, handler AuditHandler) {
	defer tracing.RecoverAndLogToJaeger(r.logger)

	err := r.processMessage(ctx, d, queueName, handler)
	if err != nil {
		r.logger.Errorf("Failed to process message on queue %s: %v", queueName, err)
		r.retryAckNack(d, false)
	} else {
		r.retryAckNack(d, true)
	}
}

func (r *RabbitMQSubscriber) processMessage(ctx context.Context, d amqp091.Delivery, queueName string, handler AuditHandler) error {
	entry, event, err := DecodeAuditEvent(d.Body)
	if err != nil {
		return err
	}

	ctx = utils.WithCustomContext(ctx, &utils.CustomContext{
		AppSource: event.Metadata.AppSource,
		RequestId: event.Metadata.RequestId,
	})
	ctx, span := tracing.StartMessageTracerSpanWithHeader(ctx, "RabbitMQSubscriber.ProcessMessage", event.Metadata.UberTraceId)
	defer span.Finish()
	span.LogKV("event_type", event.Event.EventType, "queue_name", queueName)

	if err := handler(ctx, entry); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// DecodeAuditEvent parses a published envelope back into its audit entry.
func DecodeAuditEvent(body []byte) (*models.AuditEntry, *dto.Event, error) {
	var envelope struct {
		Event struct {
			Id        string          `json:"id"`
			EntityId  string          `json:"entityId"`
			EventType string          `json:"eventType"`
			Data      json.RawMessage `json:"data"`
		} `json:"event"`
		Metadata dto.EventMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, errors.Wrap(err, "failed to unmarshal message")
	}
	if envelope.Event.EventType != EventTypeAuditEntry {
		return nil, nil, errors.Errorf("unexpected event type %q", envelope.Event.EventType)
	}
	var entry models.AuditEntry
	if err := json.Unmarshal(envelope.Event.Data, &entry); err != nil {
		return nil, nil, errors.Wrap(err, "failed to unmarshal audit entry")
	}
	event := &dto.Event{
		Event: dto.EventDetails{
			Id:        envelope.Event.Id,
			EntityId:  envelope.Event.EntityId,
			EventType: envelope.Event.EventType,
			Data:      &entry,
		},
		Metadata: envelope.Metadata,
	}
	return &entry, event, nil
}

func (r *RabbitMQSubscriber) channel() (*amqp091.Channel, error) {
	r.connectionMutex.Lock()
	conn := r.connection
	r.connectionMutex.Unlock()

	if conn == nil || conn.IsClosed() {
		if err := r.connect(); err != nil {
			return nil, err
		}
		r.connectionMutex.Lock()
		conn = r.connection
		r.connectionMutex.Unlock()
	}
	return conn.Channel()
}

func (r *RabbitMQSubscriber) connect() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	var err error
	r.connection, err = amqp091.Dial(r.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}
	return nil
}

func (r *RabbitMQSubscriber) retryAckNack(d amqp091.Delivery, ack bool) {
	maxRetries := 5
	retryDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		var err error
		if ack {
			err = d.Ack(false)
		} else {
			err = d.Nack(false, false)
		}

		if err == nil {
			return
		}

		time.Sleep(retryDelay)
	}

	r.logger.Errorf("Failed to %s message after %d attempts",
		map[bool]string{true: "acknowledge", false: "negative acknowledge"}[ack],
		maxRetries)
}

func (r *RabbitMQSubscriber) Close() error {
	r.connectionMutex.Lock()
	defer r.connectionMutex.Unlock()

	if r.connection != nil && !r.connection.IsClosed() {
		return r.connection.Close()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
