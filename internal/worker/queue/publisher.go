package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// amqpChannel is the part of *amqp.Channel the publisher needs.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RoutingKeys struct {
	EntryAppended   string
	CheckRequested  string
	RecordRequested string
}

type RabbitMQPublisher interface {
	Publish(ctx context.Context, routingKey, messageID string, body []byte) error
	PublishEntryAppended(ctx context.Context, event models.EntryAppendedEvent) error
	PublishCheckRequested(ctx context.Context, event models.CheckRequestedEvent) error
	PublishRecordRequested(ctx context.Context, event models.RecordRequestedEvent) error
}

type rabbitMQPublisher struct {
	channel  amqpChannel
	exchange string
	keys     RoutingKeys
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewRabbitMQPublisher(channel amqpChannel, exchange string, keys RoutingKeys, logger zerolog.Logger) RabbitMQPublisher {
	if keys.EntryAppended == "" {
		keys.EntryAppended = models.EventEntryAppended
	}
	if keys.CheckRequested == "" {
		keys.CheckRequested = models.EventCheckRequested
	}
	if keys.RecordRequested == "" {
		keys.RecordRequested = models.EventRecordRequested
	}
	return &rabbitMQPublisher{
		channel:  channel,
		exchange: exchange,
		keys:     keys,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

func (p *rabbitMQPublisher) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.channel.PublishWithContext(
		publishCtx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    messageID,
			Type:         routingKey,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	p.logger.Debug().
		Str("exchange", p.exchange).
		Str("routing_key", routingKey).
		Str("message_id", messageID).
		Msg("Message published")

	return nil
}

func (p *rabbitMQPublisher) PublishEntryAppended(ctx context.Context, event models.EntryAppendedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.Publish(ctx, p.keys.EntryAppended, event.EventID, body)
}

func (p *rabbitMQPublisher) PublishCheckRequested(ctx context.Context, event models.CheckRequestedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.Publish(ctx, p.keys.CheckRequested, event.CheckID, body)
}

func (p *rabbitMQPublisher) PublishRecordRequested(ctx context.Context, event models.RecordRequestedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.Publish(ctx, p.keys.RecordRequested, event.EventID, body)
}
