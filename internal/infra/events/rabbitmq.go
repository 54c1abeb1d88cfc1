package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"tg-download-bot/internal/domain"
	"tg-download-bot/internal/infra/metrics"
)

// RabbitPublisher публикует события жизненного цикла в topic exchange RabbitMQ.
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      zerolog.Logger
	mu       sync.Mutex
}

// NewRabbitPublisher подключается к брокеру и объявляет exchange.
func NewRabbitPublisher(amqpURL, exchange string, logger zerolog.Logger) (*RabbitPublisher, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if exchange == "" {
		return nil, errors.New("exchange name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &RabbitPublisher{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		log:      logger.With().Str("component", "events").Logger(),
	}, nil
}

// Publish отправляет событие с routing key, равным имени события.
func (p *RabbitPublisher) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	msg, err := buildPublishing(event, time.Now().UTC())
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	start := time.Now()
	err = p.ch.PublishWithContext(ctx, p.exchange, event.Event, false, false, msg)
	metrics.ObserveNetworkRequest("rabbitmq", "publish", p.exchange, start, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Event, err)
	}
	return nil
}

// Close закрывает канал и соединение.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}

func buildPublishing(event domain.LifecycleEvent, now time.Time) (amqp.Publishing, error) {
	if event.Event == "" {
		return amqp.Publishing{}, errors.New("event name is empty")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    event.OccurredAt,
		Type:         event.Event,
		Body:         body,
	}, nil
}

// Async публикует события в фоне, чтобы брокер не задерживал ответы пользователю.
type Async struct {
	next domain.EventPublisher
	log  zerolog.Logger
}

// NewAsync оборачивает публикатор.
func NewAsync(next domain.EventPublisher, logger zerolog.Logger) *Async {
	return &Async{next: next, log: logger}
}

// Publish реализует domain.EventPublisher. Ошибки только логируются.
func (a *Async) Publish(_ context.Context, event domain.LifecycleEvent) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.next.Publish(ctx, event); err != nil {
			a.log.Warn().Err(err).Str("event", event.Event).Msg("не удалось опубликовать событие")
		}
	}()
	return nil
}

var (
	_ domain.EventPublisher = (*RabbitPublisher)(nil)
	_ domain.EventPublisher = (*Async)(nil)
)
