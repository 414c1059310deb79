// Package rabbit publishes committed ride transitions to a topic exchange
// for downstream auditing. Publishing is fire-and-forget from the caller's
// point of view: the lifecycle service logs failures and moves on.
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"ridecore/internal/domain/models"
	"ridecore/pkg/logger"
	wrap "ridecore/pkg/logger/wrapper"
	"ridecore/pkg/metrics"
	"ridecore/pkg/rabbit"
)

const (
	LifecycleExchange = "ride_lifecycle"

	publishRetries    = 5
	publishRetryDelay = time.Second
)

type LifecycleBroker struct {
	client   *rabbit.RabbitMQ
	exchange string
	origin   string

	l logger.Logger
}

// NewLifecycleBroker declares the exchange. origin identifies this process;
// it travels as the message AppId so consumers can tell their own
// publications apart from those of other instances.
func NewLifecycleBroker(client *rabbit.RabbitMQ, origin string, log logger.Logger) (*LifecycleBroker, error) {
	b := &LifecycleBroker{
		client:   client,
		exchange: LifecycleExchange,
		origin:   origin,
		l:        log,
	}

	if err := client.Channel.ExchangeDeclare(
		b.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // auto-delete
		false,      // internal
		false,      // no-wait
		nil,        // args
	); err != nil {
		return nil, fmt.Errorf("declare exchange %q: %w", b.exchange, err)
	}

	return b, nil
}

// PublishRideEvent sends the event with routing key "ride.event.{name}".
func (b *LifecycleBroker) PublishRideEvent(ctx context.Context, event models.Event) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_ride_event")

	if err := b.client.EnsureConnection(ctx); err != nil {
		b.l.Error(ctx, "ensure connection failed", err)
		return wrap.Error(ctx, err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to marshal event: %w", err))
	}

	key := fmt.Sprintf("ride.event.%s", event.EventName())

	err = retry(publishRetries, publishRetryDelay, func() error {
		return b.client.Channel.PublishWithContext(
			ctx,
			b.exchange, // exchange
			key,        // routing key
			false,      // mandatory
			false,      // immediate
			amqp091.Publishing{
				ContentType: "application/json",
				Type:        event.EventName().String(),
				AppId:       b.origin,
				Body:        body,
				Timestamp:   time.Now(),
			},
		)
	})
	metrics.RecordRabbitMQPublish("lifecycle-broker", b.exchange, err)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to publish ride event: %w", err))
	}

	return nil
}

func retry(n int, sleep time.Duration, fn func() error) error {
	var err error
	for range n {
		if err = fn(); err == nil {
			return nil
		}
		time.Sleep(sleep)
	}
	return err
}
