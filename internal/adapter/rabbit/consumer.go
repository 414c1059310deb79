package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
	"ridecore/pkg/logger"
	"ridecore/pkg/rabbit"
)

// EventSink receives decoded lifecycle events for local fan-out.
type EventSink interface {
	SendTo(ctx context.Context, userID uuid.UUID, event models.Event)
	Broadcast(ctx context.Context, event models.Event)
}

// LifecycleConsumer bridges ride transitions published by other service
// instances into this instance's notification registry. A rider connected to
// the rider instance still hears about an accept committed on the driver
// instance through this path. Messages carrying our own origin id are
// skipped: the publishing process already notified its local sessions.
type LifecycleConsumer struct {
	client *rabbit.RabbitMQ
	sink   EventSink
	origin string

	l logger.Logger
}

func NewLifecycleConsumer(client *rabbit.RabbitMQ, sink EventSink, origin string, l logger.Logger) *LifecycleConsumer {
	return &LifecycleConsumer{client: client, sink: sink, origin: origin, l: l}
}

// Consume reads lifecycle events until the context is cancelled. Each
// instance consumes from its own server-named exclusive queue bound to the
// lifecycle exchange, so every instance sees the whole stream; the queue
// dies with the connection.
func (c *LifecycleConsumer) Consume(ctx context.Context) error {
	const op = "LifecycleConsumer.Consume"

	for {
		if ctx.Err() != nil {
			c.l.Debug(ctx, "lifecycle consumer stopped by context")
			return nil
		}

		if err := c.client.EnsureConnection(ctx); err != nil {
			c.l.Error(ctx, "ensure connection failed", err, "op", op)
			time.Sleep(2 * time.Second)
			continue
		}

		if err := c.client.Channel.ExchangeDeclare(LifecycleExchange, "topic", true, false, false, false, nil); err != nil {
			c.l.Error(ctx, "declare exchange failed", err, "op", op)
			time.Sleep(3 * time.Second)
			continue
		}

		q, err := c.bindQueue()
		if err != nil {
			c.l.Error(ctx, "bind queue failed", err, "op", op)
			time.Sleep(2 * time.Second)
			continue
		}

		msgs, err := c.client.Channel.Consume(q.Name, "", false, false, false, false, nil)
		if err != nil {
			c.l.Error(ctx, "consume failed", err, "op", op)
			time.Sleep(2 * time.Second)
			continue
		}

		c.l.Info(ctx, "start consuming lifecycle events", "queue", q.Name)

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				c.l.Info(ctx, "lifecycle consumer shutting down", "op", op)
				return nil

			case msg, ok := <-msgs:
				if !ok {
					c.l.Warn(ctx, "message channel closed, reconnecting...", "op", op)
					time.Sleep(2 * time.Second)
					break consumeLoop
				}

				c.handleMessage(ctx, msg)
			}
		}
	}
}

func (c *LifecycleConsumer) bindQueue() (amqp.Queue, error) {
	q, err := c.client.Channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return q, fmt.Errorf("declare queue: %w", err)
	}
	if err := c.client.Channel.QueueBind(q.Name, "ride.event.#", LifecycleExchange, false, nil); err != nil {
		return q, fmt.Errorf("bind queue %q: %w", q.Name, err)
	}
	return q, nil
}

func (c *LifecycleConsumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	const op = "LifecycleConsumer.handleMessage"

	if msg.AppId == c.origin {
		_ = msg.Ack(false)
		return
	}

	event, err := decodeEvent(msg.Type, msg.Body)
	if err != nil {
		c.l.Error(ctx, "decode failed", err, "op", op, "type", msg.Type)
		// Notifications are at-most-once: a frame we cannot read is dropped,
		// not requeued.
		_ = msg.Reject(false)
		return
	}

	switch ev := event.(type) {
	case models.RideAcceptedEvent:
		c.sink.SendTo(ctx, ev.RiderID, ev)
	default:
		c.sink.Broadcast(ctx, event)
	}

	_ = msg.Ack(false)
}

func decodeEvent(kind string, body []byte) (models.Event, error) {
	switch kind {
	case types.EventNewRideRequest.String():
		var ev models.NewRideRequestEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case types.EventRideStatusUpdated.String():
		var ev models.RideStatusUpdatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case types.EventRideAccepted.String():
		var ev models.RideAcceptedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown lifecycle event type %q", kind)
	}
}
