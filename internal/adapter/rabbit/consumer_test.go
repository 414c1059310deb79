package rabbit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecore/internal/domain/models"
	"ridecore/internal/domain/types"
	"ridecore/pkg/logger"
)

type recordingSink struct {
	mu        sync.Mutex
	directed  map[uuid.UUID][]models.Event
	broadcast []models.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{directed: make(map[uuid.UUID][]models.Event)}
}

func (s *recordingSink) SendTo(_ context.Context, userID uuid.UUID, event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directed[userID] = append(s.directed[userID], event)
}

func (s *recordingSink) Broadcast(_ context.Context, event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcast = append(s.broadcast, event)
}

func (s *recordingSink) directedTo(userID uuid.UUID) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.directed[userID]...)
}

func (s *recordingSink) broadcasts() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.broadcast...)
}

const selfOrigin = "instance-self"

func newTestConsumer() (*LifecycleConsumer, *recordingSink) {
	sink := newRecordingSink()
	c := NewLifecycleConsumer(nil, sink, selfOrigin, logger.InitLogger("consumer-test", logger.LevelError))
	return c, sink
}

func delivery(t *testing.T, event models.Event, origin string) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{
		Type:  event.EventName().String(),
		AppId: origin,
		Body:  body,
	}
}

func TestHandleMessage_RoutesAcceptedEventToRider(t *testing.T) {
	c, sink := newTestConsumer()
	riderID := uuid.New()
	event := models.RideAcceptedEvent{
		RideID:   uuid.New(),
		RiderID:  riderID,
		DriverID: uuid.New(),
	}

	c.handleMessage(context.Background(), delivery(t, event, "instance-driver"))

	directed := sink.directedTo(riderID)
	require.Len(t, directed, 1)
	assert.Equal(t, event, directed[0])
	assert.Empty(t, sink.broadcasts())
}

func TestHandleMessage_BroadcastsRequestAndStatusEvents(t *testing.T) {
	c, sink := newTestConsumer()

	c.handleMessage(context.Background(), delivery(t, models.NewRideRequestEvent{RideID: uuid.New()}, "instance-rider"))
	c.handleMessage(context.Background(), delivery(t, models.RideStatusUpdatedEvent{
		RideID: uuid.New(),
		Status: types.StatusInProgress,
	}, "instance-driver"))

	events := sink.broadcasts()
	require.Len(t, events, 2)
	assert.Equal(t, types.EventNewRideRequest, events[0].EventName())
	assert.Equal(t, types.EventRideStatusUpdated, events[1].EventName())
}

func TestHandleMessage_SkipsOwnPublications(t *testing.T) {
	c, sink := newTestConsumer()
	event := models.RideAcceptedEvent{RideID: uuid.New(), RiderID: uuid.New()}

	c.handleMessage(context.Background(), delivery(t, event, selfOrigin))

	assert.Empty(t, sink.directedTo(event.RiderID))
	assert.Empty(t, sink.broadcasts())
}

func TestHandleMessage_DropsUnreadableFrames(t *testing.T) {
	c, sink := newTestConsumer()

	c.handleMessage(context.Background(), amqp.Delivery{
		Type:  types.EventRideAccepted.String(),
		AppId: "instance-driver",
		Body:  []byte("{not json"),
	})
	c.handleMessage(context.Background(), amqp.Delivery{
		Type:  "unrelated_event",
		AppId: "instance-driver",
		Body:  []byte(`{}`),
	})

	assert.Empty(t, sink.broadcasts())
}

func TestDecodeEvent_RoundTripsEveryKind(t *testing.T) {
	events := []models.Event{
		models.NewRideRequestEvent{RideID: uuid.New(), BaseFare: 10},
		models.RideStatusUpdatedEvent{RideID: uuid.New(), Status: types.StatusCancelled},
		models.RideAcceptedEvent{RideID: uuid.New(), RiderID: uuid.New(), DriverID: uuid.New()},
	}
	for _, event := range events {
		t.Run(event.EventName().String(), func(t *testing.T) {
			body, err := json.Marshal(event)
			require.NoError(t, err)

			decoded, err := decodeEvent(event.EventName().String(), body)
			require.NoError(t, err)
			assert.Equal(t, event.EventName(), decoded.EventName())
		})
	}
}
