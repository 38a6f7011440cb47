package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/decorluxe/backend-blinds/internal/events"
)

type stubStore struct {
	lastTopic     string
	lastAggregate uuid.UUID
	lastPayload   []byte
	err           error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.DomainEvent, error) {
	if s.err != nil {
		return events.DomainEvent{}, s.err
	}
	s.lastTopic = topic
	s.lastAggregate = aggregateID
	s.lastPayload = payload
	return events.DomainEvent{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
		OccurredAt:  time.Now(),
	}, nil
}

type captureNotifier struct {
	events []events.DomainEvent
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.DomainEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
	}

	aggregate := uuid.New()
	payload := map[string]any{"orderId": "123"}
	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicSettlementRecorded, aggregate, payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicSettlementRecorded, store.lastTopic)
	require.Equal(t, aggregate, store.lastAggregate)
	require.JSONEq(t, `{"orderId":"123"}`, string(store.lastPayload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "123", decoded["orderId"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, "  ", uuid.New(), nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicQuoteComputed, uuid.Nil, nil)
	require.Error(t, err)

	_, err = bus.Emit(ctx, events.TopicQuoteComputed, uuid.New(), "not json")
	require.Error(t, err)
}

func TestEmitEmptyPayloadDefaultsToObject(t *testing.T) {
	store := &stubStore{}
	bus := events.Bus{Store: store}

	_, err := bus.Emit(context.Background(), events.TopicCouponReserved, uuid.New(), nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(store.lastPayload))
}

func TestEmitNotifierFailureDoesNotDropEvent(t *testing.T) {
	store := &stubStore{}
	failing := &captureNotifier{err: errors.New("sink down")}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{failing}}

	event, err := bus.Emit(context.Background(), events.TopicCouponCommitted, uuid.New(), nil)
	require.Error(t, err)
	require.NotEqual(t, uuid.Nil, event.ID)
	require.Len(t, failing.events, 1)
}
