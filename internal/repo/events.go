package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/decorluxe/backend-blinds/internal/events"
)

// EventsRepo persists domain events.
type EventsRepo struct {
	Q Querier
}

var _ events.EventStore = EventsRepo{}

// InsertDomainEvent appends one event and returns the stored row.
func (r EventsRepo) InsertDomainEvent(ctx context.Context, topic string, aggregateID uuid.UUID, payload []byte) (events.DomainEvent, error) {
	const insert = `
INSERT INTO domain_events (id, topic, aggregate_id, payload)
VALUES ($1, $2, $3, $4)
RETURNING id, topic, aggregate_id, payload, occurred_at`

	var ev events.DomainEvent
	err := r.Q.QueryRow(ctx, insert, uuid.New(), topic, aggregateID, payload).Scan(
		&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt,
	)
	if err != nil {
		return events.DomainEvent{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}
