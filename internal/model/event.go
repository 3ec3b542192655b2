package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a point-in-time annotation attached to a Span.
type Event struct {
	ID         uuid.UUID  `db:"id" validate:"required"`
	SpanID     uuid.UUID  `db:"span_id" validate:"required"`
	Name       string     `db:"name" validate:"required"`
	Timestamp  time.Time  `db:"timestamp" validate:"required"`
	Attributes Attributes `db:"attributes"`
	CreatedAt  time.Time  `db:"created_at"`
}

// NewEvent constructs an Event with a fresh internal id.
func NewEvent(spanID uuid.UUID, name string, timestamp time.Time) *Event {
	return &Event{
		ID:         uuid.New(),
		SpanID:     spanID,
		Name:       name,
		Timestamp:  timestamp,
		Attributes: Attributes{},
		CreatedAt:  time.Now().UTC(),
	}
}

func (e *Event) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("event: %w", err)
	}
	return nil
}
