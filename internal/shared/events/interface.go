package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	TypeRunCompleted = "cohort.run.completed"
	TypeRunFailed    = "cohort.run.failed"
)

// Event represents a domain event
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	Data any `json:"data"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithCorrelation sets the correlation ID, typically the run id
func (e Event) WithCorrelation(correlationID string) Event {
	e.CorrelationID = correlationID
	return e
}

// Publisher defines the interface for event publishing
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
	Health() error
}

// Ensure Bus implements Publisher
var _ Publisher = (*Bus)(nil)

// MemoryPublisher keeps published events in memory. It backs runs without
// KurrentDB and tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewMemoryPublisher creates an in-memory publisher. A non-nil err is
// returned by every Publish call.
func NewMemoryPublisher(err error) *MemoryPublisher {
	return &MemoryPublisher{err: err}
}

func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of the published events
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

func (p *MemoryPublisher) Close() {}

func (p *MemoryPublisher) Health() error { return nil }
