/**
 * @description
 * This file provides the event-collection capability shared by every aggregate
 * in the service. Aggregates embed AggregateRoot and record events from their
 * own state transitions; the application layer drains the buffer only after the
 * aggregate has been persisted, so no event ever describes state that was not
 * durably committed.
 */

package domain

// AggregateRoot buffers domain events produced by an aggregate's state
// transitions until the application layer drains them for publication.
// Embed it by value in the aggregate struct.
type AggregateRoot struct {
	events []Event
}

// Record appends an event to the buffer. Called by the aggregate's own
// transition methods, never from outside the aggregate.
func (a *AggregateRoot) Record(event Event) {
	a.events = append(a.events, event)
}

// DrainEvents returns all buffered events in the order they were recorded and
// empties the buffer. A second drain without intervening transitions returns
// an empty slice.
func (a *AggregateRoot) DrainEvents() []Event {
	events := a.events
	a.events = nil
	return events
}

// PeekEvents returns a copy of the buffered events without consuming them.
func (a *AggregateRoot) PeekEvents() []Event {
	events := make([]Event, len(a.events))
	copy(events, a.events)
	return events
}
