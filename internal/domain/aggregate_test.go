package domain

import "testing"

type stubEvent struct {
	BaseEvent
	Label string
}

func newStubEvent(label string) stubEvent {
	return stubEvent{BaseEvent: newBaseEvent("test." + label), Label: label}
}

func TestDrainEvents_ReturnsEventsInRecordedOrder(t *testing.T) {
	var root AggregateRoot
	root.Record(newStubEvent("first"))
	root.Record(newStubEvent("second"))
	root.Record(newStubEvent("third"))

	events := root.DrainEvents()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, label := range []string{"first", "second", "third"} {
		if events[i].(stubEvent).Label != label {
			t.Fatalf("expected event %d to be %q, got %q", i, label, events[i].(stubEvent).Label)
		}
	}
}

func TestDrainEvents_SecondDrainIsEmpty(t *testing.T) {
	var root AggregateRoot
	root.Record(newStubEvent("only"))

	if got := len(root.DrainEvents()); got != 1 {
		t.Fatalf("expected 1 event on first drain, got %d", got)
	}
	if got := len(root.DrainEvents()); got != 0 {
		t.Fatalf("expected empty second drain, got %d events", got)
	}
}

func TestPeekEvents_DoesNotConsumeBuffer(t *testing.T) {
	var root AggregateRoot
	root.Record(newStubEvent("kept"))

	if got := len(root.PeekEvents()); got != 1 {
		t.Fatalf("expected 1 peeked event, got %d", got)
	}
	if got := len(root.PeekEvents()); got != 1 {
		t.Fatalf("expected peek to leave the buffer intact, got %d events", got)
	}
	if got := len(root.DrainEvents()); got != 1 {
		t.Fatalf("expected drain after peek to return 1 event, got %d", got)
	}
}

func TestRecordAfterDrain_BuffersNewEventsOnly(t *testing.T) {
	var root AggregateRoot
	root.Record(newStubEvent("before"))
	root.DrainEvents()
	root.Record(newStubEvent("after"))

	events := root.DrainEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event after re-recording, got %d", len(events))
	}
	if events[0].(stubEvent).Label != "after" {
		t.Fatalf("expected the post-drain event, got %q", events[0].(stubEvent).Label)
	}
}
