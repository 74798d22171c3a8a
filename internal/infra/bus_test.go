package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testBucketedEvent struct {
	Matched   int
	Unmatched int
}

func (e testBucketedEvent) EventType() EventType {
	return RecordsBucketed
}

type testFailedEvent struct {
	Stage string
}

func (e testFailedEvent) EventType() EventType {
	return RunFailed
}

func TestEventTypeEnum(t *testing.T) {
	t.Run("EventType.String() returns correct values", func(t *testing.T) {
		// Arrange & Act & Assert
		assert.Equal(t, "RecordsPreChecked", RecordsPreChecked.String())
		assert.Equal(t, "RecordsBucketed", RecordsBucketed.String())
		assert.Equal(t, "ReconciliationCompleted", ReconciliationCompleted.String())
		assert.Equal(t, "ReportAssembled", ReportAssembled.String())
		assert.Equal(t, "RunFailed", RunFailed.String())
		assert.Equal(t, "Unknown", EventType(999).String())
	})

	t.Run("EventTypes lists every named type", func(t *testing.T) {
		for _, evt := range EventTypes {
			assert.NotEqual(t, "Unknown", evt.String())
		}
	})
}

func TestBus(t *testing.T) {
	t.Run("handlers only receive events they subscribed to", func(t *testing.T) {
		// Arrange
		bus := NewBus()
		var bucketed, failed []Event
		bus.Subscribe(RecordsBucketed, func(e Event) { bucketed = append(bucketed, e) })
		bus.Subscribe(RunFailed, func(e Event) { failed = append(failed, e) })

		// Act
		bus.Publish(testBucketedEvent{Matched: 3, Unmatched: 1})
		bus.Publish(testFailedEvent{Stage: "assign"})

		// Assert
		assert.Len(t, bucketed, 1)
		assert.Len(t, failed, 1)
		assert.Equal(t, testBucketedEvent{Matched: 3, Unmatched: 1}, bucketed[0])
		assert.Equal(t, RunFailed, failed[0].EventType())
	})

	t.Run("handlers run in subscription order", func(t *testing.T) {
		// Arrange
		bus := NewBus()
		var order []string
		bus.Subscribe(RecordsBucketed, func(Event) { order = append(order, "first") })
		bus.Subscribe(RecordsBucketed, func(Event) { order = append(order, "second") })

		// Act
		bus.Publish(testBucketedEvent{})

		// Assert
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("SubscribeAll receives every event type", func(t *testing.T) {
		// Arrange
		bus := NewBus()
		var received []EventType
		bus.SubscribeAll(func(e Event) { received = append(received, e.EventType()) })

		// Act
		bus.Publish(testBucketedEvent{})
		bus.Publish(testFailedEvent{})

		// Assert
		assert.Equal(t, []EventType{RecordsBucketed, RunFailed}, received)
	})

	t.Run("publishing without subscribers is a no-op", func(t *testing.T) {
		bus := NewBus()
		assert.NotPanics(t, func() { bus.Publish(testFailedEvent{}) })
	})
}
