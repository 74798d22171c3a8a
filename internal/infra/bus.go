package infra

import "sync"

// EventType represents a pipeline stage event
type EventType int

const (
	RecordsPreChecked EventType = iota
	RecordsBucketed
	ReconciliationCompleted
	ReportAssembled
	RunFailed
)

// EventTypes lists every event type in stage order.
var EventTypes = []EventType{
	RecordsPreChecked,
	RecordsBucketed,
	ReconciliationCompleted,
	ReportAssembled,
	RunFailed,
}

// String returns the string representation of the EventType
func (et EventType) String() string {
	switch et {
	case RecordsPreChecked:
		return "RecordsPreChecked"
	case RecordsBucketed:
		return "RecordsBucketed"
	case ReconciliationCompleted:
		return "ReconciliationCompleted"
	case ReportAssembled:
		return "ReportAssembled"
	case RunFailed:
		return "RunFailed"
	default:
		return "Unknown"
	}
}

type Event interface{ EventType() EventType }
type Handler func(Event)

// Bus delivers events synchronously, in subscription order, on the publisher's goroutine.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Handler
}

func NewBus() *Bus { return &Bus{subs: map[EventType][]Handler{}} }

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.EventType()]
	b.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}

func (b *Bus) Subscribe(evt EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[evt] = append(b.subs[evt], h)
}

// SubscribeAll registers h for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	for _, evt := range EventTypes {
		b.Subscribe(evt, h)
	}
}
