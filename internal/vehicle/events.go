package vehicle

import (
	"sync"
	"time"
)

// Field names a piece of observable vehicle state.
type Field string

// Observable fields. Names match the bindings the operator UI expects.
const (
	FieldConnectionState  Field = "connectionState"
	FieldIsConnected      Field = "isConnected"
	FieldStatusText       Field = "statusText"
	FieldIsArmed          Field = "isArmed"
	FieldFlightMode       Field = "flightMode"
	FieldLatitude         Field = "latitude"
	FieldLongitude        Field = "longitude"
	FieldAltitude         Field = "altitude"
	FieldAbsoluteAltitude Field = "absoluteAltitude"
	FieldHeading          Field = "heading"
)

// Event reports that one field of one vehicle changed.
type Event struct {
	Index int       `json:"index"`
	Field Field     `json:"field"`
	Value any       `json:"value"`
	At    time.Time `json:"ts"`
}

// Observer receives vehicle events. Observers are called synchronously from
// the goroutine that produced the change and must not block.
type Observer func(Event)

// Bus fans events out to registered observers.
type Bus struct {
	mu        sync.Mutex
	next      int
	observers map[int]Observer
}

// Subscribe registers o and returns a function that removes it.
func (b *Bus) Subscribe(o Observer) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.observers == nil {
		b.observers = make(map[int]Observer)
	}
	id := b.next
	b.next++
	b.observers[id] = o
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.observers, id)
	}
}

// Publish delivers events to every observer registered at call time.
func (b *Bus) Publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	obs := make([]Observer, 0, len(b.observers))
	for _, o := range b.observers {
		obs = append(obs, o)
	}
	b.mu.Unlock()
	for _, e := range events {
		for _, o := range obs {
			o(e)
		}
	}
}
