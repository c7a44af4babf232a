// Package sync reconciles offline edits against the cloud backend and
// surfaces divergence conflicts for explicit resolution.
package sync

import (
	"sort"
	gosync "sync"
	"time"
)

// EventKind identifies a bus event type.
type EventKind string

const (
	EventConflictDetected EventKind = "conflict_detected"
	EventSyncCompleted    EventKind = "sync_completed"
	EventWorkspaceSwitch  EventKind = "workspace:switch"
)

// Event is one published bus event. ConflictDetails carries exactly the
// conflicts produced by the emitting pass, never a cumulative list;
// listeners accumulate their own state from repeated events.
type Event struct {
	Kind            EventKind   `json:"kind"`
	DocumentID      string      `json:"document_id,omitempty"`
	ConflictDetails []*Conflict `json:"conflict_details,omitempty"`
	From            string      `json:"from,omitempty"`
	To              string      `json:"to,omitempty"`
	Timestamp       int64       `json:"timestamp"`
}

// Handler receives published events.
type Handler func(Event)

// Subscription is a detachable handle returned by Subscribe.
type Subscription struct {
	id   int
	kind EventKind
	fn   Handler
	bus  *Bus
}

// Cancel detaches the subscription. Cancelling twice is harmless.
func (s *Subscription) Cancel() {
	if s.bus != nil {
		s.bus.unsubscribe(s)
		s.bus = nil
	}
}

// Bus is a typed publish/subscribe channel. Delivery is synchronous, in
// registration order, at most once per emitted event.
type Bus struct {
	mu     gosync.Mutex
	nextID int
	subs   map[EventKind][]*Subscription
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventKind][]*Subscription)}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind EventKind, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, kind: kind, fn: fn, bus: b}
	b.subs[kind] = append(b.subs[kind], sub)
	return sub
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.kind]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to all current subscribers of its kind.
// Handlers run outside the bus lock so they may subscribe or cancel freely.
func (b *Bus) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	b.mu.Lock()
	subs := make([]*Subscription, len(b.subs[event.Kind]))
	copy(subs, b.subs[event.Kind])
	b.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	for _, s := range subs {
		s.fn(event)
	}
}
