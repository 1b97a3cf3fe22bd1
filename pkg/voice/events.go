package voice

import (
	"sync"
)

// EventName identifies a transport event.
type EventName string

const (
	EventCallStart   EventName = "call-start"
	EventCallEnd     EventName = "call-end"
	EventSpeechStart EventName = "speech-start"
	EventSpeechEnd   EventName = "speech-end"
	EventMessage     EventName = "message"
	EventError       EventName = "error"
)

// Event is delivered to subscribers. Message is set for EventMessage and Err
// for EventError.
type Event struct {
	Name    EventName
	Message *Message
	Err     error
}

// Handler receives events. Handlers run on the transport's read goroutine and
// must not block.
type Handler func(Event)

// Subscription identifies one registered handler so it can be removed
// individually.
type Subscription struct {
	Event EventName
	id    uint64
}

// Valid reports whether s came from a successful On call.
func (s Subscription) Valid() bool { return s.id != 0 }

// Emitter is a registry of event handlers. The zero value is ready to use and
// a nil *Emitter ignores every call.
type Emitter struct {
	mu       sync.Mutex
	next     uint64
	handlers map[EventName][]registered
}

type registered struct {
	id uint64
	fn Handler
}

func (e *Emitter) On(name EventName, fn Handler) Subscription {
	if e == nil || fn == nil {
		return Subscription{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[EventName][]registered)
	}
	e.next++
	e.handlers[name] = append(e.handlers[name], registered{id: e.next, fn: fn})
	return Subscription{Event: name, id: e.next}
}

func (e *Emitter) Off(sub Subscription) {
	if e == nil || !sub.Valid() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.handlers[sub.Event]
	for i, r := range list {
		if r.id == sub.id {
			e.handlers[sub.Event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(e.handlers[sub.Event]) == 0 {
		delete(e.handlers, sub.Event)
	}
}

func (e *Emitter) OffAll(name EventName) {
	if e == nil {
		return
	}
	e.mu.Lock()
	delete(e.handlers, name)
	e.mu.Unlock()
}

// Count returns the number of handlers registered for name.
func (e *Emitter) Count(name EventName) int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[name])
}

// Emit calls every handler registered for ev.Name in registration order.
// Handlers are invoked outside the registry lock so they may call Off.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	e.mu.Lock()
	list := append([]registered(nil), e.handlers[ev.Name]...)
	e.mu.Unlock()
	for _, r := range list {
		r.fn(ev)
	}
}
