package transport

import (
	"sync"

	"github.com/zeusync/conduit/internal/core/events/bus"
)

// Subscription stops delivery to one subscriber when cancelled.
type Subscription interface {
	Cancel()
}

type busSubscription struct {
	sub bus.Subscription
}

func (s busSubscription) Cancel() { _ = s.sub.Cancel() }

type noopSubscription struct{}

func (noopSubscription) Cancel() {}

// Stream is a lazy, multi-subscriber event stream. Subscribers only observe
// events published after they subscribed.
//
// A terminal stream fires at most once and remembers it: subscribing after it
// fired calls the subscriber immediately with the fired value.
type Stream[T any] struct {
	eventType string
	source    string
	events    bus.EventBus
	// guard is consulted before each individual delivery; false skips it.
	guard func() bool

	terminal bool
	mu       sync.Mutex
	fired    bool
	value    T
}

func newStream[T any](events bus.EventBus, source, eventType string, guard func() bool) *Stream[T] {
	return &Stream[T]{eventType: eventType, source: source, events: events, guard: guard}
}

func newTerminalStream[T any](events bus.EventBus, source, eventType string) *Stream[T] {
	return &Stream[T]{eventType: eventType, source: source, events: events, terminal: true}
}

// Subscribe registers fn and returns a handle that cancels it. Subscribing
// never blocks on delivery.
func (s *Stream[T]) Subscribe(fn func(T)) Subscription {
	if fn == nil {
		return noopSubscription{}
	}

	handler := func(e bus.Event) error {
		if s.guard != nil && !s.guard() {
			return nil
		}
		v, _ := e.Data().(T)
		fn(v)
		return nil
	}

	if !s.terminal {
		return s.subscribe(handler)
	}

	s.mu.Lock()
	if s.fired {
		v := s.value
		s.mu.Unlock()
		fn(v)
		return noopSubscription{}
	}
	sub := s.subscribe(handler)
	s.mu.Unlock()
	return sub
}

// Subscribers returns the number of live subscriptions.
func (s *Stream[T]) Subscribers() int {
	return s.events.Subscribers(s.eventType)
}

func (s *Stream[T]) subscribe(handler bus.EventHandler) Subscription {
	sub, err := s.events.Subscribe(s.eventType, handler)
	if err != nil {
		return noopSubscription{}
	}
	return busSubscription{sub: sub}
}

func (s *Stream[T]) publish(v T) {
	_ = s.events.PublishWithFilters(bus.NewEvent(s.eventType, s.source, v), func(bus.Event) bool {
		return s.guard == nil || s.guard()
	})
}

// fire publishes v on a terminal stream. Callers guarantee it runs once.
func (s *Stream[T]) fire(v T) {
	s.mu.Lock()
	s.fired = true
	s.value = v
	s.mu.Unlock()
	_ = s.events.Publish(bus.NewEvent(s.eventType, s.source, v))
}
