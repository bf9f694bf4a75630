package events

import (
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "events")

// queueSize bounds the events waiting for one asynchronous subscriber.
// Publish blocks while a subscriber's queue is full.
const queueSize = 256

// Handler is a function that handles an event.
type Handler func(event Event)

// Filter reports whether a subscription wants an event.
type Filter func(event Event) bool

// OfType passes events of the given types.
func OfType(types ...EventType) Filter {
	return func(e Event) bool {
		return slices.Contains(types, e.Type())
	}
}

// ForDestinations passes routed events whose route is one of destinations,
// and every event without a route. With no destinations it passes
// everything.
func ForDestinations(destinations ...string) Filter {
	if len(destinations) == 0 {
		return nil
	}
	return func(e Event) bool {
		r, ok := e.(Routed)
		return !ok || slices.Contains(destinations, r.Route())
	}
}

// Subscription is a handler registered on a Bus.
type Subscription struct {
	id      uint64
	filter  Filter
	handler Handler
	bus     *Bus

	// Asynchronous buses only.
	queue chan Event
	done  chan struct{}
	once  sync.Once
}

// Unsubscribe removes the subscription from its bus. Events still queued
// for it are dropped. It is safe to call more than once, including from the
// subscription's own handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.id)
		if s.done != nil {
			close(s.done)
		}
	})
}

func (s *Subscription) wants(e Event) bool {
	return s.filter == nil || s.filter(e)
}

// deliver runs the handler, containing any panic to this one event.
func (s *Subscription) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("event", e.Type()).WithField("panic", r).Error("Event handler panicked")
		}
	}()
	s.handler(e)
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.queue:
			s.deliver(e)
		}
	}
}

// Bus fans events out to subscriptions in the order they subscribed.
//
// A synchronous bus runs handlers inside Publish. An asynchronous bus gives
// every subscription its own goroutine and queue, so a slow handler never
// holds up the others and each handler still sees events in publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   []*Subscription
	nextID uint64
	async  bool
}

// NewBus creates an event bus. If async is true, handlers run on their
// subscription's goroutine instead of the publisher's.
func NewBus(async bool) *Bus {
	return &Bus{async: async}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) *Subscription {
	return b.SubscribeFunc(OfType(eventType), handler)
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(handler Handler) *Subscription {
	return b.SubscribeFunc(nil, handler)
}

// SubscribeFunc registers a handler for the events filter passes. A nil
// filter passes everything.
func (b *Bus) SubscribeFunc(filter Filter, handler Handler) *Subscription {
	sub := &Subscription{filter: filter, handler: handler, bus: b}
	if b.async {
		sub.queue = make(chan Event, queueSize)
		sub.done = make(chan struct{})
		go sub.run()
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = slices.DeleteFunc(b.subs, func(s *Subscription) bool { return s.id == id })
}

// Publish sends event to every subscription that wants it.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(event) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if s.queue == nil {
			s.deliver(event)
			continue
		}
		select {
		case s.queue <- event:
		case <-s.done:
		}
	}
}

// HandlerCount returns the number of live subscriptions.
func (b *Bus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
