// Package notifiers delivers watcher events to external notification services.
package notifiers

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"subscription_watcher/events"
	"subscription_watcher/metrics"
)

var log = logrus.WithField("component", "notifiers")

// Notifier is the interface that all notification providers must implement.
type Notifier interface {
	// Name identifies the notifier in logs and metrics.
	Name() string

	// Notify sends a notification for the given event.
	Notify(event events.Event) error

	// Close releases any resources held by the notifier.
	Close() error
}

type route struct {
	notifier Notifier
	sub      *events.Subscription
}

// Manager subscribes notifiers to the event bus, one subscription each, so
// on an asynchronous bus a slow service does not delay the others.
type Manager struct {
	bus *events.Bus

	mu     sync.Mutex
	routes []route
}

// NewManager creates a manager for notifiers fed from bus.
func NewManager(bus *events.Bus) *Manager {
	return &Manager{bus: bus}
}

// Register starts sending events to n. With destinations, matches reach n
// only when they are for one of them; feed health events always do.
func (m *Manager) Register(n Notifier, destinations ...string) {
	sub := m.bus.SubscribeFunc(events.ForDestinations(destinations...), func(e events.Event) {
		send(n, e)
	})

	m.mu.Lock()
	m.routes = append(m.routes, route{notifier: n, sub: sub})
	m.mu.Unlock()
}

func send(n Notifier, e events.Event) {
	if err := n.Notify(e); err != nil {
		metrics.Notifications.WithValues(n.Name(), "error").Inc()
		log.WithError(err).WithField("notifier", n.Name()).WithField("event", e.Type()).Warn("Notification failed")
		return
	}
	metrics.Notifications.WithValues(n.Name(), "sent").Inc()
}

// Close unsubscribes every notifier and closes them, reporting all close
// errors.
func (m *Manager) Close() error {
	m.mu.Lock()
	routes := m.routes
	m.routes = nil
	m.mu.Unlock()

	var errs []error
	for _, r := range routes {
		r.sub.Unsubscribe()
		if err := r.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// NotifierCount returns the number of registered notifiers.
func (m *Manager) NotifierCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.routes)
}
