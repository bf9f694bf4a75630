package notifiers

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"subscription_watcher/events"
	"subscription_watcher/submission"
)

func matchedEvent() events.Event {
	return events.NewSubmissionMatchedEvent("sub-1", "chat", "deer", &submission.Submission{ID: "1", Title: "deer"})
}

// mockNotifier is a test notifier that counts calls.
type mockNotifier struct {
	name      string
	callCount int32
	lastEvent events.Event
	closeErr  error
	notifyErr error
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Notify(event events.Event) error {
	atomic.AddInt32(&m.callCount, 1)
	m.lastEvent = event
	return m.notifyErr
}

func (m *mockNotifier) Close() error { return m.closeErr }

func TestManagerRegister(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus)
	defer manager.Close()

	if manager.NotifierCount() != 0 {
		t.Errorf("expected 0 notifiers, got %d", manager.NotifierCount())
	}

	mock := &mockNotifier{name: "test"}
	manager.Register(mock)

	if manager.NotifierCount() != 1 {
		t.Errorf("expected 1 notifier, got %d", manager.NotifierCount())
	}
}

func TestManagerRoutesEventsToNotifiers(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus)
	defer manager.Close()

	mock1 := &mockNotifier{name: "mock1"}
	mock2 := &mockNotifier{name: "mock2"}
	manager.Register(mock1)
	manager.Register(mock2)

	// Publish an event
	bus.Publish(matchedEvent())

	// Both notifiers should receive the event
	if atomic.LoadInt32(&mock1.callCount) != 1 {
		t.Errorf("mock1: expected 1 call, got %d", mock1.callCount)
	}
	if atomic.LoadInt32(&mock2.callCount) != 1 {
		t.Errorf("mock2: expected 1 call, got %d", mock2.callCount)
	}
}

func TestManagerReceivesAllEventTypes(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus)
	defer manager.Close()

	mock := &mockNotifier{name: "test"}
	manager.Register(mock)

	// Publish different event types
	bus.Publish(matchedEvent())
	bus.Publish(events.NewFeedUnreachableEvent("http://feed", "timeout"))
	bus.Publish(events.NewFeedRecoveredEvent("http://feed", time.Minute))

	if atomic.LoadInt32(&mock.callCount) != 3 {
		t.Errorf("expected 3 calls for all event types, got %d", mock.callCount)
	}
}

func TestManagerCloseUnsubscribes(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus)

	mock := &mockNotifier{name: "test"}
	manager.Register(mock)

	// Close should unsubscribe from events
	manager.Close()

	// Events after close should not reach the notifier
	bus.Publish(matchedEvent())

	if atomic.LoadInt32(&mock.callCount) != 0 {
		t.Errorf("expected 0 calls after close, got %d", mock.callCount)
	}
}

func TestManagerFailingNotifierDoesNotStopOthers(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus)
	defer manager.Close()

	failing := &mockNotifier{name: "failing", notifyErr: errors.New("boom")}
	ok := &mockNotifier{name: "ok"}
	manager.Register(failing)
	manager.Register(ok)

	bus.Publish(matchedEvent())

	if atomic.LoadInt32(&ok.callCount) != 1 {
		t.Errorf("expected healthy notifier to be called, got %d", ok.callCount)
	}
}

func TestManagerCloseReturnsNotifierError(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus)
	manager.Register(&mockNotifier{name: "bad", closeErr: errors.New("close failed")})

	if err := manager.Close(); err == nil {
		t.Error("expected close error to be returned")
	}
}

func TestManagerRoutesByDestination(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus)
	defer manager.Close()

	chatOnly := &mockNotifier{name: "chat-only"}
	everything := &mockNotifier{name: "everything"}
	manager.Register(chatOnly, "chat")
	manager.Register(everything)

	bus.Publish(events.NewSubmissionMatchedEvent("sub-1", "chat", "deer", &submission.Submission{ID: "1"}))
	bus.Publish(events.NewSubmissionMatchedEvent("sub-2", "mail", "fox", &submission.Submission{ID: "2"}))
	bus.Publish(events.NewFeedUnreachableEvent("http://feed", "timeout"))

	if got := atomic.LoadInt32(&chatOnly.callCount); got != 2 {
		t.Errorf("chat-only: expected the chat match and the feed event, got %d calls", got)
	}
	if got := atomic.LoadInt32(&everything.callCount); got != 3 {
		t.Errorf("everything: expected 3 calls, got %d", got)
	}
}

func TestManagerCloseJoinsErrors(t *testing.T) {
	bus := events.NewBus(false)
	manager := NewManager(bus)
	first := errors.New("first failed")
	second := errors.New("second failed")
	manager.Register(&mockNotifier{name: "a", closeErr: first})
	manager.Register(&mockNotifier{name: "b"})
	manager.Register(&mockNotifier{name: "c", closeErr: second})

	err := manager.Close()
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("expected both close errors, got %v", err)
	}
	if manager.NotifierCount() != 0 {
		t.Errorf("expected no notifiers after close, got %d", manager.NotifierCount())
	}
	if bus.HandlerCount() != 0 {
		t.Errorf("expected bus subscriptions to be removed, got %d", bus.HandlerCount())
	}
}
