package events

import (
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"subscription_watcher/submission"
)

func TestBusSubscribeAndPublish(t *testing.T) {
	bus := NewBus(false)

	var received []Event
	bus.Subscribe(SubmissionMatched, func(event Event) {
		received = append(received, event)
	})

	bus.Publish(matched())
	bus.Publish(NewFeedUnreachableEvent("http://feed", "timeout"))

	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].Type() != SubmissionMatched {
		t.Errorf("expected event type %s, got %s", SubmissionMatched, received[0].Type())
	}
}

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus(false)

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		bus.SubscribeAll(func(Event) { order = append(order, name) })
	}
	bus.Publish(matched())

	if want := []string{"first", "second", "third"}; !slices.Equal(order, want) {
		t.Errorf("expected order %v, got %v", want, order)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(false)

	var count int
	sub := bus.Subscribe(SubmissionMatched, func(event Event) {
		count++
	})

	bus.Publish(matched())
	sub.Unsubscribe()
	sub.Unsubscribe()
	bus.Publish(matched())

	if count != 1 {
		t.Errorf("expected count 1 after unsubscribe, got %d", count)
	}
	if bus.HandlerCount() != 0 {
		t.Errorf("expected 0 handlers, got %d", bus.HandlerCount())
	}
}

func TestBusUnsubscribeFromHandler(t *testing.T) {
	bus := NewBus(false)

	var count int
	var sub *Subscription
	sub = bus.SubscribeAll(func(Event) {
		count++
		sub.Unsubscribe()
	})

	bus.Publish(matched())
	bus.Publish(matched())

	if count != 1 {
		t.Errorf("expected one delivery, got %d", count)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(false)

	var count int
	bus.SubscribeAll(func(event Event) {
		count++
	})

	bus.Publish(matched())
	bus.Publish(NewFeedUnreachableEvent("http://feed", "timeout"))
	bus.Publish(NewFeedRecoveredEvent("http://feed", time.Minute))

	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestBusForDestinations(t *testing.T) {
	bus := NewBus(false)

	var got []string
	bus.SubscribeFunc(ForDestinations("chat", "mail"), func(e Event) {
		if m, ok := e.(*SubmissionMatchedEvent); ok {
			got = append(got, m.Destination)
			return
		}
		got = append(got, string(e.Type()))
	})

	for _, dest := range []string{"chat", "other", "mail"} {
		bus.Publish(NewSubmissionMatchedEvent("sub", dest, "deer", &submission.Submission{ID: "1"}))
	}
	bus.Publish(NewFeedUnreachableEvent("http://feed", "timeout"))

	want := []string{"chat", "mail", string(FeedUnreachable)}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if ForDestinations() != nil {
		t.Error("expected no filter without destinations")
	}
}

func TestBusOfType(t *testing.T) {
	f := OfType(FeedUnreachable, FeedRecovered)
	if f(matched()) {
		t.Error("expected match event to be filtered out")
	}
	if !f(NewFeedRecoveredEvent("http://feed", time.Second)) {
		t.Error("expected recovered event to pass")
	}
}

func TestBusHandlerPanicIsContained(t *testing.T) {
	for _, async := range []bool{false, true} {
		bus := NewBus(async)

		var calls atomic.Int32
		done := make(chan struct{}, 2)
		bus.SubscribeAll(func(e Event) {
			defer func() { done <- struct{}{} }()
			if calls.Add(1) == 1 {
				panic("boom")
			}
		})

		bus.Publish(matched())
		bus.Publish(matched())

		for range 2 {
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatalf("async=%v: timed out waiting for handler", async)
			}
		}
		if calls.Load() != 2 {
			t.Errorf("async=%v: expected handler to keep running after a panic, got %d calls", async, calls.Load())
		}
	}
}

func TestBusAsyncPreservesOrder(t *testing.T) {
	bus := NewBus(true)

	const n = 100
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	sub := bus.Subscribe(SubmissionMatched, func(e Event) {
		mu.Lock()
		got = append(got, e.(*SubmissionMatchedEvent).Submission.ID)
		last := len(got) == n
		mu.Unlock()
		if last {
			close(done)
		}
	})
	defer sub.Unsubscribe()

	var want []string
	for i := range n {
		id := strconv.Itoa(i)
		want = append(want, id)
		bus.Publish(NewSubmissionMatchedEvent("sub", "chat", "deer", &submission.Submission{ID: id}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for async handler")
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(got, want) {
		t.Errorf("expected events in publish order, got %v", got)
	}
}

func TestBusAsyncSlowHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewBus(true)

	release := make(chan struct{})
	slow := bus.SubscribeAll(func(Event) { <-release })
	defer slow.Unsubscribe()
	defer close(release)

	fast := make(chan struct{}, 1)
	bus.SubscribeAll(func(Event) {
		select {
		case fast <- struct{}{}:
		default:
		}
	})

	bus.Publish(matched())

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast handler waited on the slow one")
	}
}

func TestBusAsyncUnsubscribeUnblocksPublish(t *testing.T) {
	bus := NewBus(true)

	block := make(chan struct{})
	defer close(block)
	sub := bus.SubscribeAll(func(Event) { <-block })

	// Fill the queue behind the blocked handler.
	for range queueSize + 1 {
		bus.Publish(matched())
	}

	published := make(chan struct{})
	go func() {
		bus.Publish(matched())
		close(published)
	}()

	sub.Unsubscribe()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("Publish stayed blocked after Unsubscribe")
	}
}

func TestBusHandlerCount(t *testing.T) {
	bus := NewBus(false)

	if bus.HandlerCount() != 0 {
		t.Errorf("expected 0 handlers, got %d", bus.HandlerCount())
	}

	sub1 := bus.Subscribe(SubmissionMatched, func(event Event) {})
	sub2 := bus.Subscribe(FeedUnreachable, func(event Event) {})
	bus.SubscribeAll(func(event Event) {})

	if bus.HandlerCount() != 3 {
		t.Errorf("expected 3 handlers, got %d", bus.HandlerCount())
	}

	sub1.Unsubscribe()
	sub2.Unsubscribe()
	if bus.HandlerCount() != 1 {
		t.Errorf("expected 1 handler, got %d", bus.HandlerCount())
	}
}
