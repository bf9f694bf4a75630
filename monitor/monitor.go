// Package monitor polls the submission feed and turns new submissions into
// events. Each new submission is checked against every active subscription,
// and feed outages are reported once when they start and once when they end.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"subscription_watcher/events"
	"subscription_watcher/metrics"
	"subscription_watcher/submission"
	"subscription_watcher/subscriptions"
)

var log = logrus.WithField("component", "monitor")

// Fetcher returns the submissions posted after since, oldest first.
type Fetcher interface {
	Fetch(ctx context.Context, since string) ([]submission.Submission, error)
	URL() string
}

// Checker finds the subscriptions that want a submission.
type Checker interface {
	Check(s *submission.Submission) []subscriptions.Match
}

// Checkpointer persists the feed position so a restart resumes where the
// last poll stopped.
type Checkpointer interface {
	SaveCursor(ctx context.Context, id string) error
}

// FeedState tracks whether the feed is reachable.
type FeedState struct {
	Reachable bool
	LastError string
	DownSince time.Time
}

// Monitor polls a feed and publishes an event for every subscription match.
type Monitor struct {
	fetcher        Fetcher
	checker        Checker
	checkpointer   Checkpointer
	bus            *events.Bus
	pollInterval   time.Duration
	lastSeen       string
	primed         bool
	feedState      FeedState
	feedKnown      bool
	mu             sync.RWMutex
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	running        bool
	skipFirstEvent bool // Don't emit matches for the backlog found on the first poll
}

// Option is a functional option for configuring the monitor.
type Option func(*Monitor)

// WithPollInterval sets how often the feed is polled.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.pollInterval = d
	}
}

// WithSkipFirstEvent configures whether the first poll only records the
// newest submission. When true (default), the backlog is not delivered.
func WithSkipFirstEvent(skip bool) Option {
	return func(m *Monitor) {
		m.skipFirstEvent = skip
	}
}

// WithLastSeen resumes polling after the submission with the given ID.
func WithLastSeen(id string) Option {
	return func(m *Monitor) {
		m.lastSeen = id
		m.primed = id != ""
	}
}

// WithCheckpointer saves the feed position after every poll that advances it.
func WithCheckpointer(c Checkpointer) Option {
	return func(m *Monitor) {
		m.checkpointer = c
	}
}

// New creates a new feed monitor.
func New(fetcher Fetcher, checker Checker, bus *events.Bus, opts ...Option) *Monitor {
	m := &Monitor{
		fetcher:        fetcher,
		checker:        checker,
		bus:            bus,
		pollInterval:   60 * time.Second,
		skipFirstEvent: true,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins polling in the background.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pollLoop(ctx)

	log.WithField("url", m.fetcher.URL()).WithField("interval", m.pollInterval).Info("Feed monitor started")
}

// Stop stops the monitor and waits for an in-flight poll to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	log.Info("Feed monitor stopped")
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	// Initial poll
	m.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}

// Poll reads the feed once and publishes matches for every new submission.
// It returns the number of new submissions checked.
func (m *Monitor) Poll(ctx context.Context) (int, error) {
	start := time.Now()
	defer metrics.PollDuration.UpdateSince(start)
	metrics.Polls.Inc()

	m.mu.RLock()
	since, primed := m.lastSeen, m.primed
	m.mu.RUnlock()

	subs, err := m.fetcher.Fetch(ctx, since)
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		metrics.PollFailures.Inc()
		m.handleFeedError(err.Error())
		return 0, err
	}
	m.handleFeedSuccess()

	if !primed && m.skipFirstEvent {
		m.advance(ctx, subs)
		log.WithField("since", m.LastSeen()).Info("Initial feed position captured")
		return 0, nil
	}

	for i := range subs {
		s := &subs[i]
		metrics.SubmissionsSeen.Inc()
		for _, match := range m.checker.Check(s) {
			metrics.Matches.Inc()
			m.bus.Publish(events.NewSubmissionMatchedEvent(
				match.Subscription.ID,
				match.Subscription.Destination,
				match.Subscription.QueryText,
				match.Submission,
			))
			log.WithFields(logrus.Fields{
				"submission":   s.ID,
				"subscription": match.Subscription.ID,
				"destination":  match.Subscription.Destination,
			}).Debug("Submission matched")
		}
	}

	m.advance(ctx, subs)
	return len(subs), nil
}

// advance moves the feed position past subs and checkpoints it.
func (m *Monitor) advance(ctx context.Context, subs []submission.Submission) {
	m.mu.Lock()
	m.primed = true
	if len(subs) == 0 {
		m.mu.Unlock()
		return
	}
	id := subs[len(subs)-1].ID
	m.lastSeen = id
	m.mu.Unlock()

	if m.checkpointer != nil {
		if err := m.checkpointer.SaveCursor(ctx, id); err != nil {
			log.WithError(err).WithField("since", id).Warn("Failed to save feed position")
		}
	}
}

// handleFeedError records a failed poll. Only the first failure of an
// outage is published.
func (m *Monitor) handleFeedError(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasReachable := !m.feedKnown || m.feedState.Reachable
	if wasReachable {
		m.feedState = FeedState{Reachable: false, LastError: reason, DownSince: time.Now()}
		m.bus.Publish(events.NewFeedUnreachableEvent(m.fetcher.URL(), reason))
		log.WithField("reason", reason).Warn("Feed unreachable")
	} else {
		m.feedState.LastError = reason
	}
	m.feedKnown = true
}

// handleFeedSuccess records a successful poll and publishes a recovery if
// the feed was down.
func (m *Monitor) handleFeedSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.feedKnown && !m.feedState.Reachable {
		downtime := time.Since(m.feedState.DownSince)
		m.bus.Publish(events.NewFeedRecoveredEvent(m.fetcher.URL(), downtime))
		log.WithField("downtime", downtime.Round(time.Second)).Info("Feed recovered")
	}
	m.feedState = FeedState{Reachable: true}
	m.feedKnown = true
}

// GetFeedState returns the last known feed state. The bool is false before
// the first poll completes.
func (m *Monitor) GetFeedState() (FeedState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feedState, m.feedKnown
}

// LastSeen returns the ID of the newest submission processed so far.
func (m *Monitor) LastSeen() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeen
}
