// Package events connects the feed monitor to the things that deliver its
// results. Producers publish on a Bus; consumers subscribe with a filter
// choosing the events they want.
package events

import (
	"time"

	"subscription_watcher/submission"
)

// EventType represents the type of an event.
type EventType string

const (
	// SubmissionMatched is emitted once per subscription that matches a new submission.
	SubmissionMatched EventType = "submission_matched"
	// FeedUnreachable is emitted when polling the feed starts failing.
	FeedUnreachable EventType = "feed_unreachable"
	// FeedRecovered is emitted on the first successful poll after a failure.
	FeedRecovered EventType = "feed_recovered"
)

// Event is something the watcher reports.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// Routed is implemented by events meant for a single destination. Events
// without a route concern every destination.
type Routed interface {
	Route() string
}

type stamp struct {
	eventType EventType
	at        time.Time
}

func stampNow(t EventType) stamp { return stamp{eventType: t, at: time.Now()} }

func (s stamp) Type() EventType      { return s.eventType }
func (s stamp) Timestamp() time.Time { return s.at }

// SubmissionMatchedEvent reports that a subscription's query matched a
// submission. It is routed to the subscription's destination.
type SubmissionMatchedEvent struct {
	stamp
	SubscriptionID string
	Destination    string
	Query          string
	Submission     *submission.Submission
}

// Route returns the destination the match is for.
func (e *SubmissionMatchedEvent) Route() string { return e.Destination }

// NewSubmissionMatchedEvent creates a new submission matched event.
func NewSubmissionMatchedEvent(subscriptionID, destination, query string, s *submission.Submission) *SubmissionMatchedEvent {
	return &SubmissionMatchedEvent{
		stamp:          stampNow(SubmissionMatched),
		SubscriptionID: subscriptionID,
		Destination:    destination,
		Query:          query,
		Submission:     s,
	}
}

// FeedUnreachableEvent is emitted when the feed cannot be read.
type FeedUnreachableEvent struct {
	stamp
	URL    string
	Reason string
}

func NewFeedUnreachableEvent(url, reason string) *FeedUnreachableEvent {
	return &FeedUnreachableEvent{stamp: stampNow(FeedUnreachable), URL: url, Reason: reason}
}

// FeedRecoveredEvent is emitted when a previously unreachable feed responds again.
type FeedRecoveredEvent struct {
	stamp
	URL      string
	Downtime time.Duration
}

func NewFeedRecoveredEvent(url string, downtime time.Duration) *FeedRecoveredEvent {
	return &FeedRecoveredEvent{stamp: stampNow(FeedRecovered), URL: url, Downtime: downtime}
}
