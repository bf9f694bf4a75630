// Package gotify sends watcher events to a Gotify server using the official Gotify API client.
package gotify

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gotify/go-api-client/v2/auth"
	"github.com/gotify/go-api-client/v2/client"
	"github.com/gotify/go-api-client/v2/client/message"
	"github.com/gotify/go-api-client/v2/gotify"
	"github.com/gotify/go-api-client/v2/models"
	"github.com/sirupsen/logrus"

	"subscription_watcher/config"
	"subscription_watcher/events"
	"subscription_watcher/submission"
)

var log = logrus.WithField("component", "gotify")

// Priority levels for Gotify messages.
const (
	PriorityMin    = 0  // Minimum priority (no notification)
	PriorityLow    = 2  // Low priority
	PriorityNormal = 5  // Normal priority
	PriorityHigh   = 8  // High priority (notification sound)
	PriorityMax    = 10 // Maximum priority (persistent notification)
)

// Message represents a Gotify message (used for internal formatting).
type Message struct {
	Title    string
	Message  string
	Priority int
}

// Notifier implements the notifiers.Notifier interface for Gotify.
type Notifier struct {
	client   *client.GotifyREST
	token    string
	hostname string // kept for testing/logging
}

// New creates a new Gotify notifier from configuration.
// Returns nil if Gotify is not configured or disabled.
func New(cfg *config.GotifyConfig) *Notifier {
	if cfg == nil || !cfg.IsValid() {
		return nil
	}

	hostname := strings.TrimSuffix(cfg.Hostname, "/")
	parsedURL, err := url.Parse(hostname)
	if err != nil {
		log.WithError(err).Warn("Failed to parse hostname")
		return nil
	}

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}

	return &Notifier{
		client:   gotify.NewClient(parsedURL, httpClient),
		token:    cfg.Token,
		hostname: hostname,
	}
}

// Name returns the notifier's name.
func (n *Notifier) Name() string {
	return "gotify"
}

// Notify sends a notification for the given event.
func (n *Notifier) Notify(event events.Event) error {
	msg := n.formatEvent(event)
	if msg == nil {
		// Event type not supported for notification
		return nil
	}

	return n.send(msg)
}

// formatEvent converts an event into a Gotify message.
// Returns nil for events that shouldn't generate notifications.
func (n *Notifier) formatEvent(event events.Event) *Message {
	switch e := event.(type) {
	case *events.SubmissionMatchedEvent:
		return n.formatSubmissionMatched(e)
	case *events.FeedUnreachableEvent:
		return n.formatFeedUnreachable(e)
	case *events.FeedRecoveredEvent:
		return n.formatFeedRecovered(e)
	default:
		return nil
	}
}

// formatSubmissionMatched formats a subscription match.
func (n *Notifier) formatSubmissionMatched(e *events.SubmissionMatchedEvent) *Message {
	s := e.Submission
	if s == nil {
		return nil
	}

	artist := s.Author.DisplayName
	if artist == "" {
		artist = s.Author.Handle
	}

	title := fmt.Sprintf("\U0001F514 %s", s.Title)
	if artist != "" {
		title = fmt.Sprintf("\U0001F514 %s by %s", s.Title, artist)
	}

	var b strings.Builder
	if s.Link != "" {
		b.WriteString(s.Link)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Matched %q for %s", e.Query, e.Destination)
	if s.Rating != submission.General {
		fmt.Fprintf(&b, " (%s)", s.Rating)
	}

	return &Message{
		Title:    title,
		Message:  b.String(),
		Priority: PriorityNormal,
	}
}

// formatFeedUnreachable formats a feed unreachable event.
func (n *Notifier) formatFeedUnreachable(e *events.FeedUnreachableEvent) *Message {
	return &Message{
		Title:    "\U0001F6A8 Feed Unreachable",
		Message:  fmt.Sprintf("Cannot read %s: %s", e.URL, e.Reason),
		Priority: PriorityMax,
	}
}

// formatFeedRecovered formats a feed recovered event.
func (n *Notifier) formatFeedRecovered(e *events.FeedRecoveredEvent) *Message {
	return &Message{
		Title:    "\u2705 Feed Recovered",
		Message:  fmt.Sprintf("%s is reachable again after %s", e.URL, e.Downtime.Round(time.Second)),
		Priority: PriorityHigh,
	}
}

// send sends a message to Gotify using the official API client.
func (n *Notifier) send(msg *Message) error {
	params := message.NewCreateMessageParams()
	params.Body = &models.MessageExternal{
		Title:    msg.Title,
		Message:  msg.Message,
		Priority: msg.Priority,
	}

	_, err := n.client.Message.CreateMessage(params, auth.TokenAuth(n.token))
	if err != nil {
		log.WithError(err).WithField("title", msg.Title).Warn("Notification failed")
		return fmt.Errorf("failed to send notification: %w", err)
	}

	return nil
}

// Close releases resources held by the notifier.
func (n *Notifier) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// SendTest sends a test notification to verify connectivity.
func (n *Notifier) SendTest() error {
	msg := &Message{
		Title:    "\U0001F514 Subscription Watcher",
		Message:  "Test notification. Gotify is configured correctly!",
		Priority: PriorityNormal,
	}
	return n.send(msg)
}
