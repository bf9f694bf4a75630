// Package websocket streams watcher events to browser clients.
// It implements a hub pattern where clients connect and receive matches and
// feed health events from the event bus. A client may pass ?destination= to
// only receive matches for that destination.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"subscription_watcher/events"
	"subscription_watcher/metrics"
	"subscription_watcher/submission"
)

var log = logrus.WithField("component", "websocket")

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// MessageTypeSubmissionMatched is sent when a subscription matches a submission.
	MessageTypeSubmissionMatched MessageType = "submission_matched"
	// MessageTypeFeedUnreachable is sent when the feed stops responding.
	MessageTypeFeedUnreachable MessageType = "feed_unreachable"
	// MessageTypeFeedRecovered is sent when the feed responds again.
	MessageTypeFeedRecovered MessageType = "feed_recovered"
	// MessageTypePing is a keepalive message.
	MessageTypePing MessageType = "ping"
)

// Message represents a WebSocket message sent to clients.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"` // Unix timestamp in milliseconds
	Payload   interface{} `json:"payload"`
}

// MatchPayload describes a subscription match.
type MatchPayload struct {
	SubscriptionID string                 `json:"subscription_id"`
	Destination    string                 `json:"destination"`
	Query          string                 `json:"query"`
	Submission     *submission.Submission `json:"submission"`
}

// FeedEventPayload contains information about a feed health event.
type FeedEventPayload struct {
	URL             string  `json:"url"`
	Reason          string  `json:"reason,omitempty"`
	DowntimeSeconds float64 `json:"downtime_seconds,omitempty"`
}

// outbound is a serialized message and the destination it belongs to.
// An empty destination goes to every client.
type outbound struct {
	destination string
	data        []byte
}

// Client represents a connected WebSocket client.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	destination string
}

// wants reports whether the client subscribed to messages for destination.
func (c *Client) wants(destination string) bool {
	return c.destination == "" || destination == "" || c.destination == destination
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup

	// Event bus subscription
	eventBus      *events.Bus
	subscriptions []*events.Subscription
}

// NewHub creates a new WebSocket hub.
func NewHub(eventBus *events.Bus) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopCh:     make(chan struct{}),
		eventBus:   eventBus,
	}
}

// Start begins the hub's main loop.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	// Subscribe to event bus
	h.subscribeToEvents()

	h.wg.Add(1)
	go h.run()

	log.Info("WebSocket hub started")
}

// Stop gracefully shuts down the hub.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	// Unsubscribe from events
	for _, sub := range h.subscriptions {
		sub.Unsubscribe()
	}
	h.subscriptions = nil

	close(h.stopCh)
	h.wg.Wait()

	log.Info("WebSocket hub stopped")
}

// subscribeToEvents subscribes to event bus events.
func (h *Hub) subscribeToEvents() {
	h.subscriptions = append(h.subscriptions,
		h.eventBus.Subscribe(events.SubmissionMatched, func(e events.Event) {
			evt := e.(*events.SubmissionMatchedEvent)
			h.broadcastMessage(evt.Destination, Message{
				Type:      MessageTypeSubmissionMatched,
				Timestamp: evt.Timestamp().UnixMilli(),
				Payload: MatchPayload{
					SubscriptionID: evt.SubscriptionID,
					Destination:    evt.Destination,
					Query:          evt.Query,
					Submission:     evt.Submission,
				},
			})
		}),
	)

	h.subscriptions = append(h.subscriptions,
		h.eventBus.Subscribe(events.FeedUnreachable, func(e events.Event) {
			evt := e.(*events.FeedUnreachableEvent)
			h.broadcastMessage("", Message{
				Type:      MessageTypeFeedUnreachable,
				Timestamp: evt.Timestamp().UnixMilli(),
				Payload: FeedEventPayload{
					URL:    evt.URL,
					Reason: evt.Reason,
				},
			})
		}),
	)

	h.subscriptions = append(h.subscriptions,
		h.eventBus.Subscribe(events.FeedRecovered, func(e events.Event) {
			evt := e.(*events.FeedRecoveredEvent)
			h.broadcastMessage("", Message{
				Type:      MessageTypeFeedRecovered,
				Timestamp: evt.Timestamp().UnixMilli(),
				Payload: FeedEventPayload{
					URL:             evt.URL,
					DowntimeSeconds: evt.Downtime.Seconds(),
				},
			})
		}),
	)
}

// broadcastMessage serializes and broadcasts a message to the clients
// interested in destination.
func (h *Hub) broadcastMessage(destination string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Warn("Failed to marshal message")
		return
	}

	select {
	case h.broadcast <- outbound{destination: destination, data: data}:
	default:
		log.Warn("Broadcast channel full, dropping message")
	}
}

// run is the main hub loop.
func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.stopCh:
			// Close all client connections
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(clientCount))
			log.WithField("clients", clientCount).Debug("Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			clientCount := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(clientCount))
			log.WithField("clients", clientCount).Debug("Client disconnected")

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(message.destination) {
					continue
				}
				select {
				case client.send <- message.data:
				default:
					// Client buffer full, close connection
					go client.leave()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler returns an HTTP handler for WebSocket connections.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("Upgrade failed")
			return
		}

		client := &Client{
			hub:         h,
			conn:        conn,
			send:        make(chan []byte, 256),
			destination: r.URL.Query().Get("destination"),
		}

		select {
		case h.register <- client:
		case <-h.stopCh:
			conn.Close()
			return
		}

		// Start read and write pumps
		go client.writePump()
		go client.readPump()
	}
}

// leave unregisters the client unless the hub already stopped.
func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.stopCh:
	}
}

// readPump pumps messages from the WebSocket connection to the hub.
// Currently, we don't process client messages, but we need to read
// to handle pong responses and detect connection close.
func (c *Client) readPump() {
	defer func() {
		c.leave()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Debug("Read failed")
			}
			break
		}
		// We don't process incoming messages currently
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
