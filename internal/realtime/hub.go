// Package realtime pushes ticket events to connected browsers over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"collegefeedback/internal/models"
	"collegefeedback/internal/observability"
	"collegefeedback/internal/serviceinterfaces"
	contextutils "collegefeedback/internal/utils"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send pongs and close frames
	maxMessageSize = 512

	sendBufferSize = 32
)

var _ serviceinterfaces.TicketObserver = (*Hub)(nil)

// Message is the JSON frame pushed to a client
type Message struct {
	Type        models.NotificationType `json:"type"`
	FeedbackID  int                     `json:"feedback_id"`
	Title       string                  `json:"title"`
	Status      models.FeedbackStatus   `json:"status"`
	Priority    models.FeedbackPriority `json:"priority"`
	SubmitterID *int                    `json:"submitter_id,omitempty"`
	AssignedTo  *int                    `json:"assigned_to,omitempty"`
	Actor       string                  `json:"actor"`
	Message     string                  `json:"message"`
	OccurredAt  time.Time               `json:"occurred_at"`
}

// NewMessage builds the frame one recipient receives. The submitter of an
// anonymous ticket is only revealed to the submitter.
func NewMessage(event models.TicketEvent, recipient int) Message {
	m := Message{
		Type:       event.Type,
		FeedbackID: event.Feedback.ID,
		Title:      event.Feedback.Title,
		Status:     event.Feedback.Status,
		Priority:   event.Feedback.Priority,
		AssignedTo: event.Feedback.AssignedTo,
		Actor:      event.ActorLabel,
		Message:    event.Message,
		OccurredAt: event.OccurredAt,
	}
	if !event.Feedback.IsAnonymous || event.Feedback.SubmitterID == recipient {
		id := event.Feedback.SubmitterID
		m.SubmitterID = &id
	}
	return m
}

// Client is one websocket connection of a user
type Client struct {
	hub    *Hub
	userID int
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks open connections per user and implements TicketObserver
type Hub struct {
	logger   *observability.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[int]map[*Client]struct{}
}

// NewHub creates a Hub. allowedOrigins restricts the Origin header of upgrade
// requests; an empty list accepts same-host requests only.
func NewHub(logger *observability.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		panic("NewHub: logger is nil")
	}
	h := &Hub{
		logger:  logger,
		clients: make(map[int]map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return strings.HasSuffix(strings.ToLower(origin), "://"+strings.ToLower(r.Host))
	}
}

// Name implements TicketObserver
func (h *Hub) Name() string { return "websocket" }

// Notify pushes the event to every open connection of each recipient.
// Recipients without a connection are skipped; slow clients are dropped.
func (h *Hub) Notify(ctx context.Context, event models.TicketEvent) (err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "websocket_push",
		observability.AttributeFeedbackID(event.Feedback.ID),
		attribute.String("event.type", string(event.Type)),
	)
	defer observability.FinishSpan(span, &err)

	delivered := 0
	var slow []*Client
	h.mu.RLock()
	for _, userID := range event.Recipients {
		set := h.clients[userID]
		if len(set) == 0 {
			continue
		}
		data, err := json.Marshal(NewMessage(event, userID))
		if err != nil {
			h.mu.RUnlock()
			return contextutils.WrapError(err, "failed to encode websocket message")
		}
		for c := range set {
			select {
			case c.send <- data:
				delivered++
			default:
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn(ctx, "Websocket send buffer full, dropping client", map[string]interface{}{"user_id": c.userID})
		h.unregister(c)
	}
	span.SetAttributes(attribute.Int("websocket.delivered", delivered))
	return nil
}

// Connected reports whether the user has at least one open connection
func (h *Hub) Connected(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectionCount returns the number of open connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// Serve upgrades the request and attaches the connection to userID
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID int) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return contextutils.WrapError(err, "websocket upgrade failed")
	}

	c := &Client{hub: h, userID: userID, conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register(c)
	h.logger.Debug(r.Context(), "Websocket client connected", map[string]interface{}{"user_id": userID})

	go c.writePump()
	go c.readPump()
	return nil
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.clients {
		for c := range set {
			close(c.send)
		}
		delete(h.clients, userID)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn(context.Background(), "Websocket read error", map[string]interface{}{
					"user_id": c.userID,
					"error":   err.Error(),
				})
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
