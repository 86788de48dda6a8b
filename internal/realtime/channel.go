// Package realtime maintains the single multiplexed connection to the chat
// backend: per-room topic subscriptions, heartbeats in both directions, and
// automatic reconnects with a fixed delay. Incoming messages feed the room
// roster projection.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/medihub/medihub-go/internal/chat"
	"github.com/medihub/medihub-go/internal/domain"
	"github.com/medihub/medihub-go/internal/observability"
)

var (
	// ErrMissingCredential means connect was attempted with no access token.
	ErrMissingCredential = errors.New("realtime connect requires an access token")
	// ErrNotSubscribed means unsubscribe was called for a room without a
	// live subscription handle. That is a caller bug, not a transport fault.
	ErrNotSubscribed = errors.New("room not subscribed")
)

// State of the single transport connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const recentFrameCapacity = 100

// TokenSource supplies the connect-time credential. Satisfied by
// session.Manager.
type TokenSource interface {
	AccessToken() string
}

// RoomLister fetches the member's room list. Satisfied by api.Client.
type RoomLister interface {
	ListRooms(ctx context.Context) ([]domain.ChatRoom, error)
}

// Notifier surfaces user-visible transport problems, e.g. as a dismissible
// banner. The default logs them.
type Notifier interface {
	Notify(message string)
}

type slogNotifier struct{ logger *slog.Logger }

func (n slogNotifier) Notify(message string) { n.logger.Warn(message) }

type controlFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

type subscription struct {
	topic string
}

type Options struct {
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	Notifier          Notifier
}

type Channel struct {
	url    string
	tokens TokenSource
	rooms  RoomLister
	roster *chat.Roster
	logger *slog.Logger

	notifier       Notifier
	heartbeat      time.Duration
	reconnectDelay time.Duration

	mu     sync.Mutex
	state  State
	conn   *websocket.Conn
	subs   map[uint64]*subscription
	connID string
	// closed suppresses reconnect attempts after an explicit Disconnect.
	closed bool
	quit   chan struct{}

	writeMu sync.Mutex
	buffer  *frameBuffer
}

func NewChannel(wsURL string, tokens TokenSource, rooms RoomLister, roster *chat.Roster, logger *slog.Logger, opts Options) *Channel {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 4 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.Notifier == nil {
		opts.Notifier = slogNotifier{logger: logger}
	}
	return &Channel{
		url:            wsURL,
		tokens:         tokens,
		rooms:          rooms,
		roster:         roster,
		logger:         logger,
		notifier:       opts.Notifier,
		heartbeat:      opts.HeartbeatInterval,
		reconnectDelay: opts.ReconnectDelay,
		subs:           make(map[uint64]*subscription),
		buffer:         newFrameBuffer(recentFrameCapacity),
		quit:           make(chan struct{}),
	}
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RecentMessages returns the retained raw inbound frames, oldest first.
func (c *Channel) RecentMessages() [][]byte { return c.buffer.snapshot() }

// Connect opens the transport with the current access token as credential
// and subscribes every room the user belongs to. Already-connected calls are
// no-ops.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	token := c.tokens.AccessToken()
	if token == "" {
		c.mu.Unlock()
		c.notifier.Notify("realtime chat unavailable: not logged in")
		return ErrMissingCredential
	}
	c.state = StateConnecting
	c.closed = false
	select {
	case <-c.quit:
		c.quit = make(chan struct{})
	default:
	}
	quit := c.quit
	c.connID = uuid.NewString()
	connID := c.connID
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("X-Connection-Id", connID)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		observability.RecordConnect(ctx, "failure")
		c.notifier.Notify("realtime connection failed")
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.closed {
		// Disconnect raced the dial; honor it.
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()
	observability.RecordConnect(ctx, "success")
	c.logger.Info("realtime channel connected", "conn_id", connID)

	go c.readPump(conn, quit)
	go c.pingLoop(conn, quit)

	if err := c.fetchAndSubscribeAllRooms(ctx); err != nil {
		c.logger.Warn("room subscription bootstrap failed", "error", err)
		c.notifier.Notify("chat room list could not be loaded")
	}
	return nil
}

// fetchAndSubscribeAllRooms loads the membership list, subscribes each room
// topic, and publishes the recency-ordered list to the roster.
func (c *Channel) fetchAndSubscribeAllRooms(ctx context.Context) error {
	rooms, err := c.rooms.ListRooms(ctx)
	if err != nil {
		return err
	}
	for _, room := range rooms {
		if err := c.SubscribeRoom(room.RoomSeq); err != nil {
			c.logger.Warn("subscribe failed", "room", room.RoomSeq, "error", err)
		}
	}
	c.roster.SetRooms(rooms)
	return nil
}

// SubscribeRoom opens the topic subscription for a room. Calls while not
// connected or for an already-subscribed room are no-ops.
func (c *Channel) SubscribeRoom(roomSeq uint64) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	if _, ok := c.subs[roomSeq]; ok {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	topic := fmt.Sprintf("/subscribe/%d", roomSeq)
	c.subs[roomSeq] = &subscription{topic: topic}
	c.mu.Unlock()

	if err := c.writeJSON(conn, controlFrame{Action: "subscribe", Topic: topic}); err != nil {
		c.mu.Lock()
		delete(c.subs, roomSeq)
		c.mu.Unlock()
		return fmt.Errorf("subscribe room %d: %w", roomSeq, err)
	}
	return nil
}

// UnsubscribeRoom releases the topic subscription for a room.
func (c *Channel) UnsubscribeRoom(roomSeq uint64) error {
	c.mu.Lock()
	sub, ok := c.subs[roomSeq]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("room %d: %w", roomSeq, ErrNotSubscribed)
	}
	delete(c.subs, roomSeq)
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected && conn != nil {
		if err := c.writeJSON(conn, controlFrame{Action: "unsubscribe", Topic: sub.topic}); err != nil {
			c.logger.Warn("unsubscribe frame failed", "room", roomSeq, "error", err)
		}
	}
	return nil
}

// Disconnect releases every subscription and deactivates the transport.
// Idempotent; suppresses automatic reconnection.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.closed && c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.closed = true
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
	conn := c.conn
	subs := c.subs
	c.subs = make(map[uint64]*subscription)
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		for _, sub := range subs {
			if err := c.writeJSON(conn, controlFrame{Action: "unsubscribe", Topic: sub.topic}); err != nil {
				break
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	c.logger.Info("realtime channel disconnected")
}

func (c *Channel) readPump(conn *websocket.Conn, quit chan struct{}) {
	deadline := func() time.Time { return time.Now().Add(2*c.heartbeat + time.Second) }
	_ = conn.SetReadDeadline(deadline())
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(deadline())
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		_ = conn.SetReadDeadline(deadline())
		c.handleFrame(data)
	}
}

func (c *Channel) handleFrame(data []byte) {
	c.buffer.add(data)
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("undecodable frame dropped", "error", err)
		return
	}
	observability.RecordMessage(context.Background(), msg.Type)
	// Deletions rewrite history; they never become the last-message preview.
	if msg.Type == domain.MessageTypeDelete {
		return
	}
	c.roster.UpdateLastMessage(msg.RoomSeq, msg.Message, msg.CreatedAt)
}

func (c *Channel) pingLoop(conn *websocket.Conn, quit chan struct{}) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.heartbeat))
			if err != nil {
				return
			}
		}
	}
}

// handleDrop runs when the read pump exits. An explicit Disconnect already
// cleaned up; anything else is an unexpected drop that schedules reconnects.
func (c *Channel) handleDrop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.subs = make(map[uint64]*subscription)
	c.state = StateDisconnected
	closed := c.closed
	quit := c.quit
	c.mu.Unlock()

	_ = conn.Close()
	if closed {
		return
	}
	c.logger.Warn("realtime connection dropped", "error", cause)
	c.notifier.Notify("realtime connection lost, reconnecting")
	go c.reconnectLoop(quit)
}

func (c *Channel) reconnectLoop(quit chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case <-time.After(c.reconnectDelay):
		}
		err := c.Connect(context.Background())
		if err == nil || errors.Is(err, ErrMissingCredential) {
			return
		}
		c.logger.Warn("reconnect attempt failed", "error", err)
	}
}

func (c *Channel) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}
