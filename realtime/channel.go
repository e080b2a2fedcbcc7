// Package realtime maintains the client's single persistent websocket
// connection, multiplexing many named subscriptions over it. Registrations
// survive the connection: any subscription recorded while disconnected is
// replayed automatically when the channel next reaches the connected state,
// and the channel keeps reconnecting after a drop until Disconnect is
// called.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/talent-tandem/tandem-go/config"
	"github.com/talent-tandem/tandem-go/credential"
)

// State is the connection lifecycle state, owned exclusively by the channel.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Recovering
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Recovering:
		return "recovering"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler receives the payload of each message published to a subscribed
// topic. Handlers are invoked synchronously from the read loop and must not
// block.
type Handler func(topic string, payload json.RawMessage)

// ChannelError reports a protocol-level transport failure from Connect.
// Failures after a successful connect are handled internally by the
// recovery loop and never surface to subscribers.
type ChannelError struct {
	cause error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("realtime channel: %v", e.cause)
}

func (e *ChannelError) Unwrap() error {
	return e.cause
}

// Subscription is the disposable handle returned by Subscribe.
type Subscription struct {
	channel *Channel
	topic   string
	id      string
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe removes the registration and, when connected, issues the
// unsubscribe frame.
func (s *Subscription) Unsubscribe() {
	s.channel.unsubscribe(s.topic, s.id)
}

type registration struct {
	id      string
	handler Handler
}

// Channel is the realtime connection.
type Channel struct {
	url            string
	creds          *credential.Store
	reconnectDelay time.Duration
	heartbeat      time.Duration

	// identityHandler receives traffic from the identity-scoped queues
	// established on connect. The core wires it to the notification router.
	identityHandler Handler

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	subs     map[string]registration
	identity string
	stop     chan struct{}
}

// Option adjusts channel construction.
type Option func(*Channel)

// WithIdentityHandler sets the handler attached to the identity-scoped
// queues that Connect establishes automatically.
func WithIdentityHandler(h Handler) Option {
	return func(c *Channel) {
		c.identityHandler = h
	}
}

// New creates a realtime channel for the endpoint in cfg. The credential
// store supplies the bearer attached to the websocket handshake.
func New(cfg config.RealtimeConfig, creds *credential.Store, opts ...Option) *Channel {
	c := &Channel{
		url:            cfg.URL,
		creds:          creds,
		reconnectDelay: time.Duration(cfg.ReconnectDelaySeconds) * time.Second,
		heartbeat:      time.Duration(cfg.HeartbeatSeconds) * time.Second,
		subs:           map[string]registration{},
		state:          Disconnected,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Connect opens the transport for the given identity. It is a no-op when
// already connected. On success the channel is Connected, the
// identity-scoped subscriptions are established, and every previously
// recorded subscription has been replayed.
func (c *Channel) Connect(ctx context.Context, identity string) error {
	c.mu.Lock()
	if c.state == Connected {
		c.mu.Unlock()
		log.Ctx(ctx).Debug().Msg("realtime: already connected")
		return nil
	}
	if c.state == Connecting || c.state == Recovering {
		c.mu.Unlock()
		return &ChannelError{cause: fmt.Errorf("connection attempt already in progress (%s)", c.state)}
	}

	c.identity = identity
	c.state = Connecting
	c.stop = make(chan struct{})

	// Record identity-scoped subscriptions before dialing so the normal
	// replay path establishes them, now and after every recovery.
	if c.identityHandler != nil && identity != "" {
		c.subs[SessionQueue(identity)] = registration{id: uuid.NewString(), handler: c.identityHandler}
		c.subs[MatchQueue(identity)] = registration{id: uuid.NewString(), handler: c.identityHandler}
	}
	stop := c.stop
	c.mu.Unlock()

	if err := c.establish(ctx, stop); err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return &ChannelError{cause: err}
	}

	return nil
}

// establish dials the transport and, on success, transitions to Connected,
// replays all recorded subscriptions and starts the read and heartbeat
// loops.
func (c *Channel) establish(ctx context.Context, stop chan struct{}) error {
	opts := &websocket.DialOptions{}
	if token := c.creds.Access(); token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + token}}
	}

	conn, _, err := websocket.Dial(ctx, c.url, opts)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = Connected
	replay := make([]frame, 0, len(c.subs))
	for topic, reg := range c.subs {
		replay = append(replay, frame{Type: frameSubscribe, ID: reg.id, Destination: topic})
	}
	c.mu.Unlock()

	for _, f := range replay {
		if err := writeFrame(conn, f); err != nil {
			conn.CloseNow()
			// leave Connected in the same critical section that clears the
			// connection, so no caller observes Connected with a nil conn
			c.mu.Lock()
			c.conn = nil
			c.state = Connecting
			c.mu.Unlock()
			return fmt.Errorf("replaying subscription to %s: %w", f.Destination, err)
		}
	}

	log.Info().Str("url", c.url).Int("subscriptions", len(replay)).Msg("realtime: connected")

	go c.readLoop(conn, stop)
	go c.heartbeatLoop(conn, stop)

	return nil
}

// Subscribe registers a handler for a topic. Re-subscribing to a topic
// replaces the prior handler. The subscribe frame is sent immediately when
// connected; otherwise the registration is replayed on the next connect.
func (c *Channel) Subscribe(topic string, handler Handler) *Subscription {
	reg := registration{id: uuid.NewString(), handler: handler}

	c.mu.Lock()
	c.subs[topic] = reg
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()

	if connected {
		if err := writeFrame(conn, frame{Type: frameSubscribe, ID: reg.id, Destination: topic}); err != nil {
			// The registration stands; the read loop will notice the broken
			// connection and replay it after recovery.
			log.Warn().Err(err).Str("topic", topic).Msg("realtime: subscribe frame failed")
		}
	}

	return &Subscription{channel: c, topic: topic, id: reg.id}
}

// Unsubscribe removes the registration for topic.
func (c *Channel) Unsubscribe(topic string) {
	c.unsubscribe(topic, "")
}

// unsubscribe removes the topic's registration. A non-empty id only removes
// the registration created with that id, so a stale handle cannot cancel a
// replacement subscription.
func (c *Channel) unsubscribe(topic, id string) {
	c.mu.Lock()
	reg, ok := c.subs[topic]
	if !ok || (id != "" && reg.id != id) {
		c.mu.Unlock()
		return
	}
	delete(c.subs, topic)
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()

	if connected {
		if err := writeFrame(conn, frame{Type: frameUnsubscribe, ID: reg.id, Destination: topic}); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("realtime: unsubscribe frame failed")
		}
	}
}

// Publish sends a payload to an application-level destination. Delivery is
// fire-and-forget: when not connected the payload is dropped with a logged
// warning. Writes that require guaranteed delivery belong on the request
// pipeline.
func (c *Channel) Publish(ctx context.Context, destination string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected {
		log.Ctx(ctx).Warn().Str("destination", destination).Msg("realtime: not connected, dropping publish")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding publish payload: %w", err)
	}

	return wsjson.Write(ctx, conn, frame{
		Type:        frameSend,
		ID:          uuid.NewString(),
		Destination: destination,
		Body:        body,
	})
}

// Disconnect tears down the transport and clears all registrations. It is
// idempotent, and it stops the recovery loop for good.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.state == Disconnected {
		c.mu.Unlock()
		return
	}

	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	conn := c.conn
	c.conn = nil
	c.subs = map[string]registration{}
	c.state = Disconnected
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}

	log.Info().Msg("realtime: disconnected")
}

// readLoop delivers inbound message frames to their topic handlers until
// the connection drops, then hands off to the recovery loop.
func (c *Channel) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		var f frame
		if err := wsjson.Read(context.Background(), conn, &f); err != nil {
			c.handleDrop(conn, stop, err)
			return
		}

		if f.Type != frameMessage {
			log.Debug().Str("type", f.Type).Msg("realtime: ignoring non-message frame")
			continue
		}

		c.mu.Lock()
		reg, ok := c.subs[f.Destination]
		c.mu.Unlock()

		if !ok {
			log.Debug().Str("topic", f.Destination).Msg("realtime: message for inactive topic")
			continue
		}

		reg.handler(f.Destination, f.Body)
	}
}

// heartbeatLoop exchanges transport pings at a fixed interval to detect
// silent disconnection. A failed ping closes the connection, which wakes
// the read loop into recovery.
func (c *Channel) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(c.heartbeat):
			ctx, cancel := context.WithTimeout(context.Background(), c.heartbeat)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("realtime: heartbeat failed")
				conn.CloseNow()
				return
			}
		}
	}
}

// handleDrop transitions a broken connection into Recovering and starts the
// reconnect loop, unless the drop was a deliberate Disconnect.
func (c *Channel) handleDrop(conn *websocket.Conn, stop chan struct{}, cause error) {
	select {
	case <-stop:
		// deliberate teardown
		return
	default:
	}

	c.mu.Lock()
	if c.conn != conn {
		// a newer connection has already superseded this one
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Recovering
	c.mu.Unlock()

	log.Warn().Err(cause).Dur("delay", c.reconnectDelay).Msg("realtime: connection lost, recovering")

	go c.recoverLoop(stop)
}

// recoverLoop re-enters Connecting after the fixed delay, indefinitely,
// until a dial succeeds or Disconnect is called. Subscribers only observe a
// delivery gap: their registrations are replayed by establish.
func (c *Channel) recoverLoop(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(c.reconnectDelay):
		}

		c.mu.Lock()
		if c.state != Recovering {
			c.mu.Unlock()
			return
		}
		c.state = Connecting
		c.mu.Unlock()

		err := c.establish(context.Background(), stop)
		if err == nil {
			return
		}

		c.mu.Lock()
		c.state = Recovering
		c.mu.Unlock()

		log.Warn().Err(err).Msg("realtime: reconnect failed")
	}
}

// writeFrame sends a control frame with a bounded deadline.
func writeFrame(conn *websocket.Conn, f frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return wsjson.Write(ctx, conn, f)
}
