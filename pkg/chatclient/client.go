// Package chatclient is the client-side counterpart of the chat
// server: it opens the websocket with credentials attached to the
// handshake, dispatches incoming events to registered listeners and
// reconnects with bounded exponential backoff after non-deliberate
// disconnects.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/eventchat/pkg/wire"
)

var (
	ErrConnectionInProgress = errors.New("connection attempt already in progress")
	ErrConnectTimeout       = errors.New("connect timeout")
	ErrNotConnected         = errors.New("not connected")
	// ErrServerInitiatedDisconnect marks a close the server chose to
	// perform; the client will not reconnect on its own.
	ErrServerInitiatedDisconnect = errors.New("server closed the connection")
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Options struct {
	// URL of the chat endpoint, e.g. ws://host:8080/api/ws/chat.
	URL string
	// DialTimeout bounds a single connection attempt. Default 10s.
	DialTimeout time.Duration
	// BaseReconnectDelay is the first reconnection delay; it doubles
	// after every failed attempt. Default 1s.
	BaseReconnectDelay time.Duration
	// MaxReconnectDelay caps the doubling. Default 30s.
	MaxReconnectDelay time.Duration
	// MaxReconnectAttempts bounds automatic reconnection before giving
	// up. Default 5.
	MaxReconnectAttempts int
}

func (o *Options) withDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.BaseReconnectDelay <= 0 {
		o.BaseReconnectDelay = time.Second
	}
	if o.MaxReconnectDelay <= 0 {
		o.MaxReconnectDelay = 30 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
}

// Client is the connector state machine. All exported methods are safe
// for concurrent use.
type Client struct {
	opts Options

	mu             sync.Mutex
	status         Status
	conn           *websocket.Conn
	token          string
	lastRoom       string
	attempts       int
	delay          time.Duration
	reconnectTimer *time.Timer
	// gen is bumped on explicit Disconnect so stale dials and timers
	// from the previous connection cycle abort instead of racing.
	gen int

	writeMu sync.Mutex

	listeners  registry
	statusSubs subscribers[Status]
	closeSubs  subscribers[error]
}

func New(opts Options) *Client {
	opts.withDefaults()
	return &Client{
		opts:  opts,
		delay: opts.BaseReconnectDelay,
	}
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect opens the transport with the given credential attached to
// the handshake. Idempotent while connected; only one attempt may be
// in flight at a time. On success the previously joined room, if any,
// is re-joined before anything else.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	switch c.status {
	case StatusConnected:
		c.mu.Unlock()
		return nil
	case StatusConnecting:
		c.mu.Unlock()
		return ErrConnectionInProgress
	}
	c.status = StatusConnecting
	c.token = token
	gen := c.gen
	c.mu.Unlock()
	c.statusSubs.emit(StatusConnecting)

	conn, err := c.dial(ctx, token)
	return c.finishDial(conn, err, gen)
}

func (c *Client) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %w", ErrConnectTimeout, err)
		}
		return nil, err
	}
	return conn, nil
}

// finishDial applies the dial outcome to the state machine, discarding
// it if an explicit Disconnect happened mid-flight.
func (c *Client) finishDial(conn *websocket.Conn, dialErr error, gen int) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}
	if dialErr != nil {
		c.status = StatusDisconnected
		c.mu.Unlock()
		c.statusSubs.emit(StatusDisconnected)
		return dialErr
	}
	c.conn = conn
	c.status = StatusConnected
	c.attempts = 0
	c.delay = c.opts.BaseReconnectDelay
	room := c.lastRoom
	c.mu.Unlock()
	c.statusSubs.emit(StatusConnected)

	if room != "" {
		if err := c.writeJSON(wire.RoomRef{Type: wire.EventJoin, EventID: room}); err != nil {
			log.Warn().Err(err).Str("module", "chatclient").Str("event", room).Msg("rejoin failed")
		}
	}
	go c.readLoop(conn, gen)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDropped(err, gen)
			return
		}
		var p wire.Probe
		if json.Unmarshal(data, &p) != nil || p.Type == "" {
			log.Warn().Str("module", "chatclient").Msg("unparseable frame")
			continue
		}
		c.listeners.emit(p.Type, data)
	}
}

// handleDropped reacts to a transport-level disconnect. A close the
// server deliberately performed is terminal; any other reason drives
// the backoff schedule.
func (c *Client) handleDropped(err error, gen int) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.status = StatusDisconnected
	c.mu.Unlock()
	c.statusSubs.emit(StatusDisconnected)

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
		c.closeSubs.emit(fmt.Errorf("%w: %w", ErrServerInitiatedDisconnect, err))
		return
	}
	c.closeSubs.emit(err)
	c.scheduleReconnect(gen)
}

func (c *Client) scheduleReconnect(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	if c.attempts >= c.opts.MaxReconnectAttempts {
		log.Warn().Str("module", "chatclient").Int("attempts", c.attempts).Msg("giving up on reconnection")
		return
	}
	c.attempts++
	delay := c.delay
	if next := delay * 2; next > c.opts.MaxReconnectDelay {
		c.delay = c.opts.MaxReconnectDelay
	} else {
		c.delay = next
	}
	log.Info().Str("module", "chatclient").Int("attempt", c.attempts).Dur("delay", delay).Msg("reconnect scheduled")
	c.reconnectTimer = time.AfterFunc(delay, func() { c.reconnect(gen) })
}

func (c *Client) reconnect(gen int) {
	c.mu.Lock()
	if c.gen != gen || c.status != StatusDisconnected {
		c.mu.Unlock()
		return
	}
	c.status = StatusConnecting
	token := c.token
	c.mu.Unlock()
	c.statusSubs.emit(StatusConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
	defer cancel()
	conn, err := c.dial(ctx, token)
	if finishErr := c.finishDial(conn, err, gen); finishErr != nil {
		c.scheduleReconnect(gen)
	}
}

// Disconnect closes the transport, forgets the credential and the last
// joined room and cancels any pending reconnection. Registered
// listeners persist so a later Connect reuses them.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.token = ""
	c.lastRoom = ""
	c.attempts = 0
	c.delay = c.opts.BaseReconnectDelay
	wasDisconnected := c.status == StatusDisconnected
	c.status = StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	if !wasDisconnected {
		c.statusSubs.emit(StatusDisconnected)
	}
}
