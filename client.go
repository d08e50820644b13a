package hushwire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hushwire/hushwire/health"
	"github.com/hushwire/hushwire/recovery"
	"github.com/hushwire/hushwire/transport"
	"github.com/hushwire/hushwire/wire"
)

// ConnectionState is the transport connection state, owned exclusively by
// the Client and read-only elsewhere.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateError:
		return "ERROR"
	default:
		return "DISCONNECTED"
	}
}

// ErrNotConnected is returned by send operations while the session is not
// connected.
var ErrNotConnected = errors.New("not connected")

// Client is the hushwire protocol session. It owns the live connection,
// mediates all outbound and inbound traffic, and drives recovery.
type Client struct {
	opts *Options
	cb   callbacks

	clock   Clock
	typing  *typingSet
	monitor *health.Monitor
	manager *recovery.Manager
	checker *recovery.HealthChecker

	mu    sync.Mutex
	conn  *transport.Conn
	state atomic.Int32
}

// NewClient creates a disconnected client from opts.
func NewClient(opts *Options) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if opts.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if opts.Username == "" {
		return nil, errors.New("username is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("token source is required")
	}

	c := &Client{
		opts:   opts,
		typing: newTypingSet(),
	}

	c.monitor = health.NewMonitor(func() {
		logrus.WithFields(logrus.Fields{
			"function": "NewClient",
			"username": opts.Username,
		}).Error("Session flagged invalid after repeated auth rejections")
		c.emitSessionInvalid()
	})

	c.manager = recovery.NewManager(recovery.Config{
		InitialDelay:  opts.InitialRetryDelay,
		MaxDelay:      opts.MaxRetryDelay,
		MaxAttempts:   opts.MaxRetryAttempts,
		Reconnect:     c.redial,
		Observer:      opts.Observer,
		OnStateChange: c.emitRecoveryState,
		OnExhausted: func(lastErr error) {
			logrus.WithFields(logrus.Fields{
				"function": "NewClient",
				"error":    lastErr,
			}).Error("Connection recovery gave up")
		},
	})

	if opts.HealthCheck != nil {
		c.checker = recovery.NewHealthChecker(opts.HealthCheckInterval, opts.HealthCheck, func() {
			c.manager.StartRecovery(errors.New("health check failed"))
		})
	}

	return c, nil
}

// Connect opens the session. Idempotent: a no-op while connecting or
// connected. A dial failure transitions to ERROR and starts recovery.
func (c *Client) Connect(ctx context.Context) error {
	// The transition into CONNECTING must win an atomic swap so two
	// concurrent Connect calls cannot both dial.
	if !c.casState(StateDisconnected, StateConnecting) &&
		!c.casState(StateError, StateConnecting) {
		return nil
	}

	if err := c.dial(ctx); err != nil {
		c.setState(StateError)
		c.manager.StartRecovery(err)
		return err
	}
	return nil
}

// Disconnect closes the session gracefully. It cancels recovery and health
// checks synchronously before closing the transport: no reconnect attempt
// fires after Disconnect returns. Idempotent.
func (c *Client) Disconnect() {
	c.manager.Stop()
	if c.checker != nil {
		c.checker.Stop()
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close(transport.CloseNormal)
	}
	c.setState(StateDisconnected)
}

// Close disconnects and releases the network-observer subscription.
func (c *Client) Close() {
	c.Disconnect()
	c.manager.Close()
}

// State returns the connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// RecoveryState returns a snapshot of the recovery process.
func (c *Client) RecoveryState() recovery.State {
	return c.manager.State()
}

// HealthMonitor exposes the session health monitor so the application's
// request layer can record auth rejections through auth.Interceptor.
func (c *Client) HealthMonitor() *health.Monitor {
	return c.monitor
}

// SessionInvalid reports whether repeated auth rejections have invalidated
// the session.
func (c *Client) SessionInvalid() bool {
	return c.monitor.Invalid()
}

// TypingPeers returns the ids of peers currently typing.
func (c *Client) TypingPeers() []int64 {
	return c.typing.snapshot()
}

// ServerTimeOffsetMillis returns the estimated (server − client) clock
// offset.
func (c *Client) ServerTimeOffsetMillis() int64 {
	return c.clock.OffsetMillis()
}

// SendText encrypts, signs and transmits a direct text message. It returns
// the assigned message id; delivery confirmation arrives asynchronously as
// an ack matched by that id.
func (c *Client) SendText(to, text string) (string, error) {
	if c.State() != StateConnected {
		return "", ErrNotConnected
	}

	id := uuid.NewString()
	ts := time.Now().Unix()
	env, err := wire.EncodeText(id, c.opts.Username, to, text, c.opts.Tokens.Token(), ts)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	c.persistOutbound(&Message{
		ID:           id,
		FromID:       c.opts.UserID,
		FromUsername: c.opts.Username,
		ToID:         wire.ResolveUserID(0, to, c.opts.Resolver),
		ToUsername:   to,
		Kind:         wire.KindText,
		Content:      text,
		Status:       StatusPending,
		Timestamp:    time.Unix(ts, 0),
	})

	if err := c.send(env); err != nil {
		c.markFailed(id)
		return "", err
	}
	return id, nil
}

// SendGroupMessage transmits a group message. The sub-payload travels
// unencrypted at this layer (v=2 group protocol).
func (c *Client) SendGroupMessage(groupID, content string, kind wire.MessageKind) (string, error) {
	if c.State() != StateConnected {
		return "", ErrNotConnected
	}

	id := uuid.NewString()
	ts := time.Now().Unix()
	env, err := wire.EncodeGroup(groupID, c.opts.UserID, c.opts.Username, id, content, string(kind), ts)
	if err != nil {
		return "", fmt.Errorf("failed to encode group message: %w", err)
	}

	c.persistOutbound(&Message{
		ID:           id,
		GroupID:      groupID,
		FromID:       c.opts.UserID,
		FromUsername: c.opts.Username,
		Kind:         kind,
		Content:      content,
		Status:       StatusPending,
		Timestamp:    time.Unix(ts, 0),
	})

	if err := c.send(env); err != nil {
		c.markFailed(id)
		return "", err
	}
	return id, nil
}

// SendTyping transmits a typing indicator. Not persisted, not acknowledged.
func (c *Client) SendTyping(to string, typing bool) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return c.send(wire.EncodeTyping(c.opts.Username, to, typing, time.Now().Unix()))
}

func (c *Client) dial(ctx context.Context) error {
	endpoint, err := url.Parse(c.opts.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	query := endpoint.Query()
	query.Set("username", c.opts.Username)
	query.Set("token", c.opts.Tokens.Token())
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	header.Set("X-Client-ID", c.opts.ClientID)

	conn, err := transport.Dial(ctx, transport.Config{
		URL:              endpoint.String(),
		Header:           header,
		HandshakeTimeout: c.opts.HandshakeTimeout,
		WriteTimeout:     c.opts.WriteTimeout,
		PingInterval:     c.opts.PingInterval,
		PongTimeout:      c.opts.PongTimeout,
	}, transport.Callbacks{
		OnOpen:    c.handleOpen,
		OnMessage: c.handleFrame,
		OnClose:   c.handleClose,
		OnFailure: c.handleFailure,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// redial is the recovery manager's reconnect hook.
func (c *Client) redial() error {
	c.setState(StateConnecting)
	if err := c.dial(context.Background()); err != nil {
		c.setState(StateError)
		return err
	}
	return nil
}

func (c *Client) handleOpen() {
	c.setState(StateConnected)
	c.monitor.RecordSuccess()
	c.manager.Stop()
	if c.checker != nil {
		c.checker.Start()
	}
}

func (c *Client) handleClose(code int, reason string) {
	if c.checker != nil {
		c.checker.Stop()
	}
	c.setState(StateDisconnected)

	if code == transport.CloseNormal {
		return
	}

	// Abnormal closes are transport problems, never auth failures; they
	// start recovery but do not touch session health.
	c.manager.StartRecovery(fmt.Errorf("abnormal close %d: %s", code, reason))
}

func (c *Client) handleFailure(err error) {
	if c.checker != nil {
		c.checker.Stop()
	}
	c.setState(StateError)
	c.manager.StartRecovery(err)
}

// handleFrame schedules each inbound frame as an independent task so
// handlers cannot block the transport read loop. Ordering across frames is
// therefore not guaranteed; persistence is idempotent on message id.
func (c *Client) handleFrame(data []byte) {
	go c.dispatch(data)
}

func (c *Client) send(env *wire.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(data)
}

func (c *Client) persistOutbound(msg *Message) {
	if c.opts.Messages == nil {
		return
	}
	if _, err := c.opts.Messages.Insert(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "persistOutbound",
			"message_id": msg.ID,
			"error":      err,
		}).Error("Failed to persist outbound message")
	}
}

func (c *Client) markFailed(id string) {
	if c.opts.Messages == nil {
		return
	}
	if err := c.opts.Messages.UpdateStatus(id, StatusFailed); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "markFailed",
			"message_id": id,
			"error":      err,
		}).Error("Failed to mark message failed")
	}
}

func (c *Client) setState(next ConnectionState) {
	prev := ConnectionState(c.state.Swap(int32(next)))
	if prev == next {
		return
	}
	c.announceState(prev, next)
}

// casState transitions prev to next only if prev is current.
func (c *Client) casState(prev, next ConnectionState) bool {
	if !c.state.CompareAndSwap(int32(prev), int32(next)) {
		return false
	}
	c.announceState(prev, next)
	return true
}

func (c *Client) announceState(prev, next ConnectionState) {
	logrus.WithFields(logrus.Fields{
		"function": "announceState",
		"from":     prev.String(),
		"to":       next.String(),
	}).Info("Connection state changed")

	c.cb.mu.RLock()
	fn := c.cb.connectionState
	c.cb.mu.RUnlock()
	if fn != nil {
		fn(next)
	}
}

func (c *Client) emitRecoveryState(state recovery.State) {
	c.cb.mu.RLock()
	fn := c.cb.recoveryState
	c.cb.mu.RUnlock()
	if fn != nil {
		fn(state)
	}
}

func (c *Client) emitSessionInvalid() {
	c.cb.mu.RLock()
	fn := c.cb.sessionInvalid
	c.cb.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
