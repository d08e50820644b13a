package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// CloseNormal is the graceful close code. Any other close code is treated
// as an abnormal loss by the session.
const CloseNormal = websocket.CloseNormalClosure

// Default transport timeouts. All waits are bounded; nothing blocks
// indefinitely.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 25 * time.Second
	DefaultPongTimeout      = 60 * time.Second
)

// Callbacks receive transport events. OnMessage runs on the read loop
// goroutine; handlers must not block it.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(code int, reason string)
	OnFailure func(err error)
}

// Config parameterizes a dial.
type Config struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
}

// Conn is a live WebSocket connection.
type Conn struct {
	conn    *websocket.Conn
	cfg     Config
	cb      Callbacks
	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
	stopper sync.Once
}

// Dial opens a connection and starts the read and ping loops. OnOpen fires
// before Dial returns.
func Dial(ctx context.Context, cfg Config, cb Callbacks) (*Conn, error) {
	cfg.applyDefaults()

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	wsConn, resp, err := dialer.DialContext(ctx, cfg.URL, cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, err
	}

	c := &Conn{
		conn: wsConn,
		cfg:  cfg,
		cb:   cb,
		done: make(chan struct{}),
	}

	_ = wsConn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	go c.readLoop()
	go c.pingLoop()

	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"url":      cfg.URL,
	}).Info("Transport connected")

	if cb.OnOpen != nil {
		cb.OnOpen()
	}

	return c, nil
}

// HandshakeError carries the HTTP status of a rejected upgrade so callers
// can distinguish auth rejections from network failures.
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return e.Err.Error()
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// AuthRejected reports whether the handshake failed with a 401/403 status.
func (e *HandshakeError) AuthRejected() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Send transmits one text frame. Writes are serialized and bounded by the
// write timeout.
func (c *Conn) Send(data []byte) error {
	if c.closed.Load() {
		return errors.New("transport closed")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close shuts the connection down with the given close code. No callbacks
// fire after Close returns. Idempotent.
func (c *Conn) Close(code int) {
	c.stopper.Do(func() {
		c.closed.Store(true)
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, ""))
		c.writeMu.Unlock()

		_ = c.conn.Close()
	})
}

func (c *Conn) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return // local close, no callbacks
			}
			c.closed.Store(true)
			_ = c.conn.Close()

			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				logrus.WithFields(logrus.Fields{
					"function": "readLoop",
					"code":     closeErr.Code,
					"reason":   closeErr.Text,
				}).Info("Transport closed by peer")
				if c.cb.OnClose != nil {
					c.cb.OnClose(closeErr.Code, closeErr.Text)
				}
			} else {
				logrus.WithFields(logrus.Fields{
					"function": "readLoop",
					"error":    err,
				}).Warn("Transport read failed")
				if c.cb.OnFailure != nil {
					c.cb.OnFailure(err)
				}
			}
			return
		}

		if c.cb.OnMessage != nil {
			c.cb.OnMessage(data)
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
