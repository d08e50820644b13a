package hushwire

import (
	"time"

	"github.com/hushwire/hushwire/auth"
	"github.com/hushwire/hushwire/crypto"
	"github.com/hushwire/hushwire/recovery"
	"github.com/hushwire/hushwire/wire"
)

// DefaultClientID identifies this client implementation on the handshake.
const DefaultClientID = "hushwire-go/1.0"

// Options configures a Client. Collaborators are injected here; every one
// of them except Endpoint, Username and Tokens is optional.
type Options struct {
	// Endpoint is the WebSocket URL of the chat server, e.g.
	// "wss://chat.example.com/ws". Username and bearer token are appended
	// as query parameters on connect.
	Endpoint string
	Username string
	UserID   int64

	// ClientID is sent as the X-Client-ID handshake header.
	ClientID string

	// Tokens supplies the bearer token used for the connection URI and for
	// signing outbound envelopes.
	Tokens auth.TokenSource

	// Resolver maps usernames to numeric ids when envelopes omit them.
	Resolver wire.UserResolver

	// Persistence collaborators. Nil stores skip the corresponding side
	// effects; events are still emitted.
	Messages MessageStore
	Groups   GroupStore
	Events   EventStore

	// Notifier presents notifications; nil disables presentation.
	Notifier Notifier

	// MediaKeys caches inbound media encryption keys at rest; nil disables
	// caching.
	MediaKeys *crypto.Keystore

	// Observer gates reconnect attempts on network availability.
	Observer recovery.NetworkObserver

	// HealthCheck probes the connection while connected; a false return
	// triggers recovery. Nil disables the periodic probe (transport pings
	// still bound all waits).
	HealthCheck         func() bool
	HealthCheckInterval time.Duration

	// Backoff parameters for connection recovery.
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	MaxRetryAttempts  int

	// Transport timeouts.
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
}

// NewOptions returns Options with protocol defaults.
func NewOptions() *Options {
	return &Options{
		ClientID:            DefaultClientID,
		HealthCheckInterval: recovery.DefaultHealthCheckInterval,
		InitialRetryDelay:   recovery.DefaultInitialDelay,
		MaxRetryDelay:       recovery.DefaultMaxDelay,
		MaxRetryAttempts:    recovery.DefaultMaxAttempts,
	}
}
