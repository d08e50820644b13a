// Package transport provides the WebSocket transport for the hushwire
// protocol session.
//
// A Conn represents one live connection. Inbound frames and lifecycle
// transitions are delivered through registered callbacks; outbound frames
// are serialized through Send. The transport itself never reconnects;
// recovery policy belongs to the session and the recovery manager.
package transport
