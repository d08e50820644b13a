package hushwire

import (
	"encoding/json"
	"sync"

	"github.com/hushwire/hushwire/recovery"
)

// GroupEvent is a typed group membership or settings change.
type GroupEvent struct {
	Type      string // wire.GroupMemberAdded etc.
	GroupID   string
	ActorID   int64
	ActorName string
	TargetID  int64
	Data      json.RawMessage
}

// Ack reports a server acknowledgment for an outbound message.
type Ack struct {
	MessageID string
	Status    MessageStatus
	ServerTs  int64
}

// ServerError is a server-reported application error.
type ServerError struct {
	Code      int
	Message   string
	MessageID string // optional; the affected message
}

// callbacks holds the registered event handlers. Registration is
// independent of connection state and safe for concurrent use.
type callbacks struct {
	mu sync.RWMutex

	textMessage        func(*Message)
	emojiMessage       func(*Message)
	mediaMessage       func(*Message)
	groupMessage       func(*Message)
	groupEvent         func(*GroupEvent)
	groupJoined        func(groupID string)
	contactRequest     func(*ContactRequest)
	contactAccepted    func(userID int64, username string)
	systemNotification func(*SystemNotification)
	forceUpdate        func(*ForceUpdate)
	typingChanged      func(peerIDs []int64)
	ack                func(*Ack)
	serverError        func(*ServerError)
	connectionState    func(ConnectionState)
	recoveryState      func(recovery.State)
	sessionInvalid     func()
}

// OnTextMessage registers the handler for decrypted direct text messages.
func (c *Client) OnTextMessage(fn func(*Message)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.textMessage = fn
}

// OnEmojiMessage registers the handler for emoji messages.
func (c *Client) OnEmojiMessage(fn func(*Message)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.emojiMessage = fn
}

// OnMediaMessage registers the handler for media messages, including
// legacy-reclassified ones.
func (c *Client) OnMediaMessage(fn func(*Message)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.mediaMessage = fn
}

// OnGroupMessage registers the handler for group messages.
func (c *Client) OnGroupMessage(fn func(*Message)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.groupMessage = fn
}

// OnGroupEvent registers the handler for group membership and settings
// changes.
func (c *Client) OnGroupEvent(fn func(*GroupEvent)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.groupEvent = fn
}

// OnGroupJoined registers the handler fired when this user is added to a
// group, signalling the group list should be refreshed.
func (c *Client) OnGroupJoined(fn func(groupID string)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.groupJoined = fn
}

// OnContactRequest registers the handler for inbound contact requests.
func (c *Client) OnContactRequest(fn func(*ContactRequest)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.contactRequest = fn
}

// OnContactAccepted registers the handler fired when a contact request this
// user sent is accepted.
func (c *Client) OnContactAccepted(fn func(userID int64, username string)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.contactAccepted = fn
}

// OnSystemNotification registers the handler for server announcements.
func (c *Client) OnSystemNotification(fn func(*SystemNotification)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.systemNotification = fn
}

// OnForceUpdate registers the handler for forced-update signals.
func (c *Client) OnForceUpdate(fn func(*ForceUpdate)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.forceUpdate = fn
}

// OnTypingChanged registers the handler receiving the set of currently
// typing peer ids after every change.
func (c *Client) OnTypingChanged(fn func(peerIDs []int64)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.typingChanged = fn
}

// OnAck registers the handler for message acknowledgments.
func (c *Client) OnAck(fn func(*Ack)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.ack = fn
}

// OnServerError registers the handler for server-reported errors.
func (c *Client) OnServerError(fn func(*ServerError)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.serverError = fn
}

// OnConnectionState registers the handler for connection state transitions.
func (c *Client) OnConnectionState(fn func(ConnectionState)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.connectionState = fn
}

// OnRecoveryState registers the handler for recovery state snapshots.
func (c *Client) OnRecoveryState(fn func(recovery.State)) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.recoveryState = fn
}

// OnSessionInvalid registers the handler fired once when repeated auth
// rejections invalidate the session.
func (c *Client) OnSessionInvalid(fn func()) {
	c.cb.mu.Lock()
	defer c.cb.mu.Unlock()
	c.cb.sessionInvalid = fn
}
