package hushwire

import (
	"errors"
	"time"

	"github.com/hushwire/hushwire/wire"
)

// ErrNotFound is returned by stores when no record matches.
var ErrNotFound = errors.New("not found")

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusPending   MessageStatus = "PENDING"
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
	StatusFailed    MessageStatus = "FAILED"
)

// Message is a logical chat message, direct or group.
type Message struct {
	ID           string
	GroupID      string // empty for direct messages
	FromID       int64
	FromUsername string
	ToID         int64
	ToUsername   string
	Kind         wire.MessageKind
	Content      string
	Media        *wire.MediaPayload // set for media messages
	Status       MessageStatus
	Timestamp    time.Time
	ReplyTo      string
	ReplyPreview string
}

// Group is the subset of group state the protocol layer touches.
type Group struct {
	ID          string
	Name        string
	UnreadCount int
}

// ContactRequest is a pending inbound contact request.
type ContactRequest struct {
	UserID     int64
	Username   string
	Message    string
	ReceivedAt time.Time
}

// SystemNotification is a server-issued announcement.
type SystemNotification struct {
	ID          string
	Title       string
	Description string
	URL         string
	Timestamp   time.Time
	Read        bool
}

// ForceUpdate is a pending forced client update.
type ForceUpdate struct {
	Version     string
	Message     string
	DownloadURL string
}

// MessageStore persists messages. Insert must be idempotent on message id:
// inserting an id that already exists is a no-op, not an error, because
// frames may be redelivered and handlers run concurrently. The returned
// flag reports whether the row was newly written; the dispatcher gates
// per-message side effects on it, so the decision must be atomic with the
// write.
type MessageStore interface {
	Insert(msg *Message) (inserted bool, err error)
	GetByID(id string) (*Message, error)
	UpdateStatus(id string, status MessageStatus) error
}

// GroupStore persists group state.
type GroupStore interface {
	GetByID(groupID string) (*Group, error)
	IncrementUnread(groupID string, n int) error
}

// EventStore persists out-of-band protocol events: pending contact
// requests, unread system notifications, and the pending forced update.
type EventStore interface {
	SaveContactRequest(req *ContactRequest) error
	SaveSystemNotification(n *SystemNotification) error
	SavePendingUpdate(u *ForceUpdate) error
}

// Notifier presents user-facing notifications. Implementations must not
// block; they are called from dispatch goroutines.
type Notifier interface {
	ShowSystemNotification(n *SystemNotification)
	ShowGroupMessageNotification(groupID, sender, content string)
	ShowForceUpdateDialog(version, message, url string)
}
