package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the envelope discriminator tag.
type Type string

const (
	TypeMessage            Type = "msg"
	TypeEmoji              Type = "emoji_msg"
	TypeMedia              Type = "media_msg"
	TypeGroupMessage       Type = "group_msg"
	TypeGroupMessageLegacy Type = "group_message"
	TypeGroupNotify        Type = "group_notify"
	TypeContactRequest     Type = "contact_request"
	TypeContactAccepted    Type = "contact_accepted"
	TypeSystemNotification Type = "system_notification"
	TypeForceUpdate        Type = "force_update"
	TypeTyping             Type = "typing"
	TypeAck                Type = "ack"
	TypeError              Type = "error"
)

// Known reports whether the tag is one the dispatcher understands. Unknown
// tags are dropped by the session, never treated as an error.
func (t Type) Known() bool {
	switch t {
	case TypeMessage, TypeEmoji, TypeMedia, TypeGroupMessage,
		TypeGroupMessageLegacy, TypeGroupNotify, TypeContactRequest,
		TypeContactAccepted, TypeSystemNotification, TypeForceUpdate,
		TypeTyping, TypeAck, TypeError:
		return true
	}
	return false
}

// Typing envelope states.
const (
	TypingStateActive = "typing"
	TypingStateIdle   = "idle"
)

// Envelope is the wire unit exchanged over the persistent connection.
//
// Payload carries base64 ciphertext for encrypted types and a raw JSON
// string for structured types. When Key and IV are both present the payload
// must be decrypted before interpretation; otherwise it is treated as
// plaintext (legacy compatibility path).
type Envelope struct {
	Version int    `json:"v,omitempty"`
	Type    Type   `json:"type"`
	ID      string `json:"id,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	FromID  int64  `json:"fromID,omitempty"`
	ToID    int64  `json:"toID,omitempty"`

	// Ts is client-assigned; SyncedTs/ServerTs are server-assigned when set.
	Ts       int64 `json:"ts,omitempty"`
	SyncedTs int64 `json:"syncedTs,omitempty"`
	ServerTs int64 `json:"server_ts,omitempty"`

	Payload string `json:"payload,omitempty"`
	IV      string `json:"iv,omitempty"`
	Key     string `json:"key,omitempty"`
	HMAC    string `json:"hmac,omitempty"`

	// Reply references, present on direct messages replying to another.
	ReplyTo      string `json:"replyTo,omitempty"`
	ReplyPreview string `json:"replyPreview,omitempty"`

	// Typing envelopes.
	State string `json:"state,omitempty"`

	// Ack envelopes.
	Status string `json:"status,omitempty"`

	// Error envelopes.
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// System notifications.
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`

	// Free-form sub-object used by structured notification types.
	Data json.RawMessage `json:"data,omitempty"`
}

// Encrypted reports whether the payload must be decrypted before use.
func (e *Envelope) Encrypted() bool {
	return e.Key != "" && e.IV != ""
}

// ParseEnvelope decodes a raw frame into an Envelope. The type tag must be
// present; everything else is validated by the per-type handlers.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Type == "" {
		return nil, errors.New("envelope missing type tag")
	}
	return &env, nil
}

// Marshal serializes the envelope for transmission as a single frame.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
