package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageKind classifies a media message by its MIME type.
type MessageKind string

const (
	KindText     MessageKind = "TEXT"
	KindEmoji    MessageKind = "EMOJI"
	KindImage    MessageKind = "IMAGE"
	KindVideo    MessageKind = "VIDEO"
	KindDocument MessageKind = "DOCUMENT"
)

// ClassifyMime maps a MIME type to a message kind by prefix.
func ClassifyMime(mime string) MessageKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	default:
		return KindDocument
	}
}

// MediaPayload is the decrypted metadata of a media message. The media
// content itself is fetched out of band; EncryptedKey and IV unlock it.
type MediaPayload struct {
	MediaID          string `json:"mediaId"`
	EncryptedKey     string `json:"encryptedKey"`
	IV               string `json:"iv"`
	Filename         string `json:"fileName"`
	Mime             string `json:"mimeType"`
	Size             int64  `json:"fileSize"`
	Salvable         bool   `json:"salvable"`
	Thumbnail        string `json:"thumbnail,omitempty"`
	Caption          string `json:"caption,omitempty"`
	SenderAutoDelete bool   `json:"senderAutoDelete,omitempty"`
}

// Kind returns the message kind for the payload's MIME type.
func (m *MediaPayload) Kind() MessageKind {
	return ClassifyMime(m.Mime)
}

// ParseMedia decodes full media metadata from a decrypted media_msg payload.
// A missing required field aborts processing of that frame only.
func ParseMedia(plaintext string) (*MediaPayload, error) {
	var media MediaPayload
	if err := json.Unmarshal([]byte(plaintext), &media); err != nil {
		return nil, fmt.Errorf("malformed media payload: %w", err)
	}

	switch {
	case media.MediaID == "":
		return nil, fmt.Errorf("media payload missing mediaId")
	case media.EncryptedKey == "":
		return nil, fmt.Errorf("media payload missing encryptedKey")
	case media.IV == "":
		return nil, fmt.Errorf("media payload missing iv")
	case media.Filename == "":
		return nil, fmt.Errorf("media payload missing fileName")
	case media.Mime == "":
		return nil, fmt.Errorf("media payload missing mimeType")
	case media.Size <= 0:
		return nil, fmt.Errorf("media payload missing fileSize")
	}

	return &media, nil
}

// ReclassifyMedia is the legacy reclassification step: a decrypted text
// payload that parses as JSON carrying mediaId, encryptedKey and iv is
// treated as a media payload rather than literal text. This compensates for
// historical server framing of media messages under type "msg"; remove once
// the server always tags them media_msg.
func ReclassifyMedia(plaintext string) (*MediaPayload, bool) {
	trimmed := strings.TrimSpace(plaintext)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	var media MediaPayload
	if err := json.Unmarshal([]byte(trimmed), &media); err != nil {
		return nil, false
	}
	if media.MediaID == "" || media.EncryptedKey == "" || media.IV == "" {
		return nil, false
	}

	return &media, true
}

// EmojiPlaceholder substitutes for an emoji payload that failed to parse.
const EmojiPlaceholder = "❓" // U+2753

// ParseEmoji extracts the emoji glyph from a decrypted emoji_msg payload,
// falling back to a placeholder glyph on parse failure.
func ParseEmoji(plaintext string) string {
	var payload struct {
		Emoji string `json:"emoji"`
	}
	if err := json.Unmarshal([]byte(plaintext), &payload); err != nil || payload.Emoji == "" {
		return EmojiPlaceholder
	}
	return payload.Emoji
}

// GroupPayload is the JSON sub-payload of a group_msg envelope. Group
// traffic is not payload-encrypted at this layer (v=2 protocol).
type GroupPayload struct {
	GroupID        string `json:"groupId"`
	MessageID      string `json:"messageId"`
	SenderID       int64  `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType"`
	Timestamp      int64  `json:"timestamp"`
}

// ParseGroup decodes the group_msg sub-payload.
func ParseGroup(payload string) (*GroupPayload, error) {
	var group GroupPayload
	if err := json.Unmarshal([]byte(payload), &group); err != nil {
		return nil, fmt.Errorf("malformed group payload: %w", err)
	}
	if group.GroupID == "" || group.MessageID == "" {
		return nil, fmt.Errorf("group payload missing groupId or messageId")
	}
	return &group, nil
}

// Group notification discriminators.
const (
	GroupMemberAdded     = "MEMBER_ADDED"
	GroupMemberRemoved   = "MEMBER_REMOVED"
	GroupRoleChanged     = "ROLE_CHANGED"
	GroupSettingsUpdated = "SETTINGS_UPDATED"
)

// GroupNotifyPayload is the nested payload of a group_notify envelope.
type GroupNotifyPayload struct {
	Type      string          `json:"type"`
	GroupID   string          `json:"groupId"`
	ActorID   int64           `json:"actorId"`
	ActorName string          `json:"actorName"`
	TargetID  int64           `json:"targetId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ParseGroupNotify decodes the group_notify sub-payload.
func ParseGroupNotify(payload string) (*GroupNotifyPayload, error) {
	var notify GroupNotifyPayload
	if err := json.Unmarshal([]byte(payload), &notify); err != nil {
		return nil, fmt.Errorf("malformed group notification: %w", err)
	}
	if notify.Type == "" || notify.GroupID == "" {
		return nil, fmt.Errorf("group notification missing type or groupId")
	}
	return &notify, nil
}

// ContactPayload is the nested payload of contact_request and
// contact_accepted envelopes. Message is only present on requests.
type ContactPayload struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Message  string `json:"message,omitempty"`
}

// ParseContact decodes a contact event sub-payload.
func ParseContact(payload string) (*ContactPayload, error) {
	var contact ContactPayload
	if err := json.Unmarshal([]byte(payload), &contact); err != nil {
		return nil, fmt.Errorf("malformed contact payload: %w", err)
	}
	if contact.Username == "" {
		return nil, fmt.Errorf("contact payload missing username")
	}
	return &contact, nil
}

// ForceUpdatePayload is the nested payload of a force_update envelope.
type ForceUpdatePayload struct {
	Version     string `json:"version"`
	Message     string `json:"message"`
	DownloadURL string `json:"download_url"`
}

// ParseForceUpdate decodes the force_update sub-payload.
func ParseForceUpdate(payload string) (*ForceUpdatePayload, error) {
	var update ForceUpdatePayload
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		return nil, fmt.Errorf("malformed force_update payload: %w", err)
	}
	if update.Version == "" {
		return nil, fmt.Errorf("force_update payload missing version")
	}
	return &update, nil
}
