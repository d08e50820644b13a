package hushwire

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hushwire/hushwire/crypto"
	"github.com/hushwire/hushwire/wire"
)

// dispatch classifies one inbound frame and runs its handler. Every error
// is confined to the frame: handlers log and return, never affecting the
// connection.
func (c *Client) dispatch(data []byte) {
	env, err := wire.ParseEnvelope(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"error":    err,
		}).Warn("Dropping malformed frame")
		return
	}

	switch env.Type {
	case wire.TypeMessage:
		c.handleMsg(env)
	case wire.TypeEmoji:
		c.handleEmoji(env)
	case wire.TypeMedia:
		c.handleMedia(env)
	case wire.TypeGroupMessage, wire.TypeGroupMessageLegacy:
		c.handleGroupMessage(env)
	case wire.TypeGroupNotify:
		c.handleGroupNotify(env)
	case wire.TypeContactRequest:
		c.handleContactRequest(env)
	case wire.TypeContactAccepted:
		c.handleContactAccepted(env)
	case wire.TypeSystemNotification:
		c.handleSystemNotification(env)
	case wire.TypeForceUpdate:
		c.handleForceUpdate(env)
	case wire.TypeTyping:
		c.handleTyping(env)
	case wire.TypeAck:
		c.handleAck(env)
	case wire.TypeError:
		c.handleServerError(env)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"type":     string(env.Type),
		}).Info("Dropping envelope with unknown type")
	}
}

// resolveTimestamp prefers server-synced time over the client-assigned ts.
func resolveTimestamp(env *wire.Envelope) time.Time {
	switch {
	case env.SyncedTs > 0:
		return time.Unix(env.SyncedTs, 0)
	case env.ServerTs > 0:
		return time.Unix(env.ServerTs, 0)
	default:
		return time.Unix(env.Ts, 0)
	}
}

func (c *Client) handleMsg(env *wire.Envelope) {
	plaintext, err := wire.DecodePayload(env)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "handleMsg",
			"message_id": env.ID,
			"error":      err,
		}).Warn("Payload decryption failed, substituting placeholder")
		plaintext = wire.DecodeErrorPlaceholder
	} else if media, ok := wire.ReclassifyMedia(plaintext); ok {
		// Legacy reclassification: media metadata framed as a text message.
		c.deliverMedia(env, media)
		return
	}

	msg := &Message{
		ID:           env.ID,
		FromID:       wire.ResolveUserID(env.FromID, env.From, c.opts.Resolver),
		FromUsername: env.From,
		ToID:         wire.ResolveUserID(env.ToID, env.To, c.opts.Resolver),
		ToUsername:   env.To,
		Kind:         wire.KindText,
		Content:      plaintext,
		Status:       StatusDelivered,
		Timestamp:    resolveTimestamp(env),
		ReplyTo:      env.ReplyTo,
		ReplyPreview: env.ReplyPreview,
	}
	c.persistInbound(msg)
	c.emitMessage(c.cbTextMessage(), msg)
}

func (c *Client) handleEmoji(env *wire.Envelope) {
	plaintext, err := wire.DecodePayload(env)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "handleEmoji",
			"message_id": env.ID,
			"error":      err,
		}).Warn("Emoji payload decryption failed")
		plaintext = ""
	}

	msg := &Message{
		ID:           env.ID,
		FromID:       wire.ResolveUserID(env.FromID, env.From, c.opts.Resolver),
		FromUsername: env.From,
		ToID:         wire.ResolveUserID(env.ToID, env.To, c.opts.Resolver),
		ToUsername:   env.To,
		Kind:         wire.KindEmoji,
		Content:      wire.ParseEmoji(plaintext),
		Status:       StatusDelivered,
		Timestamp:    resolveTimestamp(env),
	}
	c.persistInbound(msg)
	c.emitMessage(c.cbEmojiMessage(), msg)
}

func (c *Client) handleMedia(env *wire.Envelope) {
	plaintext, err := wire.DecodePayload(env)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "handleMedia",
			"message_id": env.ID,
			"error":      err,
		}).Warn("Media payload decryption failed, dropping frame")
		return
	}

	media, err := wire.ParseMedia(plaintext)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "handleMedia",
			"message_id": env.ID,
			"error":      err,
		}).Warn("Invalid media metadata, dropping frame")
		return
	}

	c.deliverMedia(env, media)
}

func (c *Client) deliverMedia(env *wire.Envelope, media *wire.MediaPayload) {
	if c.opts.MediaKeys != nil {
		if raw, err := crypto.DecodeBase64(media.EncryptedKey); err == nil {
			if err := c.opts.MediaKeys.StoreKey(media.MediaID, raw); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "deliverMedia",
					"media_id": media.MediaID,
					"error":    err,
				}).Warn("Failed to cache media key")
			}
		}
	}

	msg := &Message{
		ID:           env.ID,
		FromID:       wire.ResolveUserID(env.FromID, env.From, c.opts.Resolver),
		FromUsername: env.From,
		ToID:         wire.ResolveUserID(env.ToID, env.To, c.opts.Resolver),
		ToUsername:   env.To,
		Kind:         media.Kind(),
		Content:      media.Caption,
		Media:        media,
		Status:       StatusDelivered,
		Timestamp:    resolveTimestamp(env),
	}
	c.persistInbound(msg)
	c.emitMessage(c.cbMediaMessage(), msg)
}

func (c *Client) handleGroupMessage(env *wire.Envelope) {
	group, err := wire.ParseGroup(env.Payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleGroupMessage",
			"error":    err,
		}).Warn("Invalid group payload, dropping frame")
		return
	}

	kind := wire.MessageKind(group.MessageType)
	if kind == "" {
		kind = wire.KindText
	}

	msg := &Message{
		ID:           group.MessageID,
		GroupID:      group.GroupID,
		FromID:       wire.ResolveUserID(group.SenderID, group.SenderUsername, c.opts.Resolver),
		FromUsername: group.SenderUsername,
		Kind:         kind,
		Content:      group.Content,
		Status:       StatusDelivered,
		Timestamp:    time.Unix(group.Timestamp, 0),
	}

	// The store's atomic insert decides whether this id is new. An id that
	// is already stored is either this client's own echo or a redelivery;
	// both mark the message delivered and re-emit without repeating the
	// unread bump or the notification. Handlers run concurrently, so the
	// insert result, not a prior lookup, must make that call.
	if c.opts.Messages != nil {
		inserted, err := c.opts.Messages.Insert(msg)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "handleGroupMessage",
				"message_id": group.MessageID,
				"error":      err,
			}).Error("Failed to persist group message")
		} else if !inserted {
			if err := c.opts.Messages.UpdateStatus(group.MessageID, StatusDelivered); err != nil {
				logrus.WithFields(logrus.Fields{
					"function":   "handleGroupMessage",
					"message_id": group.MessageID,
					"error":      err,
				}).Error("Failed to update group message status")
			}
			if existing, err := c.opts.Messages.GetByID(group.MessageID); err == nil {
				existing.Status = StatusDelivered
				msg = existing
			}
			c.emitMessage(c.cbGroupMessage(), msg)
			return
		}
	}

	if c.opts.Groups != nil {
		if err := c.opts.Groups.IncrementUnread(group.GroupID, 1); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleGroupMessage",
				"group_id": group.GroupID,
				"error":    err,
			}).Error("Failed to increment unread count")
		}
	}
	if c.opts.Notifier != nil {
		c.opts.Notifier.ShowGroupMessageNotification(group.GroupID, group.SenderUsername, group.Content)
	}

	c.emitMessage(c.cbGroupMessage(), msg)
}

func (c *Client) handleGroupNotify(env *wire.Envelope) {
	notify, err := wire.ParseGroupNotify(env.Payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleGroupNotify",
			"error":    err,
		}).Warn("Invalid group notification, dropping frame")
		return
	}

	c.cb.mu.RLock()
	onEvent := c.cb.groupEvent
	onJoined := c.cb.groupJoined
	c.cb.mu.RUnlock()

	if onEvent != nil {
		onEvent(&GroupEvent{
			Type:      notify.Type,
			GroupID:   notify.GroupID,
			ActorID:   notify.ActorID,
			ActorName: notify.ActorName,
			TargetID:  notify.TargetID,
			Data:      notify.Data,
		})
	}

	// Self-addition refreshes the group list.
	if notify.Type == wire.GroupMemberAdded && notify.TargetID != 0 &&
		notify.TargetID == c.opts.UserID && onJoined != nil {
		onJoined(notify.GroupID)
	}
}

func (c *Client) handleContactRequest(env *wire.Envelope) {
	contact, err := wire.ParseContact(env.Payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleContactRequest",
			"error":    err,
		}).Warn("Invalid contact request, dropping frame")
		return
	}

	req := &ContactRequest{
		UserID:     wire.ResolveUserID(contact.UserID, contact.Username, c.opts.Resolver),
		Username:   contact.Username,
		Message:    contact.Message,
		ReceivedAt: resolveTimestamp(env),
	}

	if c.opts.Events != nil {
		if err := c.opts.Events.SaveContactRequest(req); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleContactRequest",
				"username": req.Username,
				"error":    err,
			}).Error("Failed to persist contact request")
		}
	}

	c.cb.mu.RLock()
	fn := c.cb.contactRequest
	c.cb.mu.RUnlock()
	if fn != nil {
		fn(req)
	}
}

func (c *Client) handleContactAccepted(env *wire.Envelope) {
	contact, err := wire.ParseContact(env.Payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleContactAccepted",
			"error":    err,
		}).Warn("Invalid contact acceptance, dropping frame")
		return
	}

	c.cb.mu.RLock()
	fn := c.cb.contactAccepted
	c.cb.mu.RUnlock()
	if fn != nil {
		fn(wire.ResolveUserID(contact.UserID, contact.Username, c.opts.Resolver), contact.Username)
	}
}

func (c *Client) handleSystemNotification(env *wire.Envelope) {
	if env.ID == "" || env.Title == "" {
		logrus.WithFields(logrus.Fields{
			"function": "handleSystemNotification",
		}).Warn("System notification missing id or title, dropping frame")
		return
	}

	notification := &SystemNotification{
		ID:          env.ID,
		Title:       env.Title,
		Description: env.Description,
		URL:         env.URL,
		Timestamp:   resolveTimestamp(env),
	}

	if c.opts.Events != nil {
		if err := c.opts.Events.SaveSystemNotification(notification); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":        "handleSystemNotification",
				"notification_id": notification.ID,
				"error":           err,
			}).Error("Failed to persist system notification")
		}
	}
	if c.opts.Notifier != nil {
		c.opts.Notifier.ShowSystemNotification(notification)
	}

	c.cb.mu.RLock()
	fn := c.cb.systemNotification
	c.cb.mu.RUnlock()
	if fn != nil {
		fn(notification)
	}
}

func (c *Client) handleForceUpdate(env *wire.Envelope) {
	payload, err := wire.ParseForceUpdate(env.Payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleForceUpdate",
			"error":    err,
		}).Warn("Invalid force_update payload, dropping frame")
		return
	}

	update := &ForceUpdate{
		Version:     payload.Version,
		Message:     payload.Message,
		DownloadURL: payload.DownloadURL,
	}

	if c.opts.Events != nil {
		if err := c.opts.Events.SavePendingUpdate(update); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleForceUpdate",
				"version":  update.Version,
				"error":    err,
			}).Error("Failed to persist pending update")
		}
	}
	if c.opts.Notifier != nil {
		c.opts.Notifier.ShowForceUpdateDialog(update.Version, update.Message, update.DownloadURL)
	}

	c.cb.mu.RLock()
	fn := c.cb.forceUpdate
	c.cb.mu.RUnlock()
	if fn != nil {
		fn(update)
	}
}

func (c *Client) handleTyping(env *wire.Envelope) {
	peerID := wire.ResolveUserID(env.FromID, env.From, c.opts.Resolver)
	typing := env.State == wire.TypingStateActive

	if !c.typing.set(peerID, typing) {
		return
	}

	c.cb.mu.RLock()
	fn := c.cb.typingChanged
	c.cb.mu.RUnlock()
	if fn != nil {
		fn(c.typing.snapshot())
	}
}

func (c *Client) handleAck(env *wire.Envelope) {
	if env.ServerTs > 0 {
		c.clock.Observe(env.ServerTs, time.Now().Unix())
	}

	status, ok := parseAckStatus(env.Status)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function":   "handleAck",
			"message_id": env.ID,
			"status":     env.Status,
		}).Warn("Ignoring ack with unrecognized status")
		return
	}

	if c.opts.Messages != nil {
		if err := c.opts.Messages.UpdateStatus(env.ID, status); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "handleAck",
				"message_id": env.ID,
				"error":      err,
			}).Error("Failed to update message status")
		}
	}

	c.cb.mu.RLock()
	fn := c.cb.ack
	c.cb.mu.RUnlock()
	if fn != nil {
		fn(&Ack{MessageID: env.ID, Status: status, ServerTs: env.ServerTs})
	}
}

// parseAckStatus maps a case-insensitive wire status to a message status.
func parseAckStatus(status string) (MessageStatus, bool) {
	switch strings.ToLower(status) {
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "read":
		return StatusRead, true
	default:
		return "", false
	}
}

func (c *Client) handleServerError(env *wire.Envelope) {
	logrus.WithFields(logrus.Fields{
		"function":   "handleServerError",
		"code":       env.Code,
		"message":    env.Message,
		"message_id": env.ID,
	}).Error("Server reported an error")

	if env.ID != "" && c.opts.Messages != nil {
		if err := c.opts.Messages.UpdateStatus(env.ID, StatusFailed); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "handleServerError",
				"message_id": env.ID,
				"error":      err,
			}).Error("Failed to mark message failed")
		}
	}

	c.cb.mu.RLock()
	fn := c.cb.serverError
	c.cb.mu.RUnlock()
	if fn != nil {
		fn(&ServerError{Code: env.Code, Message: env.Message, MessageID: env.ID})
	}
}

func (c *Client) persistInbound(msg *Message) {
	if c.opts.Messages == nil {
		return
	}
	if _, err := c.opts.Messages.Insert(msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "persistInbound",
			"message_id": msg.ID,
			"error":      err,
		}).Error("Failed to persist inbound message")
	}
}

func (c *Client) emitMessage(fn func(*Message), msg *Message) {
	if fn != nil {
		fn(msg)
	}
}

func (c *Client) cbTextMessage() func(*Message) {
	c.cb.mu.RLock()
	defer c.cb.mu.RUnlock()
	return c.cb.textMessage
}

func (c *Client) cbEmojiMessage() func(*Message) {
	c.cb.mu.RLock()
	defer c.cb.mu.RUnlock()
	return c.cb.emojiMessage
}

func (c *Client) cbMediaMessage() func(*Message) {
	c.cb.mu.RLock()
	defer c.cb.mu.RUnlock()
	return c.cb.mediaMessage
}

func (c *Client) cbGroupMessage() func(*Message) {
	c.cb.mu.RLock()
	defer c.cb.mu.RUnlock()
	return c.cb.groupMessage
}
