// Package store provides persistence for the hushwire client: a SQLite
// implementation for durable state and an in-memory implementation for
// ephemeral sessions and tests.
//
// Message inserts are idempotent on message id. Dispatch handlers run
// concurrently and frames may be redelivered after reconnect, so the same
// id can arrive more than once; the first write wins.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/hushwire/hushwire"
	"github.com/hushwire/hushwire/wire"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	group_id      TEXT NOT NULL DEFAULT '',
	from_id       INTEGER NOT NULL DEFAULT 0,
	from_username TEXT NOT NULL DEFAULT '',
	to_id         INTEGER NOT NULL DEFAULT 0,
	to_username   TEXT NOT NULL DEFAULT '',
	kind          TEXT NOT NULL DEFAULT 'TEXT',
	content       TEXT NOT NULL DEFAULT '',
	media         TEXT,
	status        TEXT NOT NULL DEFAULT 'PENDING',
	ts            INTEGER NOT NULL DEFAULT 0,
	reply_to      TEXT NOT NULL DEFAULT '',
	reply_preview TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_id, ts);

CREATE TABLE IF NOT EXISTS groups (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	unread_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS contact_requests (
	user_id     INTEGER NOT NULL,
	username    TEXT PRIMARY KEY,
	message     TEXT NOT NULL DEFAULT '',
	received_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS system_notifications (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	ts          INTEGER NOT NULL DEFAULT 0,
	read        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS pending_update (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	version      TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	download_url TEXT NOT NULL DEFAULT ''
);
`

// SQLite persists client state in a SQLite database. It implements
// hushwire.MessageStore, hushwire.GroupStore and hushwire.EventStore.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. Pass
// ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "OpenSQLite",
		"path":     path,
	}).Info("Message store opened")

	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Insert persists a message. Inserting an id that already exists is a
// no-op; the returned flag reports whether the row was newly written, and
// the OR IGNORE makes that decision atomic with the write.
func (s *SQLite) Insert(msg *hushwire.Message) (bool, error) {
	var media sql.NullString
	if msg.Media != nil {
		encoded, err := json.Marshal(msg.Media)
		if err != nil {
			return false, fmt.Errorf("failed to encode media metadata: %w", err)
		}
		media = sql.NullString{String: string(encoded), Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO messages
			(id, group_id, from_id, from_username, to_id, to_username,
			 kind, content, media, status, ts, reply_to, reply_preview)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.GroupID, msg.FromID, msg.FromUsername, msg.ToID,
		msg.ToUsername, string(msg.Kind), msg.Content, media,
		string(msg.Status), msg.Timestamp.Unix(), msg.ReplyTo, msg.ReplyPreview)
	if err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return affected > 0, nil
}

// GetByID loads one message, or hushwire.ErrNotFound.
func (s *SQLite) GetByID(id string) (*hushwire.Message, error) {
	row := s.db.QueryRow(`
		SELECT id, group_id, from_id, from_username, to_id, to_username,
		       kind, content, media, status, ts, reply_to, reply_preview
		FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// UpdateStatus sets the delivery status of a message. Updating an unknown
// id is a no-op; the ack may reference a message sent by another device.
func (s *SQLite) UpdateStatus(id string, status hushwire.MessageStatus) error {
	_, err := s.db.Exec(`UPDATE messages SET status = ? WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}

// ListGroupMessages returns up to limit messages of a group, newest first.
func (s *SQLite) ListGroupMessages(groupID string, limit int) ([]*hushwire.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, group_id, from_id, from_username, to_id, to_username,
		       kind, content, media, status, ts, reply_to, reply_preview
		FROM messages WHERE group_id = ?
		ORDER BY ts DESC LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list group messages: %w", err)
	}
	defer rows.Close()

	var out []*hushwire.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*hushwire.Message, error) {
	var msg hushwire.Message
	var kind, status string
	var media sql.NullString
	var ts int64

	err := row.Scan(&msg.ID, &msg.GroupID, &msg.FromID, &msg.FromUsername,
		&msg.ToID, &msg.ToUsername, &kind, &msg.Content, &media, &status,
		&ts, &msg.ReplyTo, &msg.ReplyPreview)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hushwire.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.Kind = wire.MessageKind(kind)
	msg.Status = hushwire.MessageStatus(status)
	msg.Timestamp = time.Unix(ts, 0)
	if media.Valid {
		var payload wire.MediaPayload
		if err := json.Unmarshal([]byte(media.String), &payload); err != nil {
			return nil, fmt.Errorf("failed to decode media metadata: %w", err)
		}
		msg.Media = &payload
	}
	return &msg, nil
}

// GetGroupByID loads one group, or hushwire.ErrNotFound. Named to avoid
// clashing with the message GetByID on the shared receiver; the
// hushwire.GroupStore view is exposed through Groups.
func (s *SQLite) GetGroupByID(groupID string) (*hushwire.Group, error) {
	var g hushwire.Group
	err := s.db.QueryRow(`SELECT id, name, unread_count FROM groups WHERE id = ?`,
		groupID).Scan(&g.ID, &g.Name, &g.UnreadCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hushwire.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	return &g, nil
}

// IncrementUnread bumps a group's unread counter, creating the group row
// if it is unknown.
func (s *SQLite) IncrementUnread(groupID string, n int) error {
	_, err := s.db.Exec(`
		INSERT INTO groups (id, unread_count) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET unread_count = unread_count + excluded.unread_count`,
		groupID, n)
	if err != nil {
		return fmt.Errorf("failed to increment unread count: %w", err)
	}
	return nil
}

// ClearUnread resets a group's unread counter, typically when the
// application opens the conversation.
func (s *SQLite) ClearUnread(groupID string) error {
	_, err := s.db.Exec(`UPDATE groups SET unread_count = 0 WHERE id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("failed to clear unread count: %w", err)
	}
	return nil
}

// Groups adapts the store to hushwire.GroupStore.
func (s *SQLite) Groups() hushwire.GroupStore {
	return groupView{s}
}

type groupView struct{ s *SQLite }

func (v groupView) GetByID(groupID string) (*hushwire.Group, error) {
	return v.s.GetGroupByID(groupID)
}

func (v groupView) IncrementUnread(groupID string, n int) error {
	return v.s.IncrementUnread(groupID, n)
}

// SaveContactRequest upserts a pending contact request keyed by username.
func (s *SQLite) SaveContactRequest(req *hushwire.ContactRequest) error {
	_, err := s.db.Exec(`
		INSERT INTO contact_requests (user_id, username, message, received_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			user_id = excluded.user_id,
			message = excluded.message,
			received_at = excluded.received_at`,
		req.UserID, req.Username, req.Message, req.ReceivedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save contact request: %w", err)
	}
	return nil
}

// PendingContactRequests returns all stored contact requests.
func (s *SQLite) PendingContactRequests() ([]*hushwire.ContactRequest, error) {
	rows, err := s.db.Query(`
		SELECT user_id, username, message, received_at
		FROM contact_requests ORDER BY received_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact requests: %w", err)
	}
	defer rows.Close()

	var out []*hushwire.ContactRequest
	for rows.Next() {
		var req hushwire.ContactRequest
		var ts int64
		if err := rows.Scan(&req.UserID, &req.Username, &req.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan contact request: %w", err)
		}
		req.ReceivedAt = time.Unix(ts, 0)
		out = append(out, &req)
	}
	return out, rows.Err()
}

// DeleteContactRequest removes a request after it is accepted or declined.
func (s *SQLite) DeleteContactRequest(username string) error {
	_, err := s.db.Exec(`DELETE FROM contact_requests WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("failed to delete contact request: %w", err)
	}
	return nil
}

// SaveSystemNotification stores a notification as unread. Redelivered ids
// are ignored.
func (s *SQLite) SaveSystemNotification(n *hushwire.SystemNotification) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO system_notifications (id, title, description, url, ts, read)
		VALUES (?, ?, ?, ?, ?, 0)`,
		n.ID, n.Title, n.Description, n.URL, n.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to save system notification: %w", err)
	}
	return nil
}

// UnreadNotifications returns stored notifications not yet marked read.
func (s *SQLite) UnreadNotifications() ([]*hushwire.SystemNotification, error) {
	rows, err := s.db.Query(`
		SELECT id, title, description, url, ts
		FROM system_notifications WHERE read = 0 ORDER BY ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*hushwire.SystemNotification
	for rows.Next() {
		var n hushwire.SystemNotification
		var ts int64
		if err := rows.Scan(&n.ID, &n.Title, &n.Description, &n.URL, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Timestamp = time.Unix(ts, 0)
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one notification as read.
func (s *SQLite) MarkNotificationRead(id string) error {
	_, err := s.db.Exec(`UPDATE system_notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// SavePendingUpdate records the forced update, replacing any previous one.
func (s *SQLite) SavePendingUpdate(u *hushwire.ForceUpdate) error {
	_, err := s.db.Exec(`
		INSERT INTO pending_update (id, version, message, download_url)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			message = excluded.message,
			download_url = excluded.download_url`,
		u.Version, u.Message, u.DownloadURL)
	if err != nil {
		return fmt.Errorf("failed to save pending update: %w", err)
	}
	return nil
}

// PendingUpdate returns the stored forced update, or hushwire.ErrNotFound.
func (s *SQLite) PendingUpdate() (*hushwire.ForceUpdate, error) {
	var u hushwire.ForceUpdate
	err := s.db.QueryRow(`SELECT version, message, download_url FROM pending_update WHERE id = 1`).
		Scan(&u.Version, &u.Message, &u.DownloadURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hushwire.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending update: %w", err)
	}
	return &u, nil
}

// ClearPendingUpdate removes the stored update once the client is current.
func (s *SQLite) ClearPendingUpdate() error {
	_, err := s.db.Exec(`DELETE FROM pending_update WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to clear pending update: %w", err)
	}
	return nil
}
