// Package wire implements the hushwire envelope format.
//
// An envelope is the top-level JSON message exchanged over the persistent
// connection. The type tag selects the variant: encrypted direct messages
// (msg, emoji_msg, media_msg), unencrypted group traffic (group_msg,
// group_notify), contact events, system signals (system_notification,
// force_update), and protocol bookkeeping (typing, ack, error). Unknown tags
// parse into an envelope whose type reports as unknown so the dispatcher can
// drop them explicitly.
//
// Encrypted payloads use a fresh AES-256 key and IV per message; the envelope
// is authenticated by an HMAC-SHA256 signature over the canonical
// pipe-delimited string id|from|to|ts|iv|payload|key keyed by the session
// bearer token. Only outbound envelopes are signed; inbound signatures are
// carried but not verified by the client.
package wire
