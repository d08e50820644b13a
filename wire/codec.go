package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hushwire/hushwire/crypto"
)

// Protocol versions carried in the v field.
const (
	VersionDirect = 1 // encrypted direct messages
	VersionGroup  = 2 // unencrypted group sub-payloads
)

// DecodeErrorPlaceholder substitutes for a payload that failed to decrypt.
const DecodeErrorPlaceholder = "encrypted message — decode error"

// EncodeText builds an encrypted, signed direct-message envelope. A fresh
// key and IV are generated per message; the signature covers the canonical
// string keyed by the bearer token.
func EncodeText(id, from, to, plaintext, token string, ts int64) (*Envelope, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	iv, err := crypto.GenerateIV()
	if err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	ciphertext, err := crypto.Encrypt([]byte(plaintext), key, iv)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	env := &Envelope{
		Version: VersionDirect,
		Type:    TypeMessage,
		ID:      id,
		From:    from,
		To:      to,
		Ts:      ts,
		Payload: crypto.EncodeBase64(ciphertext),
		IV:      crypto.EncodeBase64(iv),
		Key:     crypto.EncodeBase64(key),
	}
	env.HMAC = SignEnvelope(env, token)

	return env, nil
}

// EncodeGroup builds a group-message envelope. The sub-payload travels as an
// unencrypted JSON string; group traffic is v=2 and carries no key or IV.
func EncodeGroup(groupID string, senderID int64, senderUsername, messageID, content, messageType string, ts int64) (*Envelope, error) {
	if groupID == "" {
		return nil, errors.New("group id cannot be empty")
	}

	payload, err := json.Marshal(GroupPayload{
		GroupID:        groupID,
		MessageID:      messageID,
		SenderID:       senderID,
		SenderUsername: senderUsername,
		Content:        content,
		MessageType:    messageType,
		Timestamp:      ts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal group payload: %w", err)
	}

	return &Envelope{
		Version: VersionGroup,
		Type:    TypeGroupMessage,
		From:    senderUsername,
		To:      groupID,
		Ts:      ts,
		Payload: string(payload),
	}, nil
}

// EncodeTyping builds a typing-indicator envelope. Typing traffic is
// unencrypted and unsigned.
func EncodeTyping(from, to string, typing bool, ts int64) *Envelope {
	state := TypingStateIdle
	if typing {
		state = TypingStateActive
	}
	return &Envelope{
		Version: VersionDirect,
		Type:    TypeTyping,
		From:    from,
		To:      to,
		Ts:      ts,
		State:   state,
	}
}

// DecodePayload recovers the logical payload of an envelope. When key and IV
// are both present the payload is base64 ciphertext and is decrypted;
// otherwise it passes through as plaintext (compatibility path for servers
// that deliver unencrypted frames). Decryption failures are returned as a
// *crypto.CryptoError; callers substitute DecodeErrorPlaceholder.
func DecodePayload(env *Envelope) (string, error) {
	if !env.Encrypted() {
		return env.Payload, nil
	}

	key, err := crypto.DecodeBase64(env.Key)
	if err != nil {
		return "", err
	}
	iv, err := crypto.DecodeBase64(env.IV)
	if err != nil {
		return "", err
	}
	ciphertext, err := crypto.DecodeBase64(env.Payload)
	if err != nil {
		return "", err
	}

	plaintext, err := crypto.Decrypt(ciphertext, key, iv)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
