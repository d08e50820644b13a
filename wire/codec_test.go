package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushwire/hushwire/crypto"
)

func TestCanonicalStringDeterministic(t *testing.T) {
	got := CanonicalString("id-1", "alice", "bob", 1700000000, "aXY=", "cGF5bG9hZA==", "a2V5")
	want := "id-1|alice|bob|1700000000|aXY=|cGF5bG9hZA==|a2V5"
	assert.Equal(t, want, got)

	// Same inputs always produce the same string and signature.
	again := CanonicalString("id-1", "alice", "bob", 1700000000, "aXY=", "cGF5bG9hZA==", "a2V5")
	assert.Equal(t, got, again)
	assert.Equal(t, crypto.Sign(got, "token"), crypto.Sign(again, "token"))
}

func TestEncodeTextRoundTrip(t *testing.T) {
	env, err := EncodeText("id-1", "alice", "bob", "hello bob", "bearer-token", 1700000000)
	require.NoError(t, err)

	assert.Equal(t, VersionDirect, env.Version)
	assert.Equal(t, TypeMessage, env.Type)
	assert.True(t, env.Encrypted())
	assert.NotEmpty(t, env.HMAC)
	assert.NotEqual(t, "hello bob", env.Payload)

	plaintext, err := DecodePayload(env)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", plaintext)
}

func TestEncodeTextFreshKeyPerMessage(t *testing.T) {
	env1, err := EncodeText("id-1", "alice", "bob", "same text", "token", 1700000000)
	require.NoError(t, err)
	env2, err := EncodeText("id-2", "alice", "bob", "same text", "token", 1700000000)
	require.NoError(t, err)

	assert.NotEqual(t, env1.Key, env2.Key)
	assert.NotEqual(t, env1.IV, env2.IV)
	assert.NotEqual(t, env1.Payload, env2.Payload)
}

func TestEncodeTextSignatureMatchesCanonical(t *testing.T) {
	env, err := EncodeText("id-1", "alice", "bob", "hi", "token", 1700000000)
	require.NoError(t, err)

	canonical := CanonicalString(env.ID, env.From, env.To, env.Ts, env.IV, env.Payload, env.Key)
	assert.Equal(t, crypto.Sign(canonical, "token"), env.HMAC)
}

func TestDecodePayloadPlaintextPassthrough(t *testing.T) {
	env := &Envelope{Type: TypeMessage, Payload: "already plaintext"}
	plaintext, err := DecodePayload(env)
	require.NoError(t, err)
	assert.Equal(t, "already plaintext", plaintext)
}

func TestDecodePayloadCorruptCiphertext(t *testing.T) {
	env, err := EncodeText("id-1", "alice", "bob", "hello", "token", 1700000000)
	require.NoError(t, err)
	env.Payload = "AAAA" // valid base64, not a valid ciphertext

	_, err = DecodePayload(env)
	require.Error(t, err)

	var cerr *crypto.CryptoError
	assert.True(t, errors.As(err, &cerr))
}

func TestDecodePayloadMalformedBase64(t *testing.T) {
	env := &Envelope{
		Type:    TypeMessage,
		Key:     "!!not-base64!!",
		IV:      "aXY=",
		Payload: "cGF5bG9hZA==",
	}
	_, err := DecodePayload(env)
	assert.Error(t, err)
}

func TestEncodeGroup(t *testing.T) {
	env, err := EncodeGroup("group-7", 42, "alice", "m-1", "hello group", "TEXT", 1700000000)
	require.NoError(t, err)

	assert.Equal(t, VersionGroup, env.Version)
	assert.Equal(t, TypeGroupMessage, env.Type)
	assert.Equal(t, "group-7", env.To)
	assert.False(t, env.Encrypted())

	group, err := ParseGroup(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "group-7", group.GroupID)
	assert.Equal(t, "m-1", group.MessageID)
	assert.Equal(t, int64(42), group.SenderID)
	assert.Equal(t, "hello group", group.Content)
}

func TestEncodeGroupEmptyID(t *testing.T) {
	_, err := EncodeGroup("", 42, "alice", "m-1", "text", "TEXT", 1700000000)
	assert.Error(t, err)
}

func TestEncodeTyping(t *testing.T) {
	env := EncodeTyping("alice", "bob", true, 1700000000)
	assert.Equal(t, TypeTyping, env.Type)
	assert.Equal(t, TypingStateActive, env.State)

	env = EncodeTyping("alice", "bob", false, 1700000000)
	assert.Equal(t, TypingStateIdle, env.State)
}

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"v":1,"type":"msg","id":"x","from":"a","to":"b","ts":1700000000}`))
	require.NoError(t, err)
	assert.Equal(t, TypeMessage, env.Type)
	assert.True(t, env.Type.Known())

	env, err = ParseEnvelope([]byte(`{"type":"mystery_frame"}`))
	require.NoError(t, err)
	assert.False(t, env.Type.Known())

	_, err = ParseEnvelope([]byte(`{"v":1}`))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestReclassifyMedia(t *testing.T) {
	// Literal text stays text.
	_, ok := ReclassifyMedia("just a chat message")
	assert.False(t, ok)

	// JSON without the media triple stays text.
	_, ok = ReclassifyMedia(`{"emoji":"🙂"}`)
	assert.False(t, ok)

	// The media triple reclassifies.
	media, ok := ReclassifyMedia(`{"mediaId":"m-9","encryptedKey":"ZWs=","iv":"aXY=","fileName":"pic.jpg","mimeType":"image/jpeg","fileSize":123}`)
	require.True(t, ok)
	assert.Equal(t, "m-9", media.MediaID)
	assert.Equal(t, KindImage, media.Kind())
}

func TestDecodedTextReclassification(t *testing.T) {
	// End to end: an encrypted "msg" whose plaintext is media metadata.
	mediaJSON := `{"mediaId":"m-1","encryptedKey":"ZWs=","iv":"aXY="}`
	env, err := EncodeText("id-1", "alice", "bob", mediaJSON, "token", 1700000000)
	require.NoError(t, err)

	plaintext, err := DecodePayload(env)
	require.NoError(t, err)

	media, ok := ReclassifyMedia(plaintext)
	require.True(t, ok)
	assert.Equal(t, "m-1", media.MediaID)
}
