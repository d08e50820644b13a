package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Sign computes the HMAC-SHA256 signature of message keyed by the UTF-8
// bytes of secret (the session bearer token) and returns it base64-encoded.
// The same inputs always produce the same signature.
func Sign(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// EncodeBase64 encodes raw bytes for envelope transport.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes an envelope field back to raw bytes.
func DecodeBase64(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &CryptoError{Op: "decode", Err: err}
	}
	return data, nil
}
