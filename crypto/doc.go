// Package crypto implements the cryptographic primitives of the hushwire
// message protocol.
//
// The wire protocol encrypts each message payload with a fresh AES-256 key
// and IV in CBC mode with PKCS#7 padding, and authenticates the envelope by
// signing a canonical pipe-delimited string with HMAC-SHA256 keyed by the
// session bearer token. This package provides those primitives plus the
// base64 codecs used throughout the envelope format:
//
//	key, _ := crypto.GenerateKey()
//	iv, _ := crypto.GenerateIV()
//	ciphertext, _ := crypto.Encrypt(plaintext, key, iv)
//	plaintext, _ = crypto.Decrypt(ciphertext, key, iv)
//	signature := crypto.Sign(canonicalString, bearerToken)
//
// All operations are pure and side-effect-free. Decryption failures are
// reported as a *CryptoError so callers can degrade to a placeholder value
// instead of dropping the connection.
//
// The package also provides a Keystore for caching media encryption keys
// encrypted at rest under a passphrase-derived key.
package crypto
