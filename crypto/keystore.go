package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the key derivation work factor.
	PBKDF2Iterations = 100000
	// SaltSize is the size of the PBKDF2 salt in bytes.
	SaltSize = 32

	nonceSize = 24
)

// ErrKeyNotFound is returned when no cached key exists for a media id.
var ErrKeyNotFound = errors.New("key not found")

// Keystore caches per-media encryption keys encrypted at rest. Each key is
// sealed with NaCl secretbox under a key derived from the user passphrase,
// so a compromised filesystem does not expose message media keys.
type Keystore struct {
	sealKey [32]byte
	dataDir string
}

// NewKeystore opens (or initializes) a keystore rooted at dataDir. The salt
// is persisted next to the sealed keys so the same passphrase re-derives the
// same sealing key across sessions.
func NewKeystore(dataDir string, passphrase []byte) (*Keystore, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create keystore directory: %w", err)
	}

	ks := &Keystore{dataDir: dataDir}

	salt, err := ks.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	derived := pbkdf2.Key(passphrase, salt, PBKDF2Iterations, 32, sha256.New)
	copy(ks.sealKey[:], derived)
	for i := range derived {
		derived[i] = 0
	}

	return ks, nil
}

// StoreKey seals and persists the encryption key for a media id.
func (ks *Keystore) StoreKey(mediaID string, key []byte) error {
	if mediaID == "" {
		return errors.New("media id cannot be empty")
	}
	if len(key) == 0 {
		return errors.New("key cannot be empty")
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}

	sealed := secretbox.Seal(nonce[:], key, &nonce, &ks.sealKey)
	return os.WriteFile(ks.keyPath(mediaID), sealed, 0o600)
}

// LoadKey loads and unseals the encryption key for a media id.
func (ks *Keystore) LoadKey(mediaID string) ([]byte, error) {
	sealed, err := os.ReadFile(ks.keyPath(mediaID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	if len(sealed) < nonceSize {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("sealed key too short")}
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	key, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &ks.sealKey)
	if !ok {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("key unsealing failed")}
	}

	return key, nil
}

// DeleteKey removes the cached key for a media id. Deleting a key that does
// not exist is not an error.
func (ks *Keystore) DeleteKey(mediaID string) error {
	err := os.Remove(ks.keyPath(mediaID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (ks *Keystore) keyPath(mediaID string) string {
	// Media ids come off the wire; hash them so they cannot traverse paths.
	digest := sha256.Sum256([]byte(mediaID))
	return filepath.Join(ks.dataDir, fmt.Sprintf("%x.key", digest[:16]))
}

func (ks *Keystore) loadOrGenerateSalt() ([]byte, error) {
	saltFile := filepath.Join(ks.dataDir, ".salt")

	data, err := os.ReadFile(saltFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}

		salt := make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		if err := os.WriteFile(saltFile, salt, 0o600); err != nil {
			return nil, err
		}
		return salt, nil
	}

	if len(data) != SaltSize {
		return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), SaltSize)
	}

	return data, nil
}
