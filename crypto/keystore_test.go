package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeystoreStoreLoadRoundTrip(t *testing.T) {
	ks, err := NewKeystore(t.TempDir(), []byte("passphrase"))
	require.NoError(t, err)

	key, _ := GenerateKey()
	require.NoError(t, ks.StoreKey("media-123", key))

	loaded, err := ks.LoadKey("media-123")
	require.NoError(t, err)
	assert.Equal(t, key, loaded)
}

func TestKeystoreMissingKey(t *testing.T) {
	ks, err := NewKeystore(t.TempDir(), []byte("passphrase"))
	require.NoError(t, err)

	_, err = ks.LoadKey("absent")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestKeystorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	ks, err := NewKeystore(dir, []byte("passphrase"))
	require.NoError(t, err)
	key, _ := GenerateKey()
	require.NoError(t, ks.StoreKey("media-xyz", key))

	reopened, err := NewKeystore(dir, []byte("passphrase"))
	require.NoError(t, err)
	loaded, err := reopened.LoadKey("media-xyz")
	require.NoError(t, err)
	assert.Equal(t, key, loaded)
}

func TestKeystoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()

	ks, err := NewKeystore(dir, []byte("passphrase"))
	require.NoError(t, err)
	key, _ := GenerateKey()
	require.NoError(t, ks.StoreKey("media-xyz", key))

	wrong, err := NewKeystore(dir, []byte("other"))
	require.NoError(t, err)
	_, err = wrong.LoadKey("media-xyz")
	assert.Error(t, err)
}

func TestKeystoreDeleteKey(t *testing.T) {
	ks, err := NewKeystore(t.TempDir(), []byte("passphrase"))
	require.NoError(t, err)

	key, _ := GenerateKey()
	require.NoError(t, ks.StoreKey("media-123", key))
	require.NoError(t, ks.DeleteKey("media-123"))

	_, err = ks.LoadKey("media-123")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, ks.DeleteKey("media-123"))
}

func TestKeystoreRejectsEmptyPassphrase(t *testing.T) {
	_, err := NewKeystore(t.TempDir(), nil)
	assert.Error(t, err)
}
