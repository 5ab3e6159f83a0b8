package secure

import (
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestBoxRoundTrip(t *testing.T) {
	box, err := NewBox(testKey(t))
	require.NoError(t, err)

	for _, plaintext := range []string{"", "x", "hello world", string(make([]byte, 4096))} {
		sealed, err := box.SealString(plaintext)
		require.NoError(t, err)

		opened, err := box.OpenString(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestBoxRejectsBadKeySize(t *testing.T) {
	_, err := NewBox(make([]byte, 16))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeySize))
}

func TestBoxRejectsShortCiphertext(t *testing.T) {
	box, err := NewBox(testKey(t))
	require.NoError(t, err)

	_, err = box.Open([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCiphertextShort))
}

func TestBoxDetectsTampering(t *testing.T) {
	box, err := NewBox(testKey(t))
	require.NoError(t, err)

	sealed, err := box.Seal([]byte("sensitive payload"))
	require.NoError(t, err)

	for i := range sealed {
		tampered := make([]byte, len(sealed))
		copy(tampered, sealed)
		tampered[i] ^= 0x01

		_, err := box.Open(tampered)
		assert.Truef(t, errors.Is(err, ErrDecrypt), "flip at byte %d must fail authentication", i)
	}
}

func TestBoxWrongKeyFails(t *testing.T) {
	box1, err := NewBox(testKey(t))
	require.NoError(t, err)
	box2, err := NewBox(testKey(t))
	require.NoError(t, err)

	sealed, err := box1.Seal([]byte("payload"))
	require.NoError(t, err)

	_, err = box2.Open(sealed)
	assert.True(t, errors.Is(err, ErrDecrypt))
}

func TestDeriveKeyDeterministic(t *testing.T) {
	k1 := DeriveKey("salt-a", "HW-1")
	k2 := DeriveKey("salt-a", "HW-1")
	k3 := DeriveKey("salt-b", "HW-1")
	k4 := DeriveKey("salt-a", "HW-2")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
	assert.Len(t, k1, KeySize)
}

func TestStorageKeyKindsDiffer(t *testing.T) {
	lic, err := StorageKey(KindLicense, "HW-1")
	require.NoError(t, err)
	cache, err := StorageKey(KindCache, "HW-1")
	require.NoError(t, err)
	assert.NotEqual(t, lic, cache)
	assert.Regexp(t, "^[0-9a-f]{64}$", lic)

	_, err = StorageKey("bogus", "HW-1")
	assert.Error(t, err)
}
