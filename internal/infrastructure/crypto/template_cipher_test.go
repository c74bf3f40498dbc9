package crypto

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

func testKey(seed byte) string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func newTestCipher(t *testing.T, activeKeyID string, keys map[string]string) *TemplateCipherImpl {
	t.Helper()
	provider, err := NewStaticKeyProvider(&config.VaultConfig{
		StaticKeys:  keys,
		ActiveKeyID: activeKeyID,
	})
	require.NoError(t, err)
	return NewTemplateCipher(provider, logger.NewNoopLogger()).(*TemplateCipherImpl)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t, "v1", map[string]string{"v1": testKey(1)})
	raw := []byte("ANSI-378 template payload")

	ciphertext, keyID, err := c.Encrypt(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "v1", keyID)
	assert.NotEqual(t, raw, ciphertext)

	out, err := c.Decrypt(context.Background(), ciphertext, keyID)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	c := newTestCipher(t, "v1", map[string]string{"v1": testKey(1)})
	raw := []byte("same plaintext")

	a, _, err := c.Encrypt(context.Background(), raw)
	require.NoError(t, err)
	b, _, err := c.Encrypt(context.Background(), raw)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptAfterKeyRotation(t *testing.T) {
	keys := map[string]string{"v1": testKey(1), "v2": testKey(2)}

	old := newTestCipher(t, "v1", keys)
	ciphertext, keyID, err := old.Encrypt(context.Background(), []byte("enrolled before rotation"))
	require.NoError(t, err)
	require.Equal(t, "v1", keyID)

	// After rotation new writes use v2, but v1 ciphertext stays readable
	// through its recorded key id.
	rotated := newTestCipher(t, "v2", keys)
	out, err := rotated.Decrypt(context.Background(), ciphertext, keyID)
	require.NoError(t, err)
	assert.Equal(t, []byte("enrolled before rotation"), out)

	_, newKeyID, err := rotated.Encrypt(context.Background(), []byte("fresh"))
	require.NoError(t, err)
	assert.Equal(t, "v2", newKeyID)
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	c := newTestCipher(t, "v1", map[string]string{"v1": testKey(1)})
	ciphertext, keyID, err := c.Encrypt(context.Background(), []byte("payload"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = c.Decrypt(context.Background(), ciphertext, keyID)
	assert.True(t, errors.IsCode(err, constants.ErrCodeTemplateUnreadable))
}

func TestDecryptTruncatedCiphertext(t *testing.T) {
	c := newTestCipher(t, "v1", map[string]string{"v1": testKey(1)})
	_, err := c.Decrypt(context.Background(), []byte{0x01, 0x02}, "v1")
	assert.True(t, errors.IsCode(err, constants.ErrCodeTemplateUnreadable))
}

func TestDecryptUnknownKeyVersion(t *testing.T) {
	c := newTestCipher(t, "v1", map[string]string{"v1": testKey(1)})
	ciphertext, _, err := c.Encrypt(context.Background(), []byte("payload"))
	require.NoError(t, err)

	_, err = c.Decrypt(context.Background(), ciphertext, "v9")
	assert.True(t, errors.IsCode(err, constants.ErrCodeTemplateUnreadable))
}

func TestDecryptWrongKey(t *testing.T) {
	keys := map[string]string{"v1": testKey(1), "v2": testKey(9)}
	c := newTestCipher(t, "v1", keys)
	ciphertext, _, err := c.Encrypt(context.Background(), []byte("payload"))
	require.NoError(t, err)

	// Lying about the key version must not decrypt.
	_, err = c.Decrypt(context.Background(), ciphertext, "v2")
	assert.True(t, errors.IsCode(err, constants.ErrCodeTemplateUnreadable))
}

func TestStaticKeyProviderValidation(t *testing.T) {
	_, err := NewStaticKeyProvider(&config.VaultConfig{
		StaticKeys:  map[string]string{"v1": "not base64!!"},
		ActiveKeyID: "v1",
	})
	assert.Error(t, err)

	_, err = NewStaticKeyProvider(&config.VaultConfig{
		StaticKeys:  map[string]string{"v1": base64.StdEncoding.EncodeToString([]byte("short"))},
		ActiveKeyID: "v1",
	})
	assert.Error(t, err)

	_, err = NewStaticKeyProvider(&config.VaultConfig{
		StaticKeys:  map[string]string{"v1": testKey(1)},
		ActiveKeyID: "v2",
	})
	assert.Error(t, err)
}
