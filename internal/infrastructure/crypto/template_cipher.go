package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/presentio/presentio/internal/domain/service"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

// TemplateCipherImpl seals template bytes with AES-256-GCM. The nonce is
// prepended to the ciphertext; the key version used is returned to the caller
// and stored alongside the record, never inside it.
type TemplateCipherImpl struct {
	keys KeyProvider
	log  logger.Logger
}

// NewTemplateCipher creates the cipher over a key provider.
func NewTemplateCipher(keys KeyProvider, log logger.Logger) service.TemplateCipher {
	return &TemplateCipherImpl{keys: keys, log: log.WithComponent("template_cipher")}
}

// Encrypt seals raw template bytes under the active key version.
func (c *TemplateCipherImpl) Encrypt(ctx context.Context, raw []byte) ([]byte, string, error) {
	keyID := c.keys.ActiveKeyID()
	gcm, err := c.gcmFor(ctx, keyID)
	if err != nil {
		return nil, "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, "", errors.Wrap(err, constants.ErrCodeInternal, "failed to generate nonce")
	}

	sealed := gcm.Seal(nonce, nonce, raw, nil)
	return sealed, keyID, nil
}

// Decrypt opens ciphertext sealed under the given key version. Truncated or
// tampered input surfaces as a TemplateUnreadable error, not a panic.
func (c *TemplateCipherImpl) Decrypt(ctx context.Context, ciphertext []byte, keyID string) ([]byte, error) {
	gcm, err := c.gcmFor(ctx, keyID)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.ErrTemplateUnreadable("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]

	raw, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		c.log.Warn(ctx, "template decryption failed",
			logger.String("key_id", keyID),
			logger.String("error", err.Error()),
		)
		return nil, errors.ErrTemplateUnreadable(fmt.Sprintf("decryption with key %s failed", keyID)).WithCause(err)
	}
	return raw, nil
}

func (c *TemplateCipherImpl) gcmFor(ctx context.Context, keyID string) (cipher.AEAD, error) {
	key, err := c.keys.KeyByID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to initialise cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to initialise gcm")
	}
	return gcm, nil
}
