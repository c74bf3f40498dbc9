// Package crypto implements encrypt-on-write storage for fingerprint
// templates: an AES-256-GCM cipher versioned by key id, with keys served
// either from static configuration or from HashiCorp Vault.
package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/hashicorp/vault/api"
	gocache "github.com/patrickmn/go-cache"

	"github.com/presentio/presentio/internal/config"
	"github.com/presentio/presentio/pkg/constants"
	"github.com/presentio/presentio/pkg/errors"
	"github.com/presentio/presentio/pkg/logger"
)

const keySize = 32 // AES-256

// KeyProvider serves versioned AES keys. ActiveKeyID names the version used
// for new encryptions; KeyByID must keep serving retired versions so old
// ciphertext stays readable after rotation.
type KeyProvider interface {
	ActiveKeyID() string
	KeyByID(ctx context.Context, keyID string) ([]byte, error)
}

// ================================================================================
// Static Provider
// ================================================================================

// StaticKeyProvider serves keys from configuration. Used in dev and test
// deployments where Vault is disabled.
type StaticKeyProvider struct {
	keys     map[string][]byte
	activeID string
}

// NewStaticKeyProvider decodes the configured base64 key map.
func NewStaticKeyProvider(cfg *config.VaultConfig) (*StaticKeyProvider, error) {
	keys := make(map[string][]byte, len(cfg.StaticKeys))
	for id, encoded := range cfg.StaticKeys {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("static key %s: %w", id, err)
		}
		if len(raw) != keySize {
			return nil, fmt.Errorf("static key %s: need %d bytes, got %d", id, keySize, len(raw))
		}
		keys[id] = raw
	}
	if _, ok := keys[cfg.ActiveKeyID]; !ok {
		return nil, fmt.Errorf("active key %s not present in static_keys", cfg.ActiveKeyID)
	}
	return &StaticKeyProvider{keys: keys, activeID: cfg.ActiveKeyID}, nil
}

// ActiveKeyID returns the configured active key version.
func (p *StaticKeyProvider) ActiveKeyID() string { return p.activeID }

// KeyByID returns the key material for a version.
func (p *StaticKeyProvider) KeyByID(_ context.Context, keyID string) ([]byte, error) {
	key, ok := p.keys[keyID]
	if !ok {
		return nil, errors.ErrTemplateUnreadable(fmt.Sprintf("unknown key version %s", keyID))
	}
	return key, nil
}

// ================================================================================
// Vault Provider
// ================================================================================

// VaultKeyProvider serves keys from a Vault KV v2 mount. Fetched key material
// is held in a short-lived local cache so decrypt-heavy paths do not hammer
// Vault.
type VaultKeyProvider struct {
	client    *api.Client
	mountPath string
	activeID  string
	cache     *gocache.Cache
	log       logger.Logger
}

// NewVaultKeyProvider connects to Vault and verifies the active key exists.
func NewVaultKeyProvider(cfg *config.VaultConfig, log logger.Logger) (*VaultKeyProvider, error) {
	vaultCfg := api.DefaultConfig()
	vaultCfg.Address = cfg.Address
	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	p := &VaultKeyProvider{
		client:    client,
		mountPath: cfg.MountPath,
		activeID:  cfg.ActiveKeyID,
		cache:     gocache.New(5*time.Minute, 10*time.Minute),
		log:       log.WithComponent("vault_keys"),
	}
	if _, err := p.KeyByID(context.Background(), cfg.ActiveKeyID); err != nil {
		return nil, fmt.Errorf("active key %s: %w", cfg.ActiveKeyID, err)
	}
	return p, nil
}

// ActiveKeyID returns the configured active key version.
func (p *VaultKeyProvider) ActiveKeyID() string { return p.activeID }

// KeyByID fetches the key material for a version, consulting the local cache
// first. Keys are stored at <mount>/data/template-keys/<id> under the field
// "key", base64 encoded.
func (p *VaultKeyProvider) KeyByID(ctx context.Context, keyID string) ([]byte, error) {
	if cached, ok := p.cache.Get(keyID); ok {
		return cached.([]byte), nil
	}

	path := fmt.Sprintf("%s/data/template-keys/%s", p.mountPath, keyID)
	secret, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to read key from vault")
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.ErrTemplateUnreadable(fmt.Sprintf("unknown key version %s", keyID))
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, errors.ErrInternal(fmt.Sprintf("malformed vault secret at %s", path))
	}
	encoded, ok := data["key"].(string)
	if !ok {
		return nil, errors.ErrInternal(fmt.Sprintf("vault secret %s has no key field", path))
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to decode vault key material")
	}
	if len(raw) != keySize {
		return nil, errors.ErrInternal(fmt.Sprintf("vault key %s has wrong size %d", keyID, len(raw)))
	}

	p.cache.Set(keyID, raw, gocache.DefaultExpiration)
	p.log.Debug(ctx, "key material fetched from vault", logger.String("key_id", keyID))
	return raw, nil
}
