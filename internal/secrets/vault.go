// Package secrets resolves sensitive values, primarily the AI API
// key, from HashiCorp Vault with an environment fallback for local
// development.
package secrets

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/vault/api"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/logging"
)

// aiKeyField is the field name inside the Vault secret.
const aiKeyField = "ai_api_key"

// Resolver fetches secrets for the engine's collaborators.
type Resolver struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cache  map[string]string
	log    *logging.Logger
}

// NewResolver creates a resolver. When Vault is disabled every lookup
// falls through to the environment.
func NewResolver(cfg config.VaultConfig, log *logging.Logger) (*Resolver, error) {
	r := &Resolver{
		config: cfg,
		cache:  make(map[string]string),
		log:    log.WithComponent("secrets"),
	}
	if !cfg.Enabled {
		return r, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address
	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configure vault TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	r.client = client
	r.log.Info("vault resolver ready", "address", cfg.Address)
	return r, nil
}

// AIAPIKey resolves the AI validator's API key: Vault when enabled,
// the AI_API_KEY environment variable otherwise.
func (r *Resolver) AIAPIKey(ctx context.Context) (string, error) {
	if !r.config.Enabled {
		return os.Getenv("AI_API_KEY"), nil
	}

	r.mu.RLock()
	if v, ok := r.cache[aiKeyField]; ok {
		r.mu.RUnlock()
		return v, nil
	}
	r.mu.RUnlock()

	secret, err := r.client.KVv2(r.config.MountPath).Get(ctx, r.config.SecretPath)
	if err != nil {
		return "", fmt.Errorf("read vault secret %s/%s: %w", r.config.MountPath, r.config.SecretPath, err)
	}
	raw, ok := secret.Data[aiKeyField]
	if !ok {
		return "", fmt.Errorf("secret %s/%s has no %q field", r.config.MountPath, r.config.SecretPath, aiKeyField)
	}
	key, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secret field %q is not a string", aiKeyField)
	}

	r.mu.Lock()
	r.cache[aiKeyField] = key
	r.mu.Unlock()
	return key, nil
}

// ClearCache drops cached secrets, forcing fresh Vault reads.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]string)
}
