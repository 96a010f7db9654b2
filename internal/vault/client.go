// Package vault stores service credentials (the analysis producer API key,
// exchange keys for the candle feed) in HashiCorp Vault. When Vault is
// disabled the client degrades to an in-memory map so local development
// needs no Vault instance.
package vault

import (
	"context"
	"fmt"
	"sync"

	"chart-advisor/config"

	"github.com/hashicorp/vault/api"
)

// Credential is one named secret stored for a downstream service.
type Credential struct {
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
	// Secret carries an optional second factor (exchange secret key etc).
	Secret string `json:"secret,omitempty"`
}

// Client wraps the HashiCorp Vault client with a read-through cache.
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cache  map[string]*Credential
}

// NewClient creates a Vault client. With cfg.Enabled false the client is
// cache-only.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]*Credential),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]*Credential),
	}, nil
}

// StoreCredential writes a named credential.
func (c *Client) StoreCredential(ctx context.Context, cred Credential) error {
	if cred.Name == "" {
		return fmt.Errorf("credential name is required")
	}

	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[cred.Name] = &cred
		c.mu.Unlock()
		return nil
	}

	path := c.secretPath(cred.Name)
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"name":    cred.Name,
			"api_key": cred.APIKey,
			"secret":  cred.Secret,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		return fmt.Errorf("failed to store credential %s in vault: %w", cred.Name, err)
	}

	c.mu.Lock()
	c.cache[cred.Name] = &cred
	c.mu.Unlock()
	return nil
}

// GetCredential reads a named credential, cache first.
func (c *Client) GetCredential(ctx context.Context, name string) (*Credential, error) {
	c.mu.RLock()
	if cached, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("credential %s not found and vault is disabled", name)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read credential %s from vault: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credential %s not found", name)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format for %s", name)
	}

	cred := &Credential{
		Name:   getString(data, "name"),
		APIKey: getString(data, "api_key"),
		Secret: getString(data, "secret"),
	}

	c.mu.Lock()
	c.cache[name] = cred
	c.mu.Unlock()
	return cred, nil
}

// DeleteCredential removes a named credential.
func (c *Client) DeleteCredential(ctx context.Context, name string) error {
	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(name)); err != nil {
		return fmt.Errorf("failed to delete credential %s from vault: %w", name, err)
	}
	return nil
}

// ClearCache clears the in-memory cache.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*Credential)
	c.mu.Unlock()
}

func (c *Client) secretPath(name string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, name)
}

func (c *Client) metadataPath(name string) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, name)
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
