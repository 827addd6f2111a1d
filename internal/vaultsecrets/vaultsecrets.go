// Package vaultsecrets resolves exchange API credentials, optionally
// through HashiCorp Vault, falling back to config/env-supplied values.
package vaultsecrets

import (
	"context"
	"fmt"
	"sync"

	vaultapi "github.com/hashicorp/vault/api"

	"zonechain-engine/internal/exchange"
	"zonechain-engine/internal/logging"
)

// ErrKind names secrets-provider failure modes.
type ErrKind string

// SecretsUnavailable is raised at construction time when Vault is enabled
// but no client can be built from its configuration (e.g. a malformed
// address). New makes no network call, so an unreachable Vault is not
// detected here; Resolve falls back to the static credentials instead.
const SecretsUnavailable ErrKind = "SecretsUnavailable"

// Error wraps a secrets-resolution failure.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("vaultsecrets: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Config selects Vault-backed resolution and, when disabled, the static
// fallback credentials read from config/env.
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	SecretPath string

	FallbackAPIKey    string
	FallbackSecretKey string
}

// Provider resolves exchange credentials once and caches them in memory for
// the process lifetime, consistent with the chain's own volatile,
// single-process lifecycle; rotation happens by restarting the process.
type Provider struct {
	cfg    Config
	client *vaultapi.Client

	mu    sync.Mutex
	cache *exchange.Credentials
}

// New constructs a Provider. When cfg.Enabled, it eagerly builds a Vault API
// client (no network call yet) so construction-time misconfiguration
// (bad address) surfaces immediately rather than on first Resolve.
func New(cfg Config) (*Provider, error) {
	p := &Provider{cfg: cfg}
	if !cfg.Enabled {
		return p, nil
	}

	vcfg := vaultapi.DefaultConfig()
	vcfg.Address = cfg.Address
	client, err := vaultapi.NewClient(vcfg)
	if err != nil {
		return nil, &Error{Kind: SecretsUnavailable, Err: err}
	}
	client.SetToken(cfg.Token)
	p.client = client
	return p, nil
}

// Resolve returns the exchange credentials, reading from Vault's KV v2 mount
// on first call and caching thereafter. On any Vault error it falls back to
// the configured static credentials rather than failing the request; Vault
// unavailability after startup degrades rather than blocks the scheduler.
func (p *Provider) Resolve(ctx context.Context) (exchange.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache != nil {
		return *p.cache, nil
	}

	if !p.cfg.Enabled {
		creds := exchange.Credentials{APIKey: p.cfg.FallbackAPIKey, SecretKey: p.cfg.FallbackSecretKey}
		p.cache = &creds
		return creds, nil
	}

	secret, err := p.client.KVv2(p.cfg.MountPath).Get(ctx, p.cfg.SecretPath)
	if err != nil {
		logging.Default().WithComponent("vaultsecrets").WithError(err).Warn("vault read failed, falling back to configured credentials")
		creds := exchange.Credentials{APIKey: p.cfg.FallbackAPIKey, SecretKey: p.cfg.FallbackSecretKey}
		p.cache = &creds
		return creds, nil
	}

	apiKey, _ := secret.Data["api_key"].(string)
	secretKey, _ := secret.Data["secret_key"].(string)
	if apiKey == "" || secretKey == "" {
		logging.Default().WithComponent("vaultsecrets").Warn("vault secret missing api_key/secret_key, falling back")
		creds := exchange.Credentials{APIKey: p.cfg.FallbackAPIKey, SecretKey: p.cfg.FallbackSecretKey}
		p.cache = &creds
		return creds, nil
	}

	creds := exchange.Credentials{APIKey: apiKey, SecretKey: secretKey}
	p.cache = &creds
	return creds, nil
}
