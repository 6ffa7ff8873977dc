// Copyright 2025 James Ross

// Package provider is the Provider Registry from spec §4.2/§6: an
// in-memory table of provider configuration (wire endpoint base, auth
// descriptor, rate budget, timeout, retry cap), generalized from the
// Python original's ProviderConfig/AuthConfig per § DESIGN NOTES'
// "Auth variants" instruction into a real tagged union instead of a
// single credentials dict.
package provider

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Kind selects the wire-protocol dialect that determines URL shapes
// and update verbs.
type Kind string

const (
	Salesforce Kind = "SALESFORCE"
	HubSpot    Kind = "HUBSPOT"
	Pipedrive  Kind = "PIPEDRIVE"
	Custom     Kind = "CUSTOM"
)

// ErrUnknownProvider is returned synchronously at submit time when an
// operation names a provider that was never registered.
var ErrUnknownProvider = errors.New("provider: unknown provider")

// AuthDescriptor is the tagged union from § DESIGN NOTES: each variant
// owns its own credential shape. The marker method is unexported so
// the set of implementations is closed to this package.
type AuthDescriptor interface {
	authKind() string
}

// OAuth2Credentials authenticates via client-credentials or
// refresh-token grant against TokenURL.
type OAuth2Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string // optional; when set, refresh-token grant is used instead of client-credentials
	Scopes       []string
}

func (OAuth2Credentials) authKind() string { return "OAUTH2" }

// APIKeyCredentials authenticates with a static key, formatted as a
// bearer token for Salesforce/HubSpot and as X-API-Key otherwise (see
// internal/dispatch).
type APIKeyCredentials struct {
	Key string
}

func (APIKeyCredentials) authKind() string { return "API_KEY" }

// BasicCredentials authenticates with HTTP Basic auth.
type BasicCredentials struct {
	Username string
	Password string
}

func (BasicCredentials) authKind() string { return "BASIC" }

// Config is a single provider's registered configuration.
type Config struct {
	Name           string
	Kind           Kind
	BaseURL        string
	RatePerMinute  float64
	BurstSize      float64
	RequestTimeout time.Duration
	MaxRetries     int
	Auth           AuthDescriptor
}

// Registry is the in-memory, exclusive-writer-discipline provider
// table: registration is serialized per process via the mutex, read
// access is concurrent.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Config
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Config)}
}

// Register is an idempotent upsert.
func (r *Registry) Register(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("provider: config.Name must not be empty")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[cfg.Name] = cfg
	return nil
}

// Deregister removes a provider from the table. It is a no-op if the
// provider was never registered.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, name)
}

// Lookup returns the registered config for name, or ErrUnknownProvider.
func (r *Registry) Lookup(name string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.providers[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return cfg, nil
}

// Names returns the currently registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	return names
}
