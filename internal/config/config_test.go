// Copyright 2025 James Ross
package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("WORKER_COUNT")
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Worker.Count)
	require.NotEmpty(t, cfg.Redis.Addr)
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Worker.Count = 0
	require.Error(t, Validate(cfg))

	cfg = defaultConfig()
	cfg.Worker.HeartbeatTTL = 3 * 1e9 // 3s
	require.Error(t, Validate(cfg))

	cfg = defaultConfig()
	cfg.Worker.PopTimeout = 0
	require.Error(t, Validate(cfg))

	cfg = defaultConfig()
	cfg.Providers = []ProviderSpec{{Name: "sf", Kind: "SALESFORCE", AuthType: "BOGUS"}}
	require.Error(t, Validate(cfg))
}

func TestProviderSpecToProviderConfigVariants(t *testing.T) {
	oauth := ProviderSpec{Name: "sf", Kind: "SALESFORCE", AuthType: "OAUTH2", TokenURL: "https://x/token", ClientID: "id", ClientSecret: "secret"}
	pc, err := oauth.ToProviderConfig()
	require.NoError(t, err)
	require.Equal(t, "sf", pc.Name)

	apiKey := ProviderSpec{Name: "hs", Kind: "HUBSPOT", AuthType: "API_KEY", APIKey: "k"}
	_, err = apiKey.ToProviderConfig()
	require.NoError(t, err)

	basic := ProviderSpec{Name: "custom", Kind: "CUSTOM", AuthType: "BASIC", Username: "u", Password: "p"}
	_, err = basic.ToProviderConfig()
	require.NoError(t, err)

	bogus := ProviderSpec{Name: "bad", Kind: "CUSTOM", AuthType: "NOPE"}
	_, err = bogus.ToProviderConfig()
	require.Error(t, err)
}

func TestProviderConfigsPropagatesError(t *testing.T) {
	cfg := defaultConfig()
	cfg.Providers = []ProviderSpec{{Name: "bad", Kind: "CUSTOM", AuthType: "NOPE"}}
	_, err := cfg.ProviderConfigs()
	require.Error(t, err)
}
