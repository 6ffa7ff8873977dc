// Copyright 2025 James Ross
package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Config{
		Name:           "sf",
		Kind:           Salesforce,
		BaseURL:        "https://example.my.salesforce.com",
		RatePerMinute:  6000,
		BurstSize:      10,
		RequestTimeout: 5 * time.Second,
		Auth:           APIKeyCredentials{Key: "k"},
	}))

	cfg, err := r.Lookup("sf")
	require.NoError(t, err)
	assert.Equal(t, Salesforce, cfg.Kind)
	assert.Equal(t, 3, cfg.MaxRetries, "zero MaxRetries should default to 3")
}

func TestLookupUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestDeregisterRemovesProvider(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Config{Name: "sf", Kind: Salesforce}))
	r.Deregister("sf")
	_, err := r.Lookup("sf")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Config{Name: ""})
	require.Error(t, err)
}

func TestAuthDescriptorVariantsAreDistinctTypes(t *testing.T) {
	var a AuthDescriptor = OAuth2Credentials{TokenURL: "https://auth"}
	var b AuthDescriptor = APIKeyCredentials{Key: "x"}
	var c AuthDescriptor = BasicCredentials{Username: "u", Password: "p"}
	assert.NotEqual(t, a, AuthDescriptor(b))
	assert.NotEqual(t, b, AuthDescriptor(c))
}

func TestNamesListsRegisteredProviders(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Config{Name: "sf", Kind: Salesforce}))
	require.NoError(t, r.Register(Config{Name: "hs", Kind: HubSpot}))
	assert.ElementsMatch(t, []string{"sf", "hs"}, r.Names())
}
