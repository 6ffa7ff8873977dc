// Copyright 2025 James Ross
package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/provider"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenExpiryBuffer is subtracted from an OAuth2 token's reported
// lifetime so the cached copy is treated as stale 5 minutes before
// the provider actually rejects it.
const tokenExpiryBuffer = 5 * time.Minute

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// tokenCache holds one cached OAuth2 access token per provider name.
type tokenCache struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
}

func newTokenCache() *tokenCache {
	return &tokenCache{tokens: make(map[string]cachedToken)}
}

func (c *tokenCache) invalidate(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, provider)
}

func (c *tokenCache) accessToken(ctx context.Context, cfg provider.Config, creds provider.OAuth2Credentials) (string, error) {
	c.mu.Lock()
	if cached, ok := c.tokens[cfg.Name]; ok && time.Now().Before(cached.expiresAt) {
		c.mu.Unlock()
		return cached.accessToken, nil
	}
	c.mu.Unlock()

	tok, err := fetchToken(ctx, creds)
	if err != nil {
		return "", err
	}

	lifetime := time.Until(tok.Expiry)
	expiresAt := time.Now()
	if lifetime > tokenExpiryBuffer {
		expiresAt = time.Now().Add(lifetime - tokenExpiryBuffer)
	}

	c.mu.Lock()
	c.tokens[cfg.Name] = cachedToken{accessToken: tok.AccessToken, expiresAt: expiresAt}
	c.mu.Unlock()
	return tok.AccessToken, nil
}

func fetchToken(ctx context.Context, creds provider.OAuth2Credentials) (*oauth2.Token, error) {
	if creds.RefreshToken != "" {
		src := (&oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: creds.TokenURL},
			Scopes:       creds.Scopes,
		}).TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
		return src.Token()
	}
	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		Scopes:       creds.Scopes,
	}
	return cc.Token(ctx)
}

// authHeaders builds the HTTP headers for a single dispatch attempt.
// forceRefresh discards any cached OAuth2 token before fetching a new
// one, used for the one-shot reactive re-auth on a 401 response.
func (c *Client) authHeaders(ctx context.Context, cfg provider.Config, forceRefresh bool) (map[string]string, error) {
	switch a := cfg.Auth.(type) {
	case provider.OAuth2Credentials:
		if forceRefresh {
			c.tokens.invalidate(cfg.Name)
		}
		tok, err := c.tokens.accessToken(ctx, cfg, a)
		if err != nil {
			return nil, &AuthenticationError{Provider: cfg.Name, Err: err}
		}
		return map[string]string{"Authorization": "Bearer " + tok}, nil
	case provider.APIKeyCredentials:
		if cfg.Kind == provider.Salesforce || cfg.Kind == provider.HubSpot {
			return map[string]string{"Authorization": "Bearer " + a.Key}, nil
		}
		return map[string]string{"X-API-Key": a.Key}, nil
	case provider.BasicCredentials:
		raw := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
		return map[string]string{"Authorization": "Basic " + raw}, nil
	default:
		return nil, fmt.Errorf("dispatch: %s has no recognized auth descriptor", cfg.Name)
	}
}
