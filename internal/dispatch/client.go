// Copyright 2025 James Ross

// Package dispatch is the Dispatch Client from spec §4.4: it turns a
// sync operation into an outbound HTTP call against the operation's
// provider, gated by the provider's rate limiter and circuit breaker,
// with the shared retry envelope and reactive re-auth on 401.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flyingrobots/go-redis-work-queue/internal/breaker"
	"github.com/flyingrobots/go-redis-work-queue/internal/obs"
	"github.com/flyingrobots/go-redis-work-queue/internal/operation"
	"github.com/flyingrobots/go-redis-work-queue/internal/provider"
	"github.com/flyingrobots/go-redis-work-queue/internal/ratelimit"
	"github.com/flyingrobots/go-redis-work-queue/internal/transform"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// BreakerConfig parameterizes the per-provider circuit breaker. It is
// shared across every provider registered with this client.
type BreakerConfig struct {
	Window           time.Duration
	Cooldown         time.Duration
	FailureThreshold float64
	MinSamples       int
}

// DefaultBreakerConfig matches the teacher's circuit breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Window: 60 * time.Second, Cooldown: 30 * time.Second, FailureThreshold: 0.5, MinSamples: 5}
}

// Client dispatches operations to third-party providers.
type Client struct {
	http        *resty.Client
	registry    *provider.Registry
	limiter     *ratelimit.Manager
	transformer *transform.Registry
	log         *zap.Logger
	tokens      *tokenCache
	breakerCfg  BreakerConfig

	breakersMu sync.Mutex
	breakers   map[string]*breaker.CircuitBreaker
}

// New builds a Client. registry, limiter and transformer are shared
// with the rest of the engine so registration and rate-limit state
// stay consistent.
func New(registry *provider.Registry, limiter *ratelimit.Manager, transformer *transform.Registry, log *zap.Logger, breakerCfg BreakerConfig) *Client {
	return &Client{
		http:        resty.New(),
		registry:    registry,
		limiter:     limiter,
		transformer: transformer,
		log:         log,
		tokens:      newTokenCache(),
		breakerCfg:  breakerCfg,
		breakers:    make(map[string]*breaker.CircuitBreaker),
	}
}

func (c *Client) breakerFor(name string) *breaker.CircuitBreaker {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()
	cb, ok := c.breakers[name]
	if !ok {
		cb = breaker.New(c.breakerCfg.Window, c.breakerCfg.Cooldown, c.breakerCfg.FailureThreshold, c.breakerCfg.MinSamples)
		c.breakers[name] = cb
	}
	return cb
}

// BreakerState reports the current circuit breaker state for a
// provider, for the provider_status query surface. Providers never
// dispatched to report breaker.Closed.
func (c *Client) BreakerState(name string) breaker.State {
	return c.breakerFor(name).State()
}

// Dispatch performs a single outbound call for op and returns the
// decoded response body (an empty map when the response has no body,
// e.g. DELETE) plus the provider-assigned external ID for CREATE.
func (c *Client) Dispatch(ctx context.Context, op operation.Operation) (map[string]any, string, error) {
	cfg, err := c.registry.Lookup(op.Provider)
	if err != nil {
		return nil, "", err
	}

	if op.RecordID == "" && op.Kind != operation.Create {
		return nil, "", &MissingRecordIDError{Provider: cfg.Name, Kind: op.Kind}
	}

	cb := c.breakerFor(cfg.Name)
	if !cb.Allow() {
		return nil, "", &CircuitOpenError{Provider: cfg.Name}
	}

	ok, err := c.limiter.TryAcquire(ctx, cfg.Name, 1)
	if err != nil {
		return nil, "", fmt.Errorf("dispatch: rate limit check for %s: %w", cfg.Name, err)
	}
	if bs, _, statusErr := c.limiter.Status(ctx, cfg.Name); statusErr == nil {
		obs.RateLimitUtilization.WithLabelValues(cfg.Name).Set(bs.Utilization)
	}
	if !ok {
		return nil, "", &RateLimitedError{Provider: cfg.Name}
	}

	var body map[string]any
	if op.Kind == operation.Create || op.Kind == operation.Update {
		body, err = c.transformer.Transform(c.log, op.Record, transform.DefaultMappings(cfg.Kind), transform.InternalToExternal)
		if err != nil {
			cb.Record(false)
			return nil, "", err
		}
	}

	method, path := endpointFor(cfg.Kind, op.Kind, op.RecordID)
	url := strings.TrimRight(cfg.BaseURL, "/") + path

	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	ctx, span := obs.StartDispatchSpan(ctx, cfg.Name, method, url)
	defer span.End()

	result, err := c.doRequestWithReauth(ctx, cfg, method, url, body, false)
	beforeState := cb.State()
	cb.Record(err == nil)
	afterState := cb.State()
	obs.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(afterState))
	if beforeState != breaker.Open && afterState == breaker.Open {
		obs.CircuitBreakerTrips.WithLabelValues(cfg.Name).Inc()
	}
	if err != nil {
		obs.RecordError(ctx, err)
		return nil, "", err
	}
	obs.SetSpanSuccess(ctx)

	externalID := ""
	if op.Kind == operation.Create {
		if id, ok := result["id"]; ok {
			externalID = fmt.Sprint(id)
		}
	}
	return result, externalID, nil
}

func (c *Client) doRequestWithReauth(ctx context.Context, cfg provider.Config, method, url string, body map[string]any, reauthed bool) (map[string]any, error) {
	headers, err := c.authHeaders(ctx, cfg, reauthed)
	if err != nil {
		return nil, err
	}

	req := c.http.R().SetContext(ctx).SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := c.executeWithRetry(ctx, req, method, url)
	if err != nil {
		return nil, fmt.Errorf("dispatch: transport error calling %s: %w", cfg.Name, err)
	}

	switch {
	case resp.StatusCode() == 429:
		return nil, &RateLimitedError{Provider: cfg.Name}
	case resp.StatusCode() == 401:
		if reauthed {
			return nil, &AuthenticationError{Provider: cfg.Name, Err: fmt.Errorf("rejected after re-authentication")}
		}
		return c.doRequestWithReauth(ctx, cfg, method, url, body, true)
	case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
		return decodeResponse(resp)
	default:
		return nil, &APIError{Provider: cfg.Name, StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}
}

// executeWithRetry retries only transport-level failures (connection
// refused, timeout); once a response is received — even a non-2xx
// one — retrying stops and the caller interprets the status.
func (c *Client) executeWithRetry(ctx context.Context, req *resty.Request, method, url string) (*resty.Response, error) {
	bo := backoff.WithContext(newAPIRetryBackOff(), ctx)
	var resp *resty.Response
	op := func() error {
		var err error
		resp, err = req.Execute(method, url)
		return err
	}
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return resp, nil
}

func decodeResponse(resp *resty.Response) (map[string]any, error) {
	if len(resp.Body()) == 0 {
		return map[string]any{}, nil
	}
	contentType := resp.Header().Get("Content-Type")
	if !strings.Contains(contentType, "json") {
		return map[string]any{"status": "success", "data": string(resp.Body())}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return map[string]any{"status": "success", "data": string(resp.Body())}, nil
	}
	return out, nil
}
