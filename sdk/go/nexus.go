package nexus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds the configuration for the Nexus client.
type Config struct {
	// BaseURL is the root URL of the Nexus Optimizer server.
	// Examples: "https://nexus.example.com" or "https://nexus.example.com/api/v1"
	// The "/api/v1" suffix is appended automatically if missing.
	BaseURL string

	// CacheTTL controls how long validated tokens are cached in memory
	// to reduce calls to the server. Set to 0 to disable caching.
	// Default: 2 minutes
	CacheTTL time.Duration

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 10s timeout is used.
	HTTPClient *http.Client
}

func (c *Config) defaults() {
	if c.CacheTTL == 0 {
		c.CacheTTL = 2 * time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if !strings.HasSuffix(c.BaseURL, "/api/v1") {
		c.BaseURL = c.BaseURL + "/api/v1"
	}
}

// Client is the Nexus SDK client. It provides methods for calling the
// auth API and Echo middleware for protecting routes.
type Client struct {
	cfg   Config
	cache *tokenCache
}

// NewClient creates a new Nexus client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:   cfg,
		cache: newTokenCache(),
	}
}

// ValidateToken validates a session token by fetching the profile it
// belongs to. Results are cached according to CacheTTL to reduce
// network calls.
func (c *Client) ValidateToken(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	if c.cfg.CacheTTL > 0 {
		if account, ok := c.cache.get(token); ok {
			return account, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/profile", nil)
	if err != nil {
		return nil, fmt.Errorf("nexus: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nexus: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nexus: failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenInvalid
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nexus: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var account Account
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("nexus: failed to parse account: %w", err)
	}

	if c.cfg.CacheTTL > 0 {
		c.cache.set(token, &account, c.cfg.CacheTTL)
	}

	return &account, nil
}

// InvalidateToken removes a token from the local cache. Call this after
// logout so stale tokens are not served from cache.
func (c *Client) InvalidateToken(token string) {
	c.cache.delete(token)
}

// Signup creates a new account and returns its first session.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	body, err := c.post(ctx, "/auth/signup", req, "")
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("nexus: failed to parse signup response: %w", err)
	}
	return &session, nil
}

// Login authenticates with username and password, plus a TOTP code when
// the account has two-factor enabled. A missing code surfaces as an
// APIError with code "two_factor_required"; see IsTwoFactorRequired.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	body, err := c.post(ctx, "/auth/login", req, "")
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("nexus: failed to parse login response: %w", err)
	}
	return &session, nil
}

// Logout ends the session on the server side and drops the token from
// the local cache. The client must discard its copy of the token.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.post(ctx, "/auth/logout", nil, token)
	if err != nil {
		return err
	}
	c.cache.delete(token)
	return nil
}

// Refresh exchanges a still-valid token for a fresh one.
func (c *Client) Refresh(ctx context.Context, token string) (*Session, error) {
	body, err := c.post(ctx, "/auth/refresh", nil, token)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("nexus: failed to parse refresh response: %w", err)
	}
	c.cache.delete(token)
	return &session, nil
}

// RequestPasswordReset starts a password reset for the given email. The
// server responds identically whether or not the email is known.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := c.post(ctx, "/auth/password/reset-request", map[string]string{"email": email}, "")
	return err
}

// CompletePasswordReset redeems a reset token and sets a new password.
func (c *Client) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	_, err := c.post(ctx, "/auth/password/reset-complete", map[string]string{
		"token":       token,
		"newPassword": newPassword,
	}, "")
	return err
}

// post sends a POST request to the Nexus API.
func (c *Client) post(ctx context.Context, path string, payload interface{}, token string) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("nexus: failed to marshal request: %w", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("nexus: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nexus: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nexus: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, body)
	}

	return body, nil
}

// tokenCache provides in-memory caching for validated tokens.
type tokenCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	account   *Account
	expiresAt time.Time
}

func newTokenCache() *tokenCache {
	tc := &tokenCache{
		entries: make(map[string]*cacheEntry),
	}
	go tc.cleanup()
	return tc
}

func (tc *tokenCache) get(token string) (*Account, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	entry, ok := tc.entries[token]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.account, true
}

func (tc *tokenCache) set(token string, account *Account, ttl time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.entries[token] = &cacheEntry{
		account:   account,
		expiresAt: time.Now().Add(ttl),
	}
}

func (tc *tokenCache) delete(token string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	delete(tc.entries, token)
}

func (tc *tokenCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	for range ticker.C {
		tc.mu.Lock()
		now := time.Now()
		for k, v := range tc.entries {
			if now.After(v.expiresAt) {
				delete(tc.entries, k)
			}
		}
		tc.mu.Unlock()
	}
}
