// ABOUTME: Access token fetching with expiry-aware caching
// ABOUTME: Tokens are cached per app key and refreshed five minutes early

package dingtalk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultOAPIBase is the legacy open-platform host serving token issuance
// and media upload.
const DefaultOAPIBase = "https://oapi.dingtalk.com"

// DefaultAPIBase is the current open-platform host serving the card APIs.
const DefaultAPIBase = "https://api.dingtalk.com"

// tokenSafetyMargin is subtracted from the reported token lifetime so a
// token is replaced before DingTalk actually invalidates it.
const tokenSafetyMargin = 300 * time.Second

// defaultTokenLifetime is assumed when gettoken omits expires_in.
const defaultTokenLifetime = 7200 * time.Second

// tokenProvider is the subset of TokenSource the API clients need.
type tokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenCache stores access tokens keyed by app key until shortly before
// their upstream expiry. The mutex guards only the map: concurrent misses
// may fetch redundantly, which is harmless because token issuance is
// idempotent and the last write wins.
type TokenCache struct {
	mu     sync.Mutex
	now    func() time.Time
	tokens map[string]cachedToken
}

// NewTokenCache creates an empty token cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{
		now:    time.Now,
		tokens: make(map[string]cachedToken),
	}
}

// Lookup returns the cached token for key if one is present and unexpired.
func (c *TokenCache) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.tokens[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.token, true
}

// Store records a token for key, usable until expiresAt.
func (c *TokenCache) Store(key, token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = cachedToken{token: token, expiresAt: expiresAt}
}

// tokenResponse mirrors the gettoken endpoint's JSON body.
type tokenResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenSource issues access tokens for one app credential, consulting a
// cache before going to the network. Failed fetches are not retried; the
// caller decides how to degrade.
type TokenSource struct {
	oapiBase     string
	clientID     string
	clientSecret string
	cache        *TokenCache
	client       *http.Client
	logger       *slog.Logger
	now          func() time.Time
}

// NewTokenSource creates a token source for the given app credential.
func NewTokenSource(oapiBase, clientID, clientSecret string, cache *TokenCache, logger *slog.Logger) *TokenSource {
	return &TokenSource{
		oapiBase:     strings.TrimSuffix(oapiBase, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		cache:        cache,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a valid access token, fetching a fresh one only when the
// cache has no usable entry for this app key.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := s.cache.Lookup(s.clientID); ok {
		return token, nil
	}

	query := url.Values{}
	query.Set("appkey", s.clientID)
	query.Set("appsecret", s.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.oapiBase+"/gettoken?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting access token: %w", err)
	}
	defer resp.Body.Close()

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tok.ErrCode != 0 {
		return "", fmt.Errorf("gettoken returned errcode %d: %s", tok.ErrCode, tok.ErrMsg)
	}

	lifetime := time.Duration(tok.ExpiresIn) * time.Second
	if lifetime == 0 {
		lifetime = defaultTokenLifetime
	}
	s.cache.Store(s.clientID, tok.AccessToken, s.now().Add(lifetime-tokenSafetyMargin))

	s.logger.Debug("fetched access token", "lifetime", lifetime)
	return tok.AccessToken, nil
}
