// ABOUTME: Connector configuration with three-level precedence resolution
// ABOUTME: Explicit overrides beat environment variables which beat defaults

package connector

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults applied when neither an override nor an environment variable
// provides a value.
const (
	DefaultGatewayURL = "http://127.0.0.1:18789"
	DefaultModel      = "default"
	DefaultTimeout    = 120 * time.Second
)

// Environment variables consulted during resolution.
const (
	EnvClientID     = "DINGTALK_CLIENT_ID"
	EnvClientSecret = "DINGTALK_CLIENT_SECRET"
	EnvGatewayURL   = "MOLTBOT_GATEWAY_URL"
	EnvModel        = "MOLTBOT_MODEL"
	EnvGatewayToken = "MOLTBOT_GATEWAY_TOKEN"
)

// Overrides carries explicitly supplied configuration. A nil field falls
// through to the environment variable, then the default; a pointer to the
// zero value is an explicit setting and wins, so a caller can force an
// empty gateway token even when MOLTBOT_GATEWAY_TOKEN is set.
type Overrides struct {
	// ClientID is the DingTalk app key (env DINGTALK_CLIENT_ID).
	ClientID *string
	// ClientSecret is the DingTalk app secret (env DINGTALK_CLIENT_SECRET).
	ClientSecret *string
	// GatewayURL is the gateway base URL without path (env MOLTBOT_GATEWAY_URL).
	GatewayURL *string
	// Model is the model name sent with each request (env MOLTBOT_MODEL).
	Model *string
	// SystemPrompt is appended after the media guidance prompt.
	SystemPrompt *string
	// EnableMediaUpload controls the image upload guidance injection.
	EnableMediaUpload *bool
	// Timeout bounds each streaming request end to end.
	Timeout *time.Duration
	// GatewayToken authenticates against the gateway; empty means no auth
	// header (env MOLTBOT_GATEWAY_TOKEN).
	GatewayToken *string
}

// Config is fully resolved connector configuration.
type Config struct {
	ClientID          string
	ClientSecret      string
	GatewayURL        string
	Model             string
	SystemPrompt      string
	EnableMediaUpload bool
	Timeout           time.Duration
	GatewayToken      string
}

// ResolveConfig resolves o against the process environment and defaults.
// It never fails; call Validate on the result before using it.
func ResolveConfig(o Overrides) Config {
	return resolveConfig(o, os.Getenv)
}

// resolveConfig takes the environment lookup as a parameter so tests can
// inject one.
func resolveConfig(o Overrides, getenv func(string) string) Config {
	cfg := Config{
		ClientID:          resolveString(o.ClientID, getenv, EnvClientID, ""),
		ClientSecret:      resolveString(o.ClientSecret, getenv, EnvClientSecret, ""),
		GatewayURL:        resolveString(o.GatewayURL, getenv, EnvGatewayURL, DefaultGatewayURL),
		Model:             resolveString(o.Model, getenv, EnvModel, DefaultModel),
		GatewayToken:      resolveString(o.GatewayToken, getenv, EnvGatewayToken, ""),
		EnableMediaUpload: true,
		Timeout:           DefaultTimeout,
	}
	if o.SystemPrompt != nil {
		cfg.SystemPrompt = *o.SystemPrompt
	}
	if o.EnableMediaUpload != nil {
		cfg.EnableMediaUpload = *o.EnableMediaUpload
	}
	if o.Timeout != nil {
		cfg.Timeout = *o.Timeout
	}
	return cfg
}

// resolveString applies the explicit > environment > default precedence.
// An environment variable that is set but empty falls through to the
// default; an explicit empty override is preserved.
func resolveString(explicit *string, getenv func(string) string, envKey, def string) string {
	if explicit != nil {
		return *explicit
	}
	if v := getenv(envKey); v != "" {
		return v
	}
	return def
}

// Validate checks that the credentials required to reach DingTalk are
// present. It runs before any network activity.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("missing dingtalk client id: pass it explicitly or set %s", EnvClientID)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("missing dingtalk client secret: pass it explicitly or set %s", EnvClientSecret)
	}
	return nil
}

// ChatCompletionsURL returns the gateway's chat completions endpoint,
// trailing slashes on the base URL trimmed.
func (c Config) ChatCompletionsURL() string {
	return strings.TrimRight(c.GatewayURL, "/") + "/v1/chat/completions"
}
