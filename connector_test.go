// ABOUTME: Tests for connector construction and configuration wiring
// ABOUTME: Validation failures surface before any connection is attempted

package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/ptr"
)

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")

	_, err := New(Overrides{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvClientID)
}

func TestNew_ResolvesConfig(t *testing.T) {
	t.Setenv(EnvClientID, "env-id")
	t.Setenv(EnvClientSecret, "env-secret")
	t.Setenv(EnvGatewayURL, "http://gw.internal:9999")

	conn, err := New(Overrides{Model: ptr.Ptr("claude")}, nil)
	require.NoError(t, err)

	cfg := conn.Config()
	assert.Equal(t, "env-id", cfg.ClientID)
	assert.Equal(t, "env-secret", cfg.ClientSecret)
	assert.Equal(t, "http://gw.internal:9999", cfg.GatewayURL)
	assert.Equal(t, "claude", cfg.Model)
	assert.True(t, cfg.EnableMediaUpload)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvClientID, "env-id")
	t.Setenv(EnvClientSecret, "env-secret")
	t.Setenv(EnvGatewayURL, "")
	t.Setenv(EnvModel, "")

	conn, err := FromEnv(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultGatewayURL, conn.Config().GatewayURL)
	assert.Equal(t, DefaultModel, conn.Config().Model)
}

func TestConnector_StopBeforeRun(t *testing.T) {
	t.Setenv(EnvClientID, "env-id")
	t.Setenv(EnvClientSecret, "env-secret")

	conn, err := New(Overrides{}, nil)
	require.NoError(t, err)

	// Stop without a running listener is a no-op, and repeatable.
	conn.Stop()
	conn.Stop()
}
