// ABOUTME: TOML config file support for the connector binary
// ABOUTME: File values become overrides; absent keys fall to env and defaults

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.mau.fi/util/ptr"

	connector "github.com/moltbot/dingtalk-connector"
)

// duration lets TOML carry values like "90s" or "2m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

type fileSettings struct {
	DingTalk struct {
		ClientID     string `toml:"client_id"`
		ClientSecret string `toml:"client_secret"`
	} `toml:"dingtalk"`
	Gateway struct {
		URL     string   `toml:"url"`
		Model   string   `toml:"model"`
		Token   string   `toml:"token"`
		Timeout duration `toml:"timeout"`
	} `toml:"gateway"`
	Bot struct {
		SystemPrompt string `toml:"system_prompt"`
		MediaUpload  bool   `toml:"media_upload"`
	} `toml:"bot"`
	Logging struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"logging"`
}

// configFile is a parsed config file plus the decode metadata needed to
// tell absent keys from keys set to their zero value.
type configFile struct {
	path   string
	config fileSettings
	meta   toml.MetaData
}

// defaultConfigPath returns where the config file lives when --config is
// not given. Priority: DINGTALK_MOLTBOT_CONFIG env var >
// XDG_CONFIG_HOME/dingtalk-moltbot/config.toml >
// ~/.config/dingtalk-moltbot/config.toml.
func defaultConfigPath() string {
	if envPath := os.Getenv("DINGTALK_MOLTBOT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "dingtalk-moltbot", "config.toml")
}

// loadConfigFile reads and parses the file at path, expanding ${VAR}
// references from the environment first. When required is false a missing
// file is not an error; the caller gets a nil configFile.
func loadConfigFile(path string, required bool) (*configFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	file := &configFile{path: path}
	meta, err := toml.Decode(expandEnvVars(string(data)), &file.config)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	file.meta = meta
	return file, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Overrides converts the keys present in the file into connector overrides.
// Keys the file does not mention stay nil so environment variables and
// defaults still apply to them. A nil receiver yields no overrides.
func (f *configFile) Overrides() connector.Overrides {
	var o connector.Overrides
	if f == nil {
		return o
	}

	if f.meta.IsDefined("dingtalk", "client_id") {
		o.ClientID = ptr.Ptr(f.config.DingTalk.ClientID)
	}
	if f.meta.IsDefined("dingtalk", "client_secret") {
		o.ClientSecret = ptr.Ptr(f.config.DingTalk.ClientSecret)
	}
	if f.meta.IsDefined("gateway", "url") {
		o.GatewayURL = ptr.Ptr(f.config.Gateway.URL)
	}
	if f.meta.IsDefined("gateway", "model") {
		o.Model = ptr.Ptr(f.config.Gateway.Model)
	}
	if f.meta.IsDefined("gateway", "token") {
		o.GatewayToken = ptr.Ptr(f.config.Gateway.Token)
	}
	if f.meta.IsDefined("gateway", "timeout") {
		o.Timeout = ptr.Ptr(f.config.Gateway.Timeout.Duration)
	}
	if f.meta.IsDefined("bot", "system_prompt") {
		o.SystemPrompt = ptr.Ptr(f.config.Bot.SystemPrompt)
	}
	if f.meta.IsDefined("bot", "media_upload") {
		o.EnableMediaUpload = ptr.Ptr(f.config.Bot.MediaUpload)
	}
	return o
}
