package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	configFileMode  = 0o600
	configDirMode   = 0o700
	tempFilePattern = ".config-*.toml.tmp"
)

type templateSchema struct {
	ClientID  string          `toml:"client_id" comment:"Application (client) id of your Entra ID app registration. Required."`
	TenantID  string          `toml:"tenant_id" comment:"Directory (tenant) id, or common for multi-tenant apps"`
	Auth      authSchema      `toml:"auth"`
	Sync      syncSchema      `toml:"sync"`
	Mutations mutationsSchema `toml:"mutations"`
	Secrets   secretsSchema   `toml:"secrets"`
	Cache     cacheSchema     `toml:"cache"`
	Log       logSchema       `toml:"log"`
}

type authSchema struct {
	Listen        string `toml:"listen" comment:"Loopback address for the browser login callback"`
	Timeout       string `toml:"timeout"`
	RefreshMargin string `toml:"refresh_margin" comment:"Refresh the access token this long before it expires"`
}

type syncSchema struct {
	Interval     string `toml:"interval" comment:"Poll interval, reloaded while terms sync --watch runs"`
	RecentWindow string `toml:"recent_window"`
	MaxRetries   int    `toml:"max_retries"`
	Concurrency  int    `toml:"concurrency"`
}

type mutationsSchema struct {
	MaxRetries int `toml:"max_retries"`
}

type secretsSchema struct {
	Backend string `toml:"backend" comment:"keyring or pass. Falls back to an owner-only file store."`
}

type cacheSchema struct {
	Enabled bool `toml:"enabled" comment:"Keep a local snapshot of synced conversations between runs"`
}

type logSchema struct {
	Level  string `toml:"level"`
	Format string `toml:"format" comment:"text or json"`
	File   string `toml:"file"`
}

func defaultTemplate() templateSchema {
	return templateSchema{
		TenantID: "common",
		Auth:     authSchema{Listen: "127.0.0.1:0", Timeout: "5m", RefreshMargin: "60s"},
		Sync:     syncSchema{Interval: "15s", RecentWindow: "10m", MaxRetries: 3, Concurrency: 4},
		Mutations: mutationsSchema{
			MaxRetries: 3,
		},
		Secrets: secretsSchema{Backend: "keyring"},
		Log:     logSchema{Level: "info", Format: "text"},
	}
}

// writeTemplate creates the config file atomically. An existing file is left
// untouched.
func writeTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(defaultTemplate())
	if err != nil {
		return fmt.Errorf("encode config template: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tempFile.Chmod(configFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}

	cleanup = false
	return nil
}
