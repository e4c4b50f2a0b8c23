// Package config loads terms settings from config.toml, .env files and
// TERMS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = "terms"
	envPrefix  = "TERMS"
	envFile    = ".env"
)

var ErrMissingClientID = errors.New("client_id is not configured")

type Config struct {
	ClientID  string
	TenantID  string
	Authority string
	GraphURL  string
	Auth      AuthConfig
	Sync      SyncConfig
	Mutations MutationsConfig
	Secrets   SecretsConfig
	Cache     CacheConfig
	Log       LogConfig
}

type AuthConfig struct {
	Listen        string
	Timeout       time.Duration
	RefreshMargin time.Duration
}

type SyncConfig struct {
	Interval     time.Duration
	RecentWindow time.Duration
	MaxRetries   int
	Concurrency  int
}

type MutationsConfig struct {
	MaxRetries int
}

type SecretsConfig struct {
	// Backend is the primary store, "keyring" or "pass". The file store is
	// always the fallback.
	Backend string
	FileDir string
}

type CacheConfig struct {
	Enabled bool
	Path    string
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return ErrMissingClientID
	}
	switch c.Secrets.Backend {
	case "keyring", "pass":
	default:
		return fmt.Errorf("unsupported secrets.backend %q", c.Secrets.Backend)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive, got %s", c.Sync.Interval)
	}
	return nil
}

// Loader owns the viper instance so the file can be watched after loading.
type Loader struct {
	dir     string
	v       *viper.Viper
	created bool
	mu      sync.Mutex
}

// DefaultDir is ~/.config/terms on Linux and the platform equivalent elsewhere.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config directory: %w", err)
	}
	return filepath.Join(base, configDir), nil
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, v: viper.New()}
}

func (l *Loader) Dir() string { return l.dir }

func (l *Loader) Path() string { return filepath.Join(l.dir, configName+"."+configType) }

// Created reports whether Load wrote a fresh template because no config file
// existed.
func (l *Loader) Created() bool { return l.created }

func (l *Loader) Load() (Config, error) {
	if err := loadEnvFiles(filepath.Join(l.dir, envFile), envFile); err != nil {
		return Config{}, err
	}

	l.v.SetConfigName(configName)
	l.v.SetConfigType(configType)
	l.v.AddConfigPath(l.dir)
	l.v.SetEnvPrefix(envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	setDefaults(l.v, l.dir)

	if err := l.v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := writeTemplate(l.Path()); err != nil {
			return Config{}, err
		}
		l.created = true
		if err := l.v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config template: %w", err)
		}
	}

	return l.decode(), nil
}

// Watch calls onChange with the reloaded config whenever the file changes.
func (l *Loader) Watch(onChange func(Config)) {
	l.v.OnConfigChange(func(fsnotify.Event) {
		onChange(l.decode())
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() Config {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := l.v
	return Config{
		ClientID:  strings.TrimSpace(v.GetString("client_id")),
		TenantID:  v.GetString("tenant_id"),
		Authority: strings.TrimRight(v.GetString("authority"), "/"),
		GraphURL:  strings.TrimRight(v.GetString("graph_url"), "/"),
		Auth: AuthConfig{
			Listen:        v.GetString("auth.listen"),
			Timeout:       v.GetDuration("auth.timeout"),
			RefreshMargin: v.GetDuration("auth.refresh_margin"),
		},
		Sync: SyncConfig{
			Interval:     v.GetDuration("sync.interval"),
			RecentWindow: v.GetDuration("sync.recent_window"),
			MaxRetries:   v.GetInt("sync.max_retries"),
			Concurrency:  v.GetInt("sync.concurrency"),
		},
		Mutations: MutationsConfig{MaxRetries: v.GetInt("mutations.max_retries")},
		Secrets: SecretsConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("secrets.backend"))),
			FileDir: v.GetString("secrets.file_dir"),
		},
		Cache: CacheConfig{
			Enabled: v.GetBool("cache.enabled"),
			Path:    v.GetString("cache.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
	}
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("tenant_id", "common")
	v.SetDefault("authority", "https://login.microsoftonline.com")
	v.SetDefault("graph_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("auth.listen", "127.0.0.1:0")
	v.SetDefault("auth.timeout", 5*time.Minute)
	v.SetDefault("auth.refresh_margin", 60*time.Second)
	v.SetDefault("sync.interval", 15*time.Second)
	v.SetDefault("sync.recent_window", 10*time.Minute)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("mutations.max_retries", 3)
	v.SetDefault("secrets.backend", "keyring")
	v.SetDefault("secrets.file_dir", filepath.Join(dir, "secrets"))
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", filepath.Join(dir, "cache"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	// AutomaticEnv only applies to keys viper already knows about.
	v.SetDefault("client_id", "")
}

// loadEnvFiles loads the given files when present. Variables already set in
// the environment win.
func loadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file: %w", err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}
