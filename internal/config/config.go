// Package config loads iron-explorer settings from a TOML file with
// environment overrides.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level server configuration.
type Config struct {
	Server  ServerConfig   `toml:"server"`
	Log     LogConfig      `toml:"log"`
	Store   StoreConfig    `toml:"store"`
	Storage StorageConfig  `toml:"storage"`
	Env     EnvCredentials `toml:"-"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address string `toml:"address"`
	// SecureCookies marks the CSRF cookie Secure. Enable behind TLS.
	SecureCookies bool `toml:"secure_cookies"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json or console
}

// StoreConfig picks where local state (registry, history, theme) lives.
// The Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
	// SealKey encrypts persisted values when set. Must be 32 bytes.
	SealKey string `toml:"seal_key,omitempty"`
}

// StorageConfig tunes how remote buckets are accessed.
type StorageConfig struct {
	DefaultProvider string        `toml:"default_provider"` // "minio", "s3" or "memory"
	DefaultEndpoint string        `toml:"default_endpoint,omitempty"`
	Concurrency     int           `toml:"concurrency"`
	MaxKeys         int           `toml:"max_keys"`
	PageSize        int           `toml:"page_size"`
	PresignTTL      time.Duration `toml:"presign_ttl"`
	PresignMaxTTL   time.Duration `toml:"presign_max_ttl"`
}

// EnvCredentials is a bucket connection supplied through R2_* variables.
type EnvCredentials struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// Complete reports whether every field is set.
func (e EnvCredentials) Complete() bool {
	return e.Endpoint != "" && e.AccessKeyID != "" && e.SecretAccessKey != "" && e.Bucket != ""
}

// Default returns a Config with sensible values for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Address: ":8080"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{
			Type: "sqlite",
			Path: filepath.Join(defaultDataDir(), "iron-explorer.db"),
		},
		Storage: StorageConfig{
			DefaultProvider: "minio",
			Concurrency:     4,
			MaxKeys:         10000,
			PageSize:        1000,
			PresignTTL:      time.Hour,
			PresignMaxTTL:   7 * 24 * time.Hour,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "iron-explorer")
	}
	return "."
}

// DefaultPath is where the CLI looks for a config file when none is given.
func DefaultPath() string {
	return filepath.Join(defaultDataDir(), "config.toml")
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r on top of the defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path if it exists, falls back to defaults otherwise, and
// applies environment overrides in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := ReadFromFile(path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}
	ApplyEnv(cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables read through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("IRON_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := getenv("IRON_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv("IRON_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := getenv("IRON_STORE"); v != "" {
		cfg.Store.Type = v
	}
	if v := getenv("IRON_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := getenv("IRON_SESSION_KEY"); v != "" {
		cfg.Store.SealKey = v
	}
	if v := getenv("IRON_PROVIDER"); v != "" {
		cfg.Storage.DefaultProvider = v
	}
	if v := getenv("IRON_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.Concurrency = n
		}
	}
	if v := getenv("MINIO_ENDPOINT"); v != "" {
		cfg.Storage.DefaultEndpoint = v
	}

	cfg.Env = EnvCredentials{
		Endpoint:        getenv("R2_ENDPOINT"),
		AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
		SecretAccessKey: getenv("R2_SECRET_ACCESS_KEY"),
		Bucket:          getenv("R2_BUCKET"),
	}
}

// Validate checks the tagged-union sections for consistency.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for sqlite store")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	if c.Store.SealKey != "" && len(c.Store.SealKey) != 32 {
		return fmt.Errorf("store.seal_key must be 32 bytes, got %d", len(c.Store.SealKey))
	}
	switch c.Storage.DefaultProvider {
	case "minio", "s3", "memory":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.DefaultProvider)
	}
	if c.Storage.Concurrency < 1 {
		c.Storage.Concurrency = 1
	}
	if c.Storage.PresignMaxTTL <= 0 {
		c.Storage.PresignMaxTTL = 7 * 24 * time.Hour
	}
	if c.Storage.PresignTTL <= 0 || c.Storage.PresignTTL > c.Storage.PresignMaxTTL {
		c.Storage.PresignTTL = time.Hour
	}
	return nil
}

// writeToFile writes cfg to path, creating parent directories.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path unless a file already exists there.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
