package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "formdeck.yml"

// Config models formdeck.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Database struct {
		// DSN selects the store: empty for the workspace SQLite file, a path or file: URI
		// for SQLite elsewhere, postgres:// for Postgres.
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Auth     AuthConfig      `yaml:"auth"`
	Export   ExportConfig    `yaml:"export"`
	Logging  LoggingConfig   `yaml:"logging"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type AuthConfig struct {
	// JWTSecret enables authentication on management endpoints when set.
	JWTSecret         string `yaml:"jwt_secret"`
	AdminUser         string `yaml:"admin_user"`
	AdminPasswordHash string `yaml:"admin_password_hash"`
	TokenTTLMinutes   int    `yaml:"token_ttl_minutes"`
}

// Enabled reports whether management endpoints require credentials.
func (a AuthConfig) Enabled() bool {
	return strings.TrimSpace(a.JWTSecret) != ""
}

func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

const (
	HeaderFirstRow = "first-row"
	HeaderSuperset = "superset"
)

type ExportConfig struct {
	Timezone string `yaml:"timezone"`
	BOM      *bool  `yaml:"bom"`
	Header   string `yaml:"header"`
}

// Location resolves Timezone, defaulting to UTC.
func (e ExportConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(e.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(e.Timezone)
}

func (e ExportConfig) WithBOM() bool {
	return e.BOM == nil || *e.BOM
}

type LoggingConfig struct {
	GELFAddr string `yaml:"gelf_addr"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fd config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.Enabled() {
		if len(c.Auth.JWTSecret) < 16 {
			return fmt.Errorf("config.auth.jwt_secret must be at least 16 characters")
		}
		if c.Auth.AdminPasswordHash != "" && c.Auth.AdminUser == "" {
			return fmt.Errorf("config.auth.admin_user is required with admin_password_hash")
		}
	}
	if _, err := c.Export.Location(); err != nil {
		return fmt.Errorf("config.export.timezone: %w", err)
	}
	switch c.Export.Header {
	case "", HeaderFirstRow, HeaderSuperset:
	default:
		return fmt.Errorf("config.export.header must be %q or %q", HeaderFirstRow, HeaderSuperset)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be positive", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

database:
  dsn: ""

auth:
  jwt_secret: ""
  admin_user: admin
  admin_password_hash: ""
  token_ttl_minutes: 1440

export:
  timezone: UTC
  bom: true
  header: first-row

logging:
  gelf_addr: ""

webhooks: []
`
