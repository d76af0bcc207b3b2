package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/dasmlab/komuniti/pkg/cache"
	"github.com/dasmlab/komuniti/pkg/translate"
)

// ErrInvalid is returned by Validate for unusable settings.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the complete application configuration
type Config struct {
	Server     ServerConfig     `toml:"server" yaml:"server"`
	GRPC       GRPCConfig       `toml:"grpc" yaml:"grpc"`
	Log        LogConfig        `toml:"log" yaml:"log"`
	Translator TranslatorConfig `toml:"translator" yaml:"translator"`
	Cache      CacheConfig      `toml:"cache" yaml:"cache"`
	Records    RecordsConfig    `toml:"records" yaml:"records"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string   `toml:"host" yaml:"host"`
	Port            int      `toml:"port" yaml:"port"`
	ReadTimeout     Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCConfig holds the optional gRPC health surface settings
type GRPCConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
	Port    int  `toml:"port" yaml:"port"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // text or json
}

// TranslatorConfig holds machine translation settings
type TranslatorConfig struct {
	Engine            string   `toml:"engine" yaml:"engine"`
	BaseURL           string   `toml:"base_url" yaml:"base_url"`
	APIKey            string   `toml:"api_key" yaml:"api_key"`
	Model             string   `toml:"model" yaml:"model"`
	Timeout           Duration `toml:"timeout" yaml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second" yaml:"requests_per_second"`
	Burst             int      `toml:"burst" yaml:"burst"`
}

// CacheConfig holds translation cache settings
type CacheConfig struct {
	Driver       string `toml:"driver" yaml:"driver"`
	DSN          string `toml:"dsn" yaml:"dsn"`
	Database     string `toml:"database" yaml:"database"`
	Table        string `toml:"table" yaml:"table"`
	StrictUpsert bool   `toml:"strict_upsert" yaml:"strict_upsert"`
}

// RecordsConfig points at the relational store holding announcements.
// An empty DSN disables the announcement listing.
type RecordsConfig struct {
	Driver string `toml:"driver" yaml:"driver"` // sqlite or postgres
	DSN    string `toml:"dsn" yaml:"dsn"`
}

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses a duration scalar
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration{30 * time.Second},
			WriteTimeout:    Duration{90 * time.Second},
			ShutdownTimeout: Duration{15 * time.Second},
		},
		GRPC: GRPCConfig{
			Port: 50051,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Translator: TranslatorConfig{
			Engine:            string(translate.EngineLLM),
			Timeout:           Duration{60 * time.Second},
			RequestsPerSecond: 2,
			Burst:             2,
		},
		Cache: CacheConfig{
			Driver: "memory",
			Table:  cache.DefaultTable,
		},
		Records: RecordsConfig{
			Driver: "sqlite",
		},
	}
}

// Load reads a TOML or YAML file (chosen by extension) over the defaults,
// then applies environment overrides. An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		path = os.ExpandEnv(path)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case ".yaml", ".yml":
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		default:
			return nil, fmt.Errorf("unsupported config format: %s", path)
		}
	}

	cfg.applyDefaults()
	cfg.expandEnvVars()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills values a file may have zeroed out
func (c *Config) applyDefaults() {
	d := Default()

	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ReadTimeout.Duration == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout.Duration == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.GRPC.Port == 0 {
		c.GRPC.Port = d.GRPC.Port
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Translator.Timeout.Duration == 0 {
		c.Translator.Timeout = d.Translator.Timeout
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = d.Cache.Driver
	}
	if c.Cache.Table == "" {
		c.Cache.Table = d.Cache.Table
	}
	if c.Records.Driver == "" {
		c.Records.Driver = d.Records.Driver
	}
}

// expandEnvVars resolves ${VAR} references in credentials and DSNs
func (c *Config) expandEnvVars() {
	c.Translator.APIKey = os.ExpandEnv(c.Translator.APIKey)
	c.Translator.BaseURL = os.ExpandEnv(c.Translator.BaseURL)
	c.Cache.DSN = os.ExpandEnv(c.Cache.DSN)
	c.Records.DSN = os.ExpandEnv(c.Records.DSN)
}

// applyEnv applies KOMUNITI_* and well-known variables on top of the file.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"KOMUNITI_HOST":              &c.Server.Host,
		"KOMUNITI_LOG_LEVEL":         &c.Log.Level,
		"KOMUNITI_LOG_FORMAT":        &c.Log.Format,
		"KOMUNITI_TRANSLATOR_ENGINE": &c.Translator.Engine,
		"KOMUNITI_TRANSLATOR_URL":    &c.Translator.BaseURL,
		"KOMUNITI_TRANSLATOR_MODEL":  &c.Translator.Model,
		"OPENAI_API_KEY":             &c.Translator.APIKey,
		"KOMUNITI_TRANSLATOR_KEY":    &c.Translator.APIKey,
		"KOMUNITI_CACHE_DRIVER":      &c.Cache.Driver,
		"KOMUNITI_CACHE_DSN":         &c.Cache.DSN,
		"KOMUNITI_CACHE_DATABASE":    &c.Cache.Database,
		"TRANSLATION_CACHE_TABLE":    &c.Cache.Table,
		"KOMUNITI_RECORDS_DRIVER":    &c.Records.Driver,
		"KOMUNITI_RECORDS_DSN":       &c.Records.DSN,
	}
	// KOMUNITI_TRANSLATOR_KEY wins over OPENAI_API_KEY when both are set.
	for _, name := range []string{
		"KOMUNITI_HOST", "KOMUNITI_LOG_LEVEL", "KOMUNITI_LOG_FORMAT",
		"KOMUNITI_TRANSLATOR_ENGINE", "KOMUNITI_TRANSLATOR_URL", "KOMUNITI_TRANSLATOR_MODEL",
		"OPENAI_API_KEY", "KOMUNITI_TRANSLATOR_KEY",
		"KOMUNITI_CACHE_DRIVER", "KOMUNITI_CACHE_DSN", "KOMUNITI_CACHE_DATABASE", "TRANSLATION_CACHE_TABLE",
		"KOMUNITI_RECORDS_DRIVER", "KOMUNITI_RECORDS_DSN",
	} {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*strs[name] = v
		}
	}

	ints := map[string]*int{
		"KOMUNITI_PORT":      &c.Server.Port,
		"KOMUNITI_GRPC_PORT": &c.GRPC.Port,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, name, v)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("KOMUNITI_GRPC_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: KOMUNITI_GRPC_ENABLED=%q is not a boolean", ErrInvalid, v)
		}
		c.GRPC.Enabled = enabled
	}
	if v, ok := os.LookupEnv("KOMUNITI_CACHE_STRICT_UPSERT"); ok && v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: KOMUNITI_CACHE_STRICT_UPSERT=%q is not a boolean", ErrInvalid, v)
		}
		c.Cache.StrictUpsert = strict
	}

	return nil
}

// Validate checks the settings that would otherwise fail late at start-up.
// A missing translator API key is not an error; the service runs in pass-through mode.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	if c.GRPC.Enabled && (c.GRPC.Port <= 0 || c.GRPC.Port > 65535) {
		return fmt.Errorf("%w: grpc.port %d out of range", ErrInvalid, c.GRPC.Port)
	}
	if c.GRPC.Enabled && c.GRPC.Port == c.Server.Port {
		return fmt.Errorf("%w: grpc.port and server.port must differ", ErrInvalid)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalid, c.Log.Format)
	}

	if _, err := translate.ParseEngineType(c.Translator.Engine); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Translator.RequestsPerSecond < 0 || c.Translator.Burst < 0 {
		return fmt.Errorf("%w: translator rate limit must not be negative", ErrInvalid)
	}

	switch strings.ToLower(c.Cache.Driver) {
	case "memory", "sqlite", "sqlite3":
	case "postgres", "postgresql", "mongo", "mongodb":
		if c.Cache.DSN == "" {
			return fmt.Errorf("%w: cache.dsn is required for driver %q", ErrInvalid, c.Cache.Driver)
		}
	default:
		return fmt.Errorf("%w: cache.driver %q", ErrInvalid, c.Cache.Driver)
	}
	if err := cache.ValidateTableName(c.Cache.Table); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if c.Records.DSN != "" {
		switch c.Records.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("%w: records.driver must be sqlite or postgres, got %q", ErrInvalid, c.Records.Driver)
		}
	}

	return nil
}
