package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadHeaderTimeout = 10 * time.Second
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 15 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultRequestTimeout    = 30 * time.Second
	defaultPublicDir         = "public"
	defaultCatalogBaseURL    = "https://api.b-e.az/task"
	defaultCatalogTimeout    = 8 * time.Second
	defaultCatalogCacheTTL   = time.Minute
	defaultStorageDriver     = "memory"
	defaultStorageDir        = "data/keysets"
	defaultRedisChannel      = "storefront:storage"
	defaultTabIdleTTL        = 30 * time.Minute
	defaultTabSweepSpec      = "@every 1m"
	defaultTabMaxPerVisitor  = 20
	defaultLocale            = "az"
	defaultLogLevel          = "info"
)

// MinTabIdleTTL is the shortest accepted Tabs.IdleTTL. Event streams touch their
// tab more often than this, so a connected tab is never swept.
const MinTabIdleTTL = time.Minute

// Storage drivers accepted by Storage.Driver.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	Catalog CatalogConfig
	Storage StorageConfig
	Redis   RedisConfig
	Session SessionConfig
	Tabs    TabsConfig
	Locale  LocaleConfig
	Log     LogConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestTimeout    time.Duration
	PublicDir         string
	DevMode           bool
}

// Addr returns the listen address derived from Port.
func (s ServerConfig) Addr() string {
	if strings.Contains(s.Port, ":") {
		return s.Port
	}
	return ":" + s.Port
}

// CatalogConfig points at the upstream catalog API.
type CatalogConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
	// Offline serves the embedded fallback catalog instead of calling BaseURL.
	Offline bool
}

// StorageConfig selects the key-value backend holding visitor key sets.
type StorageConfig struct {
	Driver string
	Dir    string
	KeyTTL time.Duration
}

// RedisConfig is used by the redis storage driver and the cross-instance relay.
type RedisConfig struct {
	URL     string
	Channel string
}

// SessionConfig configures the signed visitor cookie.
type SessionConfig struct {
	SigningKey string
	Secure     bool
}

// TabsConfig bounds how long idle tab state is retained.
type TabsConfig struct {
	IdleTTL       time.Duration
	SweepSpec     string
	MaxPerVisitor int
}

// LocaleConfig lists the languages the storefront renders.
type LocaleConfig struct {
	Default   string
	Supported []string
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string
	// TraceProject names the Cloud project trace ids are linked to in log entries.
	TraceProject string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the storefront configuration by combining defaults, .env overrides
// and environment variables. Precedence: explicit env map > OS env > .env file.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	// Port resolution: prefer STOREFRONT_PORT, then the platform's PORT.
	port := stringWithDefault(lookup, "STOREFRONT_PORT", "")
	if port == "" {
		port = stringWithDefault(lookup, "PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:              port,
			ReadHeaderTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_READ_HEADER_TIMEOUT", defaultReadHeaderTimeout),
			ReadTimeout:       durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:      durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:       durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			PublicDir:         stringWithDefault(lookup, "STOREFRONT_PUBLIC_DIR", defaultPublicDir),
			DevMode:           boolWithDefault(lookup, "STOREFRONT_DEV", false),
		},
		Catalog: CatalogConfig{
			BaseURL:  strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_CATALOG_BASE_URL", defaultCatalogBaseURL), "/"),
			Timeout:  durationWithDefault(lookup, "STOREFRONT_CATALOG_TIMEOUT", defaultCatalogTimeout),
			CacheTTL: durationWithDefault(lookup, "STOREFRONT_CATALOG_CACHE_TTL", defaultCatalogCacheTTL),
			Offline:  boolWithDefault(lookup, "STOREFRONT_CATALOG_OFFLINE", false),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_STORAGE_DRIVER", defaultStorageDriver)),
			Dir:    stringWithDefault(lookup, "STOREFRONT_STORAGE_DIR", defaultStorageDir),
			KeyTTL: durationWithDefault(lookup, "STOREFRONT_STORAGE_KEY_TTL", 0),
		},
		Redis: RedisConfig{
			URL:     stringWithDefault(lookup, "STOREFRONT_REDIS_URL", ""),
			Channel: stringWithDefault(lookup, "STOREFRONT_REDIS_CHANNEL", defaultRedisChannel),
		},
		Session: SessionConfig{
			SigningKey: stringWithDefault(lookup, "STOREFRONT_SESSION_SIGNING_KEY", ""),
			Secure:     strings.EqualFold(stringWithDefault(lookup, "STOREFRONT_ENV", ""), "prod"),
		},
		Tabs: TabsConfig{
			IdleTTL:       durationWithDefault(lookup, "STOREFRONT_TAB_IDLE_TTL", defaultTabIdleTTL),
			SweepSpec:     stringWithDefault(lookup, "STOREFRONT_TAB_SWEEP", defaultTabSweepSpec),
			MaxPerVisitor: intWithDefault(lookup, "STOREFRONT_TAB_MAX_PER_VISITOR", defaultTabMaxPerVisitor),
		},
		Locale: LocaleConfig{
			Default:   strings.ToLower(stringWithDefault(lookup, "STOREFRONT_LOCALE_DEFAULT", defaultLocale)),
			Supported: csvWithDefault(lookup, "STOREFRONT_LOCALE_SUPPORTED"),
		},
		Log: LogConfig{
			Level:        stringWithDefault(lookup, "STOREFRONT_LOG_LEVEL", stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
			TraceProject: stringWithDefault(lookup, "STOREFRONT_TRACE_PROJECT", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
		},
	}

	if len(cfg.Locale.Supported) == 0 {
		cfg.Locale.Supported = []string{"az", "en"}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Server.RequestTimeout <= 0 {
		invalid = append(invalid, "Server.RequestTimeout")
	}
	if cfg.Catalog.Timeout <= 0 {
		invalid = append(invalid, "Catalog.Timeout")
	}
	if cfg.Catalog.CacheTTL < 0 {
		invalid = append(invalid, "Catalog.CacheTTL")
	}
	switch cfg.Storage.Driver {
	case StorageMemory:
	case StorageFile:
		if strings.TrimSpace(cfg.Storage.Dir) == "" {
			invalid = append(invalid, "Storage.Dir")
		}
	case StorageRedis:
		if strings.TrimSpace(cfg.Redis.URL) == "" {
			invalid = append(invalid, "Redis.URL")
		}
	default:
		invalid = append(invalid, "Storage.Driver")
	}
	if cfg.Tabs.IdleTTL < MinTabIdleTTL {
		invalid = append(invalid, "Tabs.IdleTTL")
	}
	if strings.TrimSpace(cfg.Tabs.SweepSpec) == "" {
		invalid = append(invalid, "Tabs.SweepSpec")
	}
	if cfg.Tabs.MaxPerVisitor <= 0 {
		invalid = append(invalid, "Tabs.MaxPerVisitor")
	}
	if !containsString(cfg.Locale.Supported, cfg.Locale.Default) {
		invalid = append(invalid, "Locale.Default")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func containsString(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[key] = strings.Trim(value, "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
