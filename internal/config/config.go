package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Graph     GraphConfig     `yaml:"graph"`
	Logging   LoggingConfig   `yaml:"logging"`
	Provider  ProviderConfig  `yaml:"provider"`
	Sync      SyncConfig      `yaml:"sync"`
	Functions FunctionsConfig `yaml:"functions"`
	Audit     AuditConfig     `yaml:"audit"`
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	AllowedOriginsCSV string        `yaml:"allowed_origins"`
	MaxUploadBytes    int64         `yaml:"max_upload_bytes"`
}

// GraphConfig describes connectivity to the Neo4j graph database.
type GraphConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	MaxConnections int           `yaml:"max_connections"`
	TxTimeout      time.Duration `yaml:"tx_timeout"`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"` // text|json
	IncludeCaller bool   `yaml:"include_caller"`
}

// ProviderConfig describes the payment gateway statements come from.
type ProviderConfig struct {
	Name          string `yaml:"name"`
	Currency      string `yaml:"currency"`
	Timezone      string `yaml:"timezone"`
	FeeThreshold  string `yaml:"fee_threshold"`
	WebhookSecret string `yaml:"webhook_secret"`
	APIURL        string `yaml:"api_url"`
	ShopID        string `yaml:"shop_id"`
	APISecret     string `yaml:"api_secret"`
	PageSize      int    `yaml:"page_size"`
}

// SyncConfig tunes batch application of statement changes.
type SyncConfig struct {
	BatchSize        int           `yaml:"batch_size"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	Multiplier       float64       `yaml:"multiplier"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	Applier          string        `yaml:"applier"` // repository|function
	PromotionWorkers int           `yaml:"promotion_workers"`
}

// FunctionsConfig points at the serverless sync functions.
type FunctionsConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	SyncFunction string        `yaml:"sync_function"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AuditConfig locates the applied-batch audit log. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

const (
	ApplierRepository = "repository"
	ApplierFunction   = "function"
)

const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8080
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 60 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultMaxUploadBytes   = 32 << 20
	defaultLoggingLevel     = "info"
	defaultLoggingFormat    = "text"
	defaultGraphMaxSessions = 10
	defaultProviderName     = "bepaid"
	defaultCurrency         = "BYN"
	defaultTimezone         = "Europe/Minsk"
	defaultFeeThreshold     = "1"
	defaultPageSize         = 100
	defaultBatchSize        = 50
	defaultMaxAttempts      = 3
	defaultBaseDelay        = time.Second
	defaultMultiplier       = 2
	defaultMaxDelay         = 30 * time.Second
	defaultPromotionWorkers = 4
	defaultSyncFunction     = "sync-payments"
	defaultFunctionTimeout  = 30 * time.Second
	defaultAuditPath        = "data/sync-audit.db"
)

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Host:            defaultHost,
			Port:            defaultPort,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
			MaxUploadBytes:  defaultMaxUploadBytes,
		},
		Graph:   GraphConfig{MaxConnections: defaultGraphMaxSessions},
		Logging: LoggingConfig{Level: defaultLoggingLevel, Format: defaultLoggingFormat},
		Provider: ProviderConfig{
			Name:         defaultProviderName,
			Currency:     defaultCurrency,
			Timezone:     defaultTimezone,
			FeeThreshold: defaultFeeThreshold,
			PageSize:     defaultPageSize,
		},
		Sync: SyncConfig{
			BatchSize:        defaultBatchSize,
			MaxAttempts:      defaultMaxAttempts,
			BaseDelay:        defaultBaseDelay,
			Multiplier:       defaultMultiplier,
			MaxDelay:         defaultMaxDelay,
			Applier:          ApplierRepository,
			PromotionWorkers: defaultPromotionWorkers,
		},
		Functions: FunctionsConfig{SyncFunction: defaultSyncFunction, Timeout: defaultFunctionTimeout},
		Audit:     AuditConfig{Path: defaultAuditPath},
	}
}

// Load reads the optional YAML file named by RECON_CONFIG_FILE, then applies
// environment variables on top. Environment always wins.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("RECON_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTP.Host = valueOrDefault("SERVER_HOST", cfg.HTTP.Host)
	cfg.HTTP.AllowedOriginsCSV = valueOrDefault("SERVER_ALLOWED_ORIGINS", cfg.HTTP.AllowedOriginsCSV)
	cfg.HTTP.MaxUploadBytes = int64(parseIntWithDefault("SERVER_MAX_UPLOAD_BYTES", int(cfg.HTTP.MaxUploadBytes)))

	port, err := parsePort("SERVER_PORT", cfg.HTTP.Port)
	if err != nil {
		return err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout},
		{"SYNC_BASE_DELAY", &cfg.Sync.BaseDelay},
		{"SYNC_MAX_DELAY", &cfg.Sync.MaxDelay},
		{"FUNCTIONS_TIMEOUT", &cfg.Functions.Timeout},
		{"GRAPH_TX_TIMEOUT", &cfg.Graph.TxTimeout},
	}
	for _, d := range durations {
		if err := parseDuration(d.key, d.dst); err != nil {
			return err
		}
	}

	cfg.Logging.Level = valueOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = valueOrDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.IncludeCaller = parseBoolWithDefault("LOG_INCLUDE_CALLER", cfg.Logging.IncludeCaller)

	cfg.Graph.URI = valueOrDefault("GRAPH_URI", cfg.Graph.URI)
	cfg.Graph.Database = valueOrDefault("GRAPH_DATABASE", cfg.Graph.Database)
	cfg.Graph.Username = valueOrDefault("GRAPH_USERNAME", cfg.Graph.Username)
	cfg.Graph.Password = valueOrDefault("GRAPH_PASSWORD", cfg.Graph.Password)
	cfg.Graph.MaxConnections = parseIntWithDefault("GRAPH_MAX_CONNECTIONS", cfg.Graph.MaxConnections)

	cfg.Provider.Name = valueOrDefault("PROVIDER_NAME", cfg.Provider.Name)
	cfg.Provider.Currency = strings.ToUpper(valueOrDefault("PROVIDER_CURRENCY", cfg.Provider.Currency))
	cfg.Provider.Timezone = valueOrDefault("PROVIDER_TIMEZONE", cfg.Provider.Timezone)
	cfg.Provider.FeeThreshold = valueOrDefault("PROVIDER_FEE_THRESHOLD", cfg.Provider.FeeThreshold)
	cfg.Provider.WebhookSecret = valueOrDefault("PROVIDER_WEBHOOK_SECRET", cfg.Provider.WebhookSecret)
	cfg.Provider.APIURL = valueOrDefault("PROVIDER_API_URL", cfg.Provider.APIURL)
	cfg.Provider.ShopID = valueOrDefault("PROVIDER_SHOP_ID", cfg.Provider.ShopID)
	cfg.Provider.APISecret = valueOrDefault("PROVIDER_API_SECRET", cfg.Provider.APISecret)
	cfg.Provider.PageSize = parseIntWithDefault("PROVIDER_PAGE_SIZE", cfg.Provider.PageSize)

	cfg.Sync.BatchSize = parseIntWithDefault("SYNC_BATCH_SIZE", cfg.Sync.BatchSize)
	cfg.Sync.MaxAttempts = parseIntWithDefault("SYNC_MAX_ATTEMPTS", cfg.Sync.MaxAttempts)
	cfg.Sync.Applier = strings.ToLower(valueOrDefault("SYNC_APPLIER", cfg.Sync.Applier))
	cfg.Sync.PromotionWorkers = parseIntWithDefault("SYNC_PROMOTION_WORKERS", cfg.Sync.PromotionWorkers)
	if v := os.Getenv("SYNC_MULTIPLIER"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid SYNC_MULTIPLIER: %w", err)
		}
		cfg.Sync.Multiplier = m
	}

	cfg.Functions.BaseURL = valueOrDefault("FUNCTIONS_BASE_URL", cfg.Functions.BaseURL)
	cfg.Functions.APIKey = valueOrDefault("FUNCTIONS_API_KEY", cfg.Functions.APIKey)
	cfg.Functions.SyncFunction = valueOrDefault("FUNCTIONS_SYNC_NAME", cfg.Functions.SyncFunction)

	if v, ok := os.LookupEnv("AUDIT_DB_PATH"); ok {
		cfg.Audit.Path = v
	}
	return nil
}

// Validate rejects values the services cannot run with.
func (c Config) Validate() error {
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync batch size must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Sync.MaxAttempts <= 0 {
		return fmt.Errorf("sync max attempts must be positive, got %d", c.Sync.MaxAttempts)
	}
	switch c.Sync.Applier {
	case ApplierRepository:
	case ApplierFunction:
		if c.Functions.BaseURL == "" {
			return errors.New("function applier requires FUNCTIONS_BASE_URL")
		}
	default:
		return fmt.Errorf("unknown sync applier %q", c.Sync.Applier)
	}
	if _, err := decimal.NewFromString(c.Provider.FeeThreshold); err != nil {
		return fmt.Errorf("invalid provider fee threshold %q: %w", c.Provider.FeeThreshold, err)
	}
	if _, err := c.Provider.Location(); err != nil {
		return err
	}
	return nil
}

// Location loads the provider timezone used for naive statement timestamps.
func (p ProviderConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid provider timezone %q: %w", p.Timezone, err)
	}
	return loc, nil
}

// FeeMinAmount is the parsed fee threshold; zero when unparseable.
func (p ProviderConfig) FeeMinAmount() decimal.Decimal {
	d, err := decimal.NewFromString(p.FeeThreshold)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AllowedOrigins splits the CORS origin list.
func (h HTTPConfig) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(h.AllowedOriginsCSV, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseDuration(key string, dst *time.Duration) error {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
