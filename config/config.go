package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerConfig     ServerConfig     `json:"server"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	VaultConfig      VaultConfig      `json:"vault"`
	ProducerConfig   ProducerConfig   `json:"producer"`
	MarketConfig     MarketConfig     `json:"market"`
	ReconcilerConfig ReconcilerConfig `json:"reconciler"`
	ScannerConfig    ScannerConfig    `json:"scanner"`
	CleanupConfig    CleanupConfig    `json:"cleanup"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`    // Seconds
	WriteTimeout    int    `json:"write_timeout"`   // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`
	RateLimit       int    `json:"rate_limit"` // Requests per window per client IP
	RateWindowSecs  int    `json:"rate_window_secs"`
}

// DatabaseConfig holds Postgres configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
	// When false the engine runs on the in-memory store.
	Enabled bool `json:"enabled"`
}

// RedisConfig holds Redis configuration for the trade context cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for producer credentials
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// ProducerConfig holds the analysis producer client configuration
type ProducerConfig struct {
	Enabled     bool   `json:"enabled"`
	BaseURL     string `json:"base_url"`
	TimeoutSecs int    `json:"timeout_secs"`
	RetryCount  int    `json:"retry_count"`
	// APIKey is the fallback credential when Vault is disabled.
	APIKey string `json:"api_key"`
	// WatchPairs are "TICKER:TIMEFRAME" entries polled on PollInterval.
	WatchPairs   []string      `json:"watch_pairs"`
	PollInterval time.Duration `json:"poll_interval"`
}

// MarketConfig holds the candle provider configuration
type MarketConfig struct {
	BaseURL     string `json:"base_url"`
	TimeoutSecs int    `json:"timeout_secs"`
}

// ReconcilerConfig holds reconciliation engine tunables
type ReconcilerConfig struct {
	// ProtectionTTL is the delete-guard window for recently created or
	// maintained trades.
	ProtectionTTL time.Duration `json:"protection_ttl"`
	OpTimeout     time.Duration `json:"op_timeout"`
}

// ScannerConfig holds historical exit scanner tunables
type ScannerConfig struct {
	Enabled      bool          `json:"enabled"`
	ScanInterval time.Duration `json:"scan_interval"`
	GracePeriod  time.Duration `json:"grace_period"`
	// SellBreakoutTrigger selects the trigger rule for sell breakout
	// entries: "low_below_entry" or "high_above_entry".
	SellBreakoutTrigger string `json:"sell_breakout_trigger"`
}

// CleanupConfig holds the stale-trade sweep configuration
type CleanupConfig struct {
	Enabled  bool          `json:"enabled"`
	MaxAge   time.Duration `json:"max_age"`
	Schedule string        `json:"schedule"` // cron expression
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)
	cfg.ServerConfig.RateLimit = getEnvIntOrDefault("SERVER_RATE_LIMIT", 100)
	cfg.ServerConfig.RateWindowSecs = getEnvIntOrDefault("SERVER_RATE_WINDOW_SECS", 60)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", "true") == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "postgres")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Name = getEnvOrDefault("DB_NAME", "chart_advisor")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", "disable")

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "chart-advisor/credentials")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Producer config
	cfg.ProducerConfig.Enabled = getEnvOrDefault("PRODUCER_ENABLED", "false") == "true"
	cfg.ProducerConfig.BaseURL = getEnvOrDefault("PRODUCER_BASE_URL", cfg.ProducerConfig.BaseURL)
	cfg.ProducerConfig.TimeoutSecs = getEnvIntOrDefault("PRODUCER_TIMEOUT_SECS", 120)
	cfg.ProducerConfig.RetryCount = getEnvIntOrDefault("PRODUCER_RETRY_COUNT", 2)
	cfg.ProducerConfig.APIKey = getEnvOrDefault("PRODUCER_API_KEY", cfg.ProducerConfig.APIKey)
	if pairs := os.Getenv("PRODUCER_WATCH_PAIRS"); pairs != "" {
		cfg.ProducerConfig.WatchPairs = strings.Split(pairs, ",")
	}
	cfg.ProducerConfig.PollInterval = getEnvDurationOrDefault("PRODUCER_POLL_INTERVAL", 15*time.Minute)

	// Market config
	cfg.MarketConfig.BaseURL = getEnvOrDefault("MARKET_BASE_URL", "https://api.binance.com")
	cfg.MarketConfig.TimeoutSecs = getEnvIntOrDefault("MARKET_TIMEOUT_SECS", 15)

	// Reconciler config
	cfg.ReconcilerConfig.ProtectionTTL = getEnvDurationOrDefault("RECONCILER_PROTECTION_TTL", 5*time.Minute)
	cfg.ReconcilerConfig.OpTimeout = getEnvDurationOrDefault("RECONCILER_OP_TIMEOUT", 10*time.Second)

	// Scanner config
	cfg.ScannerConfig.Enabled = getEnvOrDefault("SCANNER_ENABLED", "true") == "true"
	cfg.ScannerConfig.ScanInterval = getEnvDurationOrDefault("SCANNER_INTERVAL", time.Minute)
	cfg.ScannerConfig.GracePeriod = getEnvDurationOrDefault("SCANNER_GRACE_PERIOD", 60*time.Second)
	cfg.ScannerConfig.SellBreakoutTrigger = getEnvOrDefault("SCANNER_SELL_BREAKOUT_TRIGGER", "low_below_entry")

	// Cleanup config
	cfg.CleanupConfig.Enabled = getEnvOrDefault("CLEANUP_ENABLED", "true") == "true"
	cfg.CleanupConfig.MaxAge = getEnvDurationOrDefault("CLEANUP_MAX_AGE", 72*time.Hour)
	cfg.CleanupConfig.Schedule = getEnvOrDefault("CLEANUP_SCHEDULE", "*/15 * * * *")

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ConnString builds the pgx connection string.
func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
			RateLimit:       100,
			RateWindowSecs:  60,
		},
		DatabaseConfig: DatabaseConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			Name:    "chart_advisor",
			SSLMode: "disable",
		},
		RedisConfig: RedisConfig{
			Enabled:  false,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		MarketConfig: MarketConfig{
			BaseURL:     "https://api.binance.com",
			TimeoutSecs: 15,
		},
		ReconcilerConfig: ReconcilerConfig{
			ProtectionTTL: 5 * time.Minute,
			OpTimeout:     10 * time.Second,
		},
		ScannerConfig: ScannerConfig{
			Enabled:             true,
			ScanInterval:        time.Minute,
			GracePeriod:         60 * time.Second,
			SellBreakoutTrigger: "low_below_entry",
		},
		CleanupConfig: CleanupConfig{
			Enabled:  true,
			MaxAge:   72 * time.Hour,
			Schedule: "*/15 * * * *",
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
