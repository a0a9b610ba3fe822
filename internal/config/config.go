package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xmhha/chainprobe/internal/constants"
	"github.com/0xmhha/chainprobe/pkg/substrate"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for chainprobe
type Config struct {
	RPC            RPCConfig            `yaml:"rpc"`
	Database       DatabaseConfig       `yaml:"database"`
	Log            LogConfig            `yaml:"log"`
	Cache          CacheConfig          `yaml:"cache"`
	Search         SearchConfig         `yaml:"search"`
	API            APIConfig            `yaml:"api"`
	StorageEntries []StorageEntryConfig `yaml:"storage_entries"`
}

// RPCConfig holds node connection configuration
type RPCConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	// RateLimit is the number of calls per second sent to the node (0 = unlimited)
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Enabled persists finalized samples and search records in pebble.
	// When disabled everything is kept in memory.
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"readonly"`
	CacheMB  int    `yaml:"cache_mb"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig holds in-memory sample cache configuration
type CacheConfig struct {
	MaxSize         int           `yaml:"max_size"`
	DefaultTTL      time.Duration `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// SearchConfig holds search service configuration
type SearchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	HistoryLimit  int `yaml:"history_limit"`
	// BridgeBlockWindow is the default number of blocks scanned for nonce changes
	BridgeBlockWindow uint64 `yaml:"bridge_block_window"`
	// BridgeNonceWindow is the default number of nonces below the current one
	BridgeNonceWindow uint64 `yaml:"bridge_nonce_window"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	EnableGraphQL      bool     `yaml:"enable_graphql"`
	EnableJSONRPC      bool     `yaml:"enable_jsonrpc"`
	EnableWebSocket    bool     `yaml:"enable_websocket"`
	EnableCORS         bool     `yaml:"enable_cors"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

// StorageEntryConfig registers an extra storage item for key decoding
type StorageEntryConfig struct {
	Pallet string             `yaml:"pallet"`
	Item   string             `yaml:"item"`
	Args   []StorageArgConfig `yaml:"args"`
}

// StorageArgConfig describes one map key argument of a storage entry
type StorageArgConfig struct {
	Name   string `yaml:"name"`
	Hasher string `yaml:"hasher"`
	Length int    `yaml:"length"`
}

// NewConfig creates a new configuration with default values.
// All API transports start enabled; a file or the environment may switch them off.
func NewConfig() *Config {
	cfg := &Config{
		API: APIConfig{
			EnableGraphQL:   true,
			EnableJSONRPC:   true,
			EnableWebSocket: true,
			EnableCORS:      true,
		},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills every unset value with its default
func (c *Config) SetDefaults() {
	// RPC defaults
	if c.RPC.Endpoint == "" {
		c.RPC.Endpoint = constants.DefaultRPCEndpoint
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}
	if c.RPC.RateBurst == 0 {
		c.RPC.RateBurst = constants.DefaultRPCRateBurst
	}

	// Database defaults
	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if c.Database.CacheMB == 0 {
		c.Database.CacheMB = constants.DefaultDatabaseCacheMB
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Cache defaults
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = constants.DefaultCacheSize
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = constants.DefaultCacheTTL
	}
	if c.Cache.CleanupInterval == 0 {
		c.Cache.CleanupInterval = constants.DefaultCacheCleanupInterval
	}

	// Search defaults
	if c.Search.MaxConcurrent == 0 {
		c.Search.MaxConcurrent = constants.DefaultMaxConcurrentSearches
	}
	if c.Search.HistoryLimit == 0 {
		c.Search.HistoryLimit = constants.DefaultSearchHistory
	}
	if c.Search.BridgeBlockWindow == 0 {
		c.Search.BridgeBlockWindow = constants.DefaultBridgeBlockWindow
	}
	if c.Search.BridgeNonceWindow == 0 {
		c.Search.BridgeNonceWindow = constants.DefaultBridgeNonceWindow
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"*"}
	}
}

// LoadFromEnv overrides configuration with CHAINPROBE_* environment variables
func (c *Config) LoadFromEnv() error {
	// RPC configuration
	if endpoint := os.Getenv("CHAINPROBE_RPC_ENDPOINT"); endpoint != "" {
		c.RPC.Endpoint = endpoint
	}
	if timeout := os.Getenv("CHAINPROBE_RPC_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_RPC_TIMEOUT: %w", err)
		}
		c.RPC.Timeout = duration
	}
	if rateLimit := os.Getenv("CHAINPROBE_RPC_RATE_LIMIT"); rateLimit != "" {
		val, err := strconv.ParseFloat(rateLimit, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_RPC_RATE_LIMIT: %w", err)
		}
		c.RPC.RateLimit = val
	}
	if rateBurst := os.Getenv("CHAINPROBE_RPC_RATE_BURST"); rateBurst != "" {
		val, err := strconv.Atoi(rateBurst)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_RPC_RATE_BURST: %w", err)
		}
		c.RPC.RateBurst = val
	}

	// Database configuration
	if enabled := os.Getenv("CHAINPROBE_DB_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_DB_ENABLED: %w", err)
		}
		c.Database.Enabled = val
	}
	if path := os.Getenv("CHAINPROBE_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if readonly := os.Getenv("CHAINPROBE_DB_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_DB_READONLY: %w", err)
		}
		c.Database.ReadOnly = val
	}

	// Log configuration
	if level := os.Getenv("CHAINPROBE_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("CHAINPROBE_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	// Cache configuration
	if size := os.Getenv("CHAINPROBE_CACHE_SIZE"); size != "" {
		val, err := strconv.Atoi(size)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_CACHE_SIZE: %w", err)
		}
		c.Cache.MaxSize = val
	}
	if ttl := os.Getenv("CHAINPROBE_CACHE_TTL"); ttl != "" {
		duration, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_CACHE_TTL: %w", err)
		}
		c.Cache.DefaultTTL = duration
	}

	// Search configuration
	if maxConcurrent := os.Getenv("CHAINPROBE_SEARCH_MAX_CONCURRENT"); maxConcurrent != "" {
		val, err := strconv.Atoi(maxConcurrent)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_SEARCH_MAX_CONCURRENT: %w", err)
		}
		c.Search.MaxConcurrent = val
	}
	if history := os.Getenv("CHAINPROBE_SEARCH_HISTORY"); history != "" {
		val, err := strconv.Atoi(history)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_SEARCH_HISTORY: %w", err)
		}
		c.Search.HistoryLimit = val
	}
	if window := os.Getenv("CHAINPROBE_BRIDGE_BLOCK_WINDOW"); window != "" {
		val, err := strconv.ParseUint(window, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_BRIDGE_BLOCK_WINDOW: %w", err)
		}
		c.Search.BridgeBlockWindow = val
	}
	if window := os.Getenv("CHAINPROBE_BRIDGE_NONCE_WINDOW"); window != "" {
		val, err := strconv.ParseUint(window, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_BRIDGE_NONCE_WINDOW: %w", err)
		}
		c.Search.BridgeNonceWindow = val
	}

	// API configuration
	if host := os.Getenv("CHAINPROBE_API_HOST"); host != "" {
		c.API.Host = host
	}
	if port := os.Getenv("CHAINPROBE_API_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_API_PORT: %w", err)
		}
		c.API.Port = val
	}
	if enableGraphQL := os.Getenv("CHAINPROBE_API_GRAPHQL"); enableGraphQL != "" {
		val, err := strconv.ParseBool(enableGraphQL)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_API_GRAPHQL: %w", err)
		}
		c.API.EnableGraphQL = val
	}
	if enableJSONRPC := os.Getenv("CHAINPROBE_API_JSONRPC"); enableJSONRPC != "" {
		val, err := strconv.ParseBool(enableJSONRPC)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_API_JSONRPC: %w", err)
		}
		c.API.EnableJSONRPC = val
	}
	if enableWebSocket := os.Getenv("CHAINPROBE_API_WEBSOCKET"); enableWebSocket != "" {
		val, err := strconv.ParseBool(enableWebSocket)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_API_WEBSOCKET: %w", err)
		}
		c.API.EnableWebSocket = val
	}
	if enableCORS := os.Getenv("CHAINPROBE_API_CORS"); enableCORS != "" {
		val, err := strconv.ParseBool(enableCORS)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_API_CORS: %w", err)
		}
		c.API.EnableCORS = val
	}
	if origins := os.Getenv("CHAINPROBE_API_ALLOWED_ORIGINS"); origins != "" {
		c.API.AllowedOrigins = splitList(origins)
	}
	if rateLimit := os.Getenv("CHAINPROBE_API_RATE_LIMIT"); rateLimit != "" {
		val, err := strconv.ParseFloat(rateLimit, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAINPROBE_API_RATE_LIMIT: %w", err)
		}
		c.API.RateLimitPerSecond = val
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	// Validate RPC configuration
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.RPC.RateLimit < 0 {
		return fmt.Errorf("RPC rate limit cannot be negative")
	}
	if c.RPC.RateBurst < 0 {
		return fmt.Errorf("RPC rate burst cannot be negative")
	}

	// Validate database configuration
	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.CacheMB < 0 {
		return fmt.Errorf("database cache size cannot be negative")
	}

	// Validate log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	// Validate cache configuration
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.Cache.DefaultTTL < 0 {
		return fmt.Errorf("cache TTL cannot be negative")
	}

	// Validate search configuration
	if c.Search.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent searches must be positive")
	}
	if c.Search.HistoryLimit < 0 {
		return fmt.Errorf("search history limit cannot be negative")
	}

	// Validate API configuration
	if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
		return fmt.Errorf("invalid API port %d, must be between %d and %d", c.API.Port, constants.MinPort, constants.MaxPort)
	}
	if c.API.RateLimitPerSecond < 0 {
		return fmt.Errorf("API rate limit cannot be negative")
	}

	// Validate storage entries
	if _, err := c.StorageRegistryEntries(); err != nil {
		return err
	}

	return nil
}

// StorageRegistryEntries converts the configured storage entries for the key registry
func (c *Config) StorageRegistryEntries() ([]substrate.Entry, error) {
	entries := make([]substrate.Entry, 0, len(c.StorageEntries))
	for i, ec := range c.StorageEntries {
		if ec.Pallet == "" || ec.Item == "" {
			return nil, fmt.Errorf("storage entry %d: pallet and item are required", i)
		}
		entry := substrate.Entry{Pallet: ec.Pallet, Item: ec.Item}
		for _, ac := range ec.Args {
			hasher, err := substrate.ParseHasher(ac.Hasher)
			if err != nil {
				return nil, fmt.Errorf("storage entry %s.%s: %w", ec.Pallet, ec.Item, err)
			}
			entry.Args = append(entry.Args, substrate.ArgSpec{
				Name:   ac.Name,
				Hasher: hasher,
				Length: ac.Length,
			})
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Address returns the host:port the API server listens on
func (c *APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from file (optional) and environment, applies defaults
// and validates the result
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Set defaults for any missing values
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
