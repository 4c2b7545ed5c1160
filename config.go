package searchrouter

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Ledger drivers.
const (
	LedgerFile     = "file"
	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerBadger   = "badger"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

// DefaultLedgerPath is the JSON ledger location used when none is configured.
const DefaultLedgerPath = ".search_quotas.json"

// Config is the top-level dispatcher configuration.
type Config struct {
	Ledger         LedgerConfig    `yaml:"ledger"`
	Defaults       DefaultsConfig  `yaml:"defaults"`
	WorkerPool     int             `yaml:"worker_pool"`
	CircuitBreaker bool            `yaml:"circuit_breaker"`
	Backends       []BackendConfig `yaml:"backends"`
	Strategies     []Strategy      `yaml:"strategies"`
	Auto           AutoConfig      `yaml:"auto"`
}

// LedgerConfig selects and locates the quota ledger.
type LedgerConfig struct {
	Driver string `yaml:"driver"`
	// DSN is a file path (file, sqlite, badger), a redis:// URL or a postgres DSN.
	DSN string `yaml:"dsn"`
}

// DefaultsConfig holds per-request defaults.
type DefaultsConfig struct {
	Strategy    string        `yaml:"strategy"`
	MaxResults  int           `yaml:"max_results"`
	Deadline    time.Duration `yaml:"deadline"`
	CancelGrace time.Duration `yaml:"cancel_grace"`
}

// BackendConfig configures a single search backend.
type BackendConfig struct {
	Name       string `yaml:"name"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	NumResults int    `yaml:"num_results"`
	// Limit is the monthly budget. nil keeps the built-in default; -1 is unlimited.
	Limit *int64 `yaml:"limit"`
}

// AutoConfig configures how StrategyAuto is resolved. Empty tiers keep the
// built-in serpapi → tavily → free_only cascade.
type AutoConfig struct {
	// Strategy pins auto to one strategy and disables the cascade.
	Strategy string     `yaml:"strategy"`
	Tiers    []AutoTier `yaml:"tiers"`
	Fallback string     `yaml:"fallback"`
}

// AutoTier selects Strategy while Backend is available.
type AutoTier struct {
	Backend  string `yaml:"backend"`
	Strategy string `yaml:"strategy"`
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("searchrouter: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes, expanding ${VAR} references first.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("searchrouter: parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Ledger.Driver == "" {
		c.Ledger.Driver = LedgerFile
	}
	if c.Ledger.Driver == LedgerFile && c.Ledger.DSN == "" {
		c.Ledger.DSN = DefaultLedgerPath
	}
	if c.Defaults.Strategy == "" {
		c.Defaults.Strategy = StrategyAuto
	}
	if c.Defaults.MaxResults == 0 {
		c.Defaults.MaxResults = DefaultMaxResults
	}
	if c.Defaults.Deadline == 0 {
		c.Defaults.Deadline = DefaultDeadline
	}
	if c.Defaults.CancelGrace == 0 {
		c.Defaults.CancelGrace = DefaultCancelGrace
	}
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("searchrouter: config: at least one backend is required")
	}

	switch c.Ledger.Driver {
	case LedgerFile, LedgerMemory:
	case LedgerSQLite, LedgerBadger, LedgerRedis, LedgerPostgres:
		if c.Ledger.DSN == "" {
			return fmt.Errorf("searchrouter: config: ledger %q: dsn is required", c.Ledger.Driver)
		}
	default:
		return fmt.Errorf("searchrouter: config: unknown ledger driver %q", c.Ledger.Driver)
	}

	if c.Defaults.MaxResults < 0 {
		return fmt.Errorf("searchrouter: config: defaults.max_results must not be negative")
	}
	if c.Defaults.Deadline < 0 {
		return fmt.Errorf("searchrouter: config: defaults.deadline must not be negative")
	}
	if c.WorkerPool < 0 {
		return fmt.Errorf("searchrouter: config: worker_pool must not be negative")
	}

	names := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("searchrouter: config: backends[%d]: name is required", i)
		}
		if names[b.Name] {
			return fmt.Errorf("searchrouter: config: duplicate backend %q", b.Name)
		}
		names[b.Name] = true

		if b.Limit != nil && *b.Limit < Unlimited {
			return fmt.Errorf("searchrouter: config: backends[%d] (%s): limit must be >= -1", i, b.Name)
		}
	}

	catalog, err := c.Catalog()
	if err != nil {
		return fmt.Errorf("searchrouter: config: %w", err)
	}
	if s := c.Defaults.Strategy; s != "" && s != StrategyAuto {
		if _, ok := catalog.Lookup(s); !ok {
			return fmt.Errorf("searchrouter: config: defaults.strategy: %w %q", ErrUnknownStrategy, s)
		}
	}
	if p := c.Auto.Strategy; p != "" {
		if _, ok := catalog.Lookup(p); !ok {
			return fmt.Errorf("searchrouter: config: auto.strategy: %w %q", ErrUnknownStrategy, p)
		}
	}
	for i, t := range c.Auto.Tiers {
		if t.Backend == "" {
			return fmt.Errorf("searchrouter: config: auto.tiers[%d]: backend is required", i)
		}
		if _, ok := catalog.Lookup(t.Strategy); !ok {
			return fmt.Errorf("searchrouter: config: auto.tiers[%d]: %w %q", i, ErrUnknownStrategy, t.Strategy)
		}
	}
	if f := c.Auto.Fallback; f != "" {
		if _, ok := catalog.Lookup(f); !ok {
			return fmt.Errorf("searchrouter: config: auto.fallback: %w %q", ErrUnknownStrategy, f)
		}
	}
	return nil
}

// Catalog builds the strategy catalog: the configured strategies, or the
// built-in ones when none are configured.
func (c Config) Catalog() (*Catalog, error) {
	if len(c.Strategies) == 0 {
		return DefaultCatalog(), nil
	}
	return NewCatalog(c.Strategies...)
}

// Limits returns the monthly limits: built-in defaults overridden by configured ones.
func (c Config) Limits() map[string]int64 {
	limits := DefaultLimits()
	for _, b := range c.Backends {
		if b.Limit != nil {
			limits[b.Name] = *b.Limit
		}
	}
	return limits
}

// Backend returns the configuration of the named backend.
func (c Config) Backend(name string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendConfig{}, false
}
