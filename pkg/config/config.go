package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when CONFIG_FILE is unset and the file exists.
const DefaultConfigFile = "configs/config.yaml"

// Config is the service configuration. Values come from the YAML file first
// and are then overridden by the environment.
type Config struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`

	// DatabaseURL selects Postgres. When empty the SQLite file at DataPath
	// is used.
	DatabaseURL string `yaml:"database_url"`
	DataPath    string `yaml:"data_path"`
	UseKeyring  bool   `yaml:"use_keyring"`

	JWTSecret       string `yaml:"jwt_secret"`
	APIMasterSecret string `yaml:"api_master_secret"`
	AdminUsername   string `yaml:"admin_username"`
	AdminPassword   string `yaml:"admin_password"`

	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`

	IntegritySchedule  string `yaml:"integrity_schedule"`
	IntegrityAutoClean bool   `yaml:"integrity_auto_clean"`

	Timezone string `yaml:"timezone"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:              "8000",
		DataPath:          "odp_scheduler.db",
		AdminUsername:     "admin",
		AdminPassword:     "admin123",
		CacheTTL:          3 * time.Second,
		CacheSize:         256,
		IntegritySchedule: "@every 15m",
		Timezone:          "UTC",
		LogLevel:          "info",
		MetricsEnabled:    true,
	}
}

// LoadDotEnv loads the first .env found in the working directory or its
// parents.
func LoadDotEnv() {
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}
}

// Load reads .env, the optional YAML file and the environment.
func Load() (Config, error) {
	LoadDotEnv()

	cfg := Default()
	path := os.Getenv("CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" && cfg.UseKeyring {
		dsn, err := ConnectionString()
		switch {
		case err == nil:
			cfg.DatabaseURL = dsn
		case errors.Is(err, ErrNotFound):
		default:
			return Config{}, err
		}
	}
	return cfg, cfg.Validate()
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from getenv and reports every invalid value at
// once.
func (c *Config) applyEnv(getenv func(string) string) error {
	invalid := make([]string, 0, 4)
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				invalid = append(invalid, key)
				return
			}
			*dst = b
		}
	}

	str("PORT", &c.Port)
	str("GIN_MODE", &c.GinMode)
	str("DATABASE_URL", &c.DatabaseURL)
	str("DATA_PATH", &c.DataPath)
	boolean("USE_KEYRING", &c.UseKeyring)
	str("JWT_SECRET", &c.JWTSecret)
	str("API_MASTER_SECRET", &c.APIMasterSecret)
	str("ADMIN_USERNAME", &c.AdminUsername)
	str("ADMIN_PASSWORD", &c.AdminPassword)
	str("INTEGRITY_SCHEDULE", &c.IntegritySchedule)
	boolean("INTEGRITY_AUTO_CLEAN", &c.IntegrityAutoClean)
	str("TIMEZONE", &c.Timezone)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FILE", &c.LogFile)
	boolean("METRICS_ENABLED", &c.MetricsEnabled)

	if v := strings.TrimSpace(getenv("CACHE_TTL")); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl < 0 {
			invalid = append(invalid, "CACHE_TTL")
		} else {
			c.CacheTTL = ttl
		}
	}
	if v := strings.TrimSpace(getenv("CACHE_SIZE")); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			invalid = append(invalid, "CACHE_SIZE")
		} else {
			c.CacheSize = size
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("config: invalid values for %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Validate checks values that cannot be fixed by defaults.
func (c Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone %q: %w", c.Timezone, err))
	}
	if c.DatabaseURL == "" && c.DataPath == "" {
		errs = append(errs, errors.New("config: one of database_url or data_path is required"))
	}
	if c.CacheSize <= 0 {
		errs = append(errs, errors.New("config: cache_size must be positive"))
	}
	return errors.Join(errs...)
}

// Location returns the configured time zone, UTC when it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
