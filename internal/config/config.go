package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/pelletier/go-toml/v2"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Config holds application configuration
type Config struct {
	ServerPort string

	DatabaseType string
	DatabaseURL  string
	DatabasePath string

	LogMode     string
	LogHashSalt string

	RedisAddr    string
	LeaseTTL     time.Duration
	LeaseMaxWait time.Duration
	LeaseBackoff time.Duration

	Oracle OracleConfig

	JWTSecret         string
	FingerprintSecret string

	PuzzleEpoch     civil.Date
	PuzzleTimeZone  string
	PuzzleLocation  *time.Location
	DailyTimeLimit  time.Duration
	ArchiveFreeDays int

	RateLimitRPS   float64
	RateLimitBurst int

	AWSRegion      string
	AuditFromEmail string
	AuditToEmail   string

	TraceExporter string
	SweepInterval time.Duration
}

// OracleConfig configures the generative oracle client and its call policy.
type OracleConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	RPS         float64
	ContextSize int
}

// fileConfig mirrors the optional TOML file. Durations are strings ("20s").
type fileConfig struct {
	Server struct {
		Port string `toml:"port"`
	} `toml:"server"`
	Database struct {
		Type string `toml:"type"`
		URL  string `toml:"url"`
		Path string `toml:"path"`
	} `toml:"database"`
	Log struct {
		Mode     string `toml:"mode"`
		HashSalt string `toml:"hash_salt"`
	} `toml:"log"`
	Lease struct {
		RedisAddr string `toml:"redis_addr"`
		TTL       string `toml:"ttl"`
		MaxWait   string `toml:"max_wait"`
		Backoff   string `toml:"backoff"`
	} `toml:"lease"`
	Oracle struct {
		BaseURL     string  `toml:"base_url"`
		APIKey      string  `toml:"api_key"`
		Model       string  `toml:"model"`
		Timeout     string  `toml:"timeout"`
		MaxRetries  *int    `toml:"max_retries"`
		RPS         float64 `toml:"rps"`
		ContextSize int     `toml:"context_size"`
	} `toml:"oracle"`
	Auth struct {
		JWTSecret         string `toml:"jwt_secret"`
		FingerprintSecret string `toml:"fingerprint_secret"`
	} `toml:"auth"`
	Puzzle struct {
		Epoch           string `toml:"epoch"`
		TimeZone        string `toml:"timezone"`
		DailyTimeLimit  string `toml:"daily_time_limit"`
		ArchiveFreeDays int    `toml:"archive_free_days"`
		SweepInterval   string `toml:"sweep_interval"`
	} `toml:"puzzle"`
	RateLimit struct {
		RPS   float64 `toml:"rps"`
		Burst int     `toml:"burst"`
	} `toml:"rate_limit"`
	Audit struct {
		AWSRegion string `toml:"aws_region"`
		FromEmail string `toml:"from_email"`
		ToEmail   string `toml:"to_email"`
	} `toml:"audit"`
	Trace struct {
		Exporter string `toml:"exporter"`
	} `toml:"trace"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		ServerPort:   "8080",
		DatabaseType: "sqlite",
		DatabasePath: "./dailyalchemy.db",
		LogMode:      "development",
		LeaseTTL:     60 * time.Second,
		LeaseMaxWait: 5 * time.Second,
		LeaseBackoff: 50 * time.Millisecond,
		Oracle: OracleConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4.1-mini",
			Timeout:     20 * time.Second,
			MaxRetries:  2,
			RPS:         5,
			ContextSize: 40,
		},
		PuzzleEpoch:     civil.Date{Year: 2026, Month: time.January, Day: 23},
		PuzzleTimeZone:  "UTC",
		PuzzleLocation:  time.UTC,
		DailyTimeLimit:  600 * time.Second,
		ArchiveFreeDays: 4,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
		AWSRegion:       "us-east-1",
		TraceExporter:   "none",
		SweepInterval:   time.Minute,
	}
}

// Load reads configuration from defaults, then an optional TOML file named by
// CONFIG_FILE, then environment variables.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom is Load with an explicit config file path. An empty path skips the
// file layer.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.ServerPort, fc.Server.Port)
	setString(&c.DatabaseType, fc.Database.Type)
	setString(&c.DatabaseURL, fc.Database.URL)
	setString(&c.DatabasePath, fc.Database.Path)
	setString(&c.LogMode, fc.Log.Mode)
	setString(&c.LogHashSalt, fc.Log.HashSalt)
	setString(&c.RedisAddr, fc.Lease.RedisAddr)
	setString(&c.Oracle.BaseURL, fc.Oracle.BaseURL)
	setString(&c.Oracle.APIKey, fc.Oracle.APIKey)
	setString(&c.Oracle.Model, fc.Oracle.Model)
	setString(&c.JWTSecret, fc.Auth.JWTSecret)
	setString(&c.FingerprintSecret, fc.Auth.FingerprintSecret)
	setString(&c.PuzzleTimeZone, fc.Puzzle.TimeZone)
	setString(&c.AWSRegion, fc.Audit.AWSRegion)
	setString(&c.AuditFromEmail, fc.Audit.FromEmail)
	setString(&c.AuditToEmail, fc.Audit.ToEmail)
	setString(&c.TraceExporter, fc.Trace.Exporter)

	if fc.Oracle.MaxRetries != nil {
		c.Oracle.MaxRetries = *fc.Oracle.MaxRetries
	}
	if fc.Oracle.RPS > 0 {
		c.Oracle.RPS = fc.Oracle.RPS
	}
	if fc.Oracle.ContextSize > 0 {
		c.Oracle.ContextSize = fc.Oracle.ContextSize
	}
	if fc.Puzzle.ArchiveFreeDays > 0 {
		c.ArchiveFreeDays = fc.Puzzle.ArchiveFreeDays
	}
	if fc.RateLimit.RPS > 0 {
		c.RateLimitRPS = fc.RateLimit.RPS
	}
	if fc.RateLimit.Burst > 0 {
		c.RateLimitBurst = fc.RateLimit.Burst
	}

	durations := []struct {
		dst *time.Duration
		raw string
		key string
	}{
		{&c.LeaseTTL, fc.Lease.TTL, "lease.ttl"},
		{&c.LeaseMaxWait, fc.Lease.MaxWait, "lease.max_wait"},
		{&c.LeaseBackoff, fc.Lease.Backoff, "lease.backoff"},
		{&c.Oracle.Timeout, fc.Oracle.Timeout, "oracle.timeout"},
		{&c.DailyTimeLimit, fc.Puzzle.DailyTimeLimit, "puzzle.daily_time_limit"},
		{&c.SweepInterval, fc.Puzzle.SweepInterval, "puzzle.sweep_interval"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, d.raw, err)
		}
		*d.dst = v
	}

	if fc.Puzzle.Epoch != "" {
		epoch, err := civil.ParseDate(fc.Puzzle.Epoch)
		if err != nil {
			return fmt.Errorf("invalid puzzle.epoch %q: %w", fc.Puzzle.Epoch, err)
		}
		c.PuzzleEpoch = epoch
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.ServerPort = getEnv("PORT", c.ServerPort)
	c.DatabaseType = getEnv("DB_TYPE", c.DatabaseType)
	c.DatabaseURL = getEnv("DB_URL", c.DatabaseURL)
	c.DatabasePath = getEnv("DB_PATH", c.DatabasePath)
	c.LogMode = getEnv("LOG_MODE", c.LogMode)
	c.LogHashSalt = getEnv("LOG_HASH_SALT", c.LogHashSalt)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.Oracle.BaseURL = getEnv("ORACLE_BASE_URL", c.Oracle.BaseURL)
	c.Oracle.APIKey = getEnv("ORACLE_API_KEY", c.Oracle.APIKey)
	c.Oracle.Model = getEnv("ORACLE_MODEL", c.Oracle.Model)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.FingerprintSecret = getEnv("FINGERPRINT_SECRET", c.FingerprintSecret)
	c.PuzzleTimeZone = getEnv("PUZZLE_TIMEZONE", c.PuzzleTimeZone)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.AuditFromEmail = getEnv("AUDIT_FROM_EMAIL", c.AuditFromEmail)
	c.AuditToEmail = getEnv("AUDIT_TO_EMAIL", c.AuditToEmail)
	c.TraceExporter = getEnv("TRACE_EXPORTER", c.TraceExporter)

	var err error
	if c.LeaseTTL, err = getEnvDuration("LEASE_TTL", c.LeaseTTL); err != nil {
		return err
	}
	if c.LeaseMaxWait, err = getEnvDuration("LEASE_MAX_WAIT", c.LeaseMaxWait); err != nil {
		return err
	}
	if c.LeaseBackoff, err = getEnvDuration("LEASE_BACKOFF", c.LeaseBackoff); err != nil {
		return err
	}
	if c.Oracle.Timeout, err = getEnvDuration("ORACLE_TIMEOUT", c.Oracle.Timeout); err != nil {
		return err
	}
	if c.DailyTimeLimit, err = getEnvDuration("DAILY_TIME_LIMIT", c.DailyTimeLimit); err != nil {
		return err
	}
	if c.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", c.SweepInterval); err != nil {
		return err
	}

	c.Oracle.MaxRetries = getEnvInt("ORACLE_MAX_RETRIES", c.Oracle.MaxRetries)
	c.Oracle.ContextSize = getEnvInt("ORACLE_CONTEXT_SIZE", c.Oracle.ContextSize)
	c.Oracle.RPS = getEnvFloat("ORACLE_RPS", c.Oracle.RPS)
	c.ArchiveFreeDays = getEnvInt("ARCHIVE_FREE_DAYS", c.ArchiveFreeDays)
	c.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.RateLimitBurst)

	if v := os.Getenv("PUZZLE_EPOCH"); v != "" {
		epoch, err := civil.ParseDate(v)
		if err != nil {
			return fmt.Errorf("invalid PUZZLE_EPOCH %q: %w", v, err)
		}
		c.PuzzleEpoch = epoch
	}
	return nil
}

// Validate checks cross-field constraints and resolves the puzzle time zone.
func (c *Config) Validate() error {
	switch strings.ToLower(c.DatabaseType) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "mysql", "":
	default:
		return fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle timeout must be positive, got %s", c.Oracle.Timeout)
	}
	if c.Oracle.MaxRetries < 0 {
		return fmt.Errorf("oracle max retries must not be negative, got %d", c.Oracle.MaxRetries)
	}
	if min := c.Oracle.Timeout + 40*time.Second; c.LeaseTTL < min {
		return fmt.Errorf("lease TTL %s must be at least oracle timeout + 40s (%s)", c.LeaseTTL, min)
	}
	if c.LeaseMaxWait <= 0 || c.LeaseBackoff <= 0 {
		return fmt.Errorf("lease wait and backoff must be positive")
	}
	for key, addr := range map[string]string{"audit from": c.AuditFromEmail, "audit to": c.AuditToEmail} {
		if addr != "" && !emailRegex.MatchString(addr) {
			return fmt.Errorf("invalid %s email %q", key, addr)
		}
	}
	if !c.PuzzleEpoch.IsValid() {
		return fmt.Errorf("invalid puzzle epoch %v", c.PuzzleEpoch)
	}
	loc, err := time.LoadLocation(c.PuzzleTimeZone)
	if err != nil {
		return fmt.Errorf("invalid puzzle time zone %q: %w", c.PuzzleTimeZone, err)
	}
	c.PuzzleLocation = loc
	return nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return i
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
