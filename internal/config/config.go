package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration. It is built once by Load and
// treated as read-only afterwards.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Chain    ChainConfig    `yaml:"chain"`
	Log      LogConfig      `yaml:"log"`

	// OnboardRateLimit is requests per minute per client IP; 0 disables it.
	OnboardRateLimit int `yaml:"onboard_rate_limit"`
	// TrustForwardedFor lets the rate limiter key on X-Forwarded-For. Enable
	// only when a proxy in front of the service sets that header.
	TrustForwardedFor bool  `yaml:"trust_forwarded_for"`
	SnowflakeNode     int64 `yaml:"snowflake_node"`
}

type DatabaseConfig struct {
	// URL empty means no datastore is bound.
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	TimeZone string `yaml:"timezone"`
}

type AuthConfig struct {
	TeamDomain       string        `yaml:"team_domain"`
	Audiences        []string      `yaml:"audiences"`
	SubjectAllowlist []string      `yaml:"subject_allowlist"`
	EmailAllowlist   []string      `yaml:"email_allowlist"`
	BypassLocal      bool          `yaml:"bypass_local"`
	KeySetCacheTTL   time.Duration `yaml:"jwks_cache_ttl"`
}

type ChainConfig struct {
	ID   int64  `yaml:"id"`
	Slug string `yaml:"slug"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
	File  string `yaml:"file"`
}

// VerificationConfigured reports whether tokens can be checked against an issuer.
func (a AuthConfig) VerificationConfigured() bool {
	return a.TeamDomain != "" && len(a.Audiences) > 0
}

// Issuer returns the expected iss claim. A team domain that already carries a
// scheme is used as-is.
func (a AuthConfig) Issuer() string {
	d := strings.TrimRight(strings.TrimSpace(a.TeamDomain), "/")
	if d == "" {
		return ""
	}
	if strings.HasPrefix(d, "https://") || strings.HasPrefix(d, "http://") {
		return d
	}
	return "https://" + d
}

// KeySetURL returns the location of the issuer's published signing keys.
func (a AuthConfig) KeySetURL() string {
	return a.Issuer() + "/cdn-cgi/access/certs"
}

func defaults() *Config {
	return &Config{
		HTTPAddr: "0.0.0.0:8431",
		Database: DatabaseConfig{MaxConns: 5},
		Chain:    ChainConfig{ID: 11155111, Slug: "sepolia"},
		Log:      LogConfig{Level: "info"},

		OnboardRateLimit: 30,
		SnowflakeNode:    1,
	}
}

// Load reads .env (if present), an optional YAML file named by CONFIG_FILE and
// then environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	// best-effort: a missing .env is fine
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Auth.SubjectAllowlist = normalizeList(cfg.Auth.SubjectAllowlist, false)
	cfg.Auth.EmailAllowlist = normalizeList(cfg.Auth.EmailAllowlist, true)
	cfg.Auth.Audiences = normalizeList(cfg.Auth.Audiences, false)
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConns = getEnvInt("DATABASE_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.TimeZone = getEnv("DATABASE_TIMEZONE", cfg.Database.TimeZone)

	cfg.Auth.TeamDomain = getEnv("CF_ACCESS_TEAM_DOMAIN", cfg.Auth.TeamDomain)
	cfg.Auth.Audiences = getEnvList("CF_ACCESS_AUD", cfg.Auth.Audiences)
	cfg.Auth.SubjectAllowlist = getEnvList("ADMIN_SUBJECT_ALLOWLIST", cfg.Auth.SubjectAllowlist)
	cfg.Auth.EmailAllowlist = getEnvList("ADMIN_EMAIL_ALLOWLIST", cfg.Auth.EmailAllowlist)
	cfg.Auth.BypassLocal = getEnvBool("ADMIN_AUTH_BYPASS_LOCAL", cfg.Auth.BypassLocal)
	if v := os.Getenv("JWKS_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("JWKS_CACHE_TTL: %w", err)
		}
		cfg.Auth.KeySetCacheTTL = d
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAIN_ID: %w", err)
		}
		cfg.Chain.ID = id
	}
	cfg.Chain.Slug = getEnv("CHAIN_SLUG", cfg.Chain.Slug)

	cfg.Log.Dev = getEnvBool("LOG_DEV", cfg.Log.Dev)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	if cfg.Log.Dev && os.Getenv("LOG_LEVEL") == "" {
		cfg.Log.Level = "debug"
	}
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.OnboardRateLimit = getEnvInt("ONBOARD_RATE_LIMIT", cfg.OnboardRateLimit)
	cfg.TrustForwardedFor = getEnvBool("TRUST_FORWARDED_FOR", cfg.TrustForwardedFor)
	if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SnowflakeNode = n
		}
	}
	return nil
}

// ParseList splits a comma-separated value, trimming blanks.
func ParseList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if lower {
			v = strings.ToLower(v)
		}
		out = append(out, v)
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultVal
	}
}

func getEnvList(key string, defaultVal []string) []string {
	if val, ok := os.LookupEnv(key); ok {
		return ParseList(val)
	}
	return defaultVal
}
