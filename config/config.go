// Package config loads mealkitd settings from an optional YAML file
// overlaid by MEALKIT_* environment variables.
package config

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/PaulFidika/mealkit/ratelimit"
)

// EnvPrefix prefixes every environment variable, e.g. MEALKIT_DATABASE_URL.
const EnvPrefix = "mealkit"

type Config struct {
	ListenAddr     string `yaml:"listenAddr"     split_words:"true"`
	DatabaseURL    string `yaml:"databaseUrl"    envconfig:"DATABASE_URL"`
	DatabaseSchema string `yaml:"databaseSchema" split_words:"true"`
	// RedisURL empty uses the in-process cache and limiter.
	RedisURL string `yaml:"redisUrl" envconfig:"REDIS_URL"`

	// BeaconMasterSecret is hex; per-hall secrets are derived from it.
	BeaconMasterSecret  string        `yaml:"beaconMasterSecret"  split_words:"true"`
	TrustBeaconGeometry bool          `yaml:"trustBeaconGeometry" split_words:"true"`
	ScanTimeout         time.Duration `yaml:"scanTimeout"         split_words:"true"`
	ChallengeTTL        time.Duration `yaml:"challengeTtl"        envconfig:"CHALLENGE_TTL"`
	CacheTTL            time.Duration `yaml:"cacheTtl"            envconfig:"CACHE_TTL"`
	CacheFlushSchedule  string        `yaml:"cacheFlushSchedule"  split_words:"true"`

	JWTKeysPath string `yaml:"jwtKeysPath" envconfig:"JWT_KEYS_PATH"`
	JWKSURL     string `yaml:"jwksUrl"     envconfig:"JWKS_URL"`
	JWTIssuer   string `yaml:"jwtIssuer"   envconfig:"JWT_ISSUER"`
	JWTAudience string `yaml:"jwtAudience" envconfig:"JWT_AUDIENCE"`

	MetricsEnabled bool `yaml:"metricsEnabled" split_words:"true"`
	QueueWorkers   int  `yaml:"queueWorkers"   split_words:"true"`

	LogLevel  string `yaml:"logLevel"  split_words:"true"`
	LogFormat string `yaml:"logFormat" split_words:"true"`

	RateLimits map[string]ratelimit.Limit `yaml:"rateLimits" ignored:"true"`
}

type ctxKey struct{}

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(ctxKey{}).(*Config)
	return cfg
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		ListenAddr:         ":8080",
		DatabaseSchema:     "mealkit",
		ScanTimeout:        5 * time.Second,
		ChallengeTTL:       2 * time.Minute,
		CacheTTL:           5 * time.Minute,
		CacheFlushSchedule: "@every 15m",
		MetricsEnabled:     true,
		QueueWorkers:       4,
		LogLevel:           "info",
		LogFormat:          "json",
		RateLimits:         ratelimit.Defaults(),
	}
}

// Load reads path (if non-empty), then applies the environment, then
// validates. Rate limits from the file replace the defaults per bucket.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		limits := cfg.RateLimits
		cfg.RateLimits = nil
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		for bucket, lim := range cfg.RateLimits {
			limits[bucket] = lim
		}
		cfg.RateLimits = limits
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if _, err := c.MasterSecret(); err != nil {
		return err
	}
	if c.JWTKeysPath == "" && c.JWKSURL == "" {
		return errors.New("config: one of jwtKeysPath or jwksUrl is required")
	}
	if c.ScanTimeout <= 0 {
		return errors.New("config: scanTimeout must be positive")
	}
	if c.CacheFlushSchedule != "" {
		if _, err := cron.ParseStandard(c.CacheFlushSchedule); err != nil {
			return fmt.Errorf("config: cacheFlushSchedule: %w", err)
		}
	}
	for bucket, lim := range c.RateLimits {
		if lim.Limit <= 0 || lim.Window <= 0 {
			return fmt.Errorf("config: rate limit %q needs a positive limit and window", bucket)
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: logLevel: %w", err)
	}
	return nil
}

// MasterSecret decodes BeaconMasterSecret. At least 32 bytes are required.
func (c *Config) MasterSecret() ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(c.BeaconMasterSecret))
	if err != nil {
		return nil, fmt.Errorf("config: beaconMasterSecret must be hex: %w", err)
	}
	if len(raw) < 32 {
		return nil, errors.New("config: beaconMasterSecret must be at least 32 bytes")
	}
	return raw, nil
}

// Logger builds the process logger from LogLevel and LogFormat.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if c.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}
