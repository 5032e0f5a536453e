package keyset

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the deployable configuration of the pagination engine, loaded
// from a YAML file at process startup and read-only afterwards.
//
// The cursor secret itself never lives in the file: secret_env names the
// environment variable holding it, so config files stay safe to commit.
type Config struct {
	Cursor struct {
		SecretEnv string `yaml:"secret_env"`
		TTLHours  int    `yaml:"ttl_hours"`
	} `yaml:"cursor"`
	Limits struct {
		Max int `yaml:"max"`
	} `yaml:"limits"`
}

// LoadConfig loads and validates engine configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err = yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err = config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Cursor.SecretEnv == "" {
		return fmt.Errorf("cursor secret_env is required")
	}

	if c.Cursor.TTLHours < 0 {
		return fmt.Errorf("cursor ttl_hours cannot be negative")
	}

	if c.Limits.Max != 0 && (c.Limits.Max < MinLimit || c.Limits.Max > MaxLimit) {
		return fmt.Errorf("limits max must be within [%d, %d]", MinLimit, MaxLimit)
	}

	return nil
}

// Secret resolves the cursor secret from the configured environment
// variable. Length requirements are enforced by NewCodec.
func (c *Config) Secret() (string, error) {
	secret := os.Getenv(c.Cursor.SecretEnv)
	if secret == "" {
		return "", fmt.Errorf("environment variable %s is empty", c.Cursor.SecretEnv)
	}

	return secret, nil
}

// TTL returns the configured cursor lifetime, DefaultTTL when unset.
func (c *Config) TTL() time.Duration {
	if c.Cursor.TTLHours == 0 {
		return DefaultTTL
	}

	return time.Duration(c.Cursor.TTLHours) * time.Hour
}

// MaxPageLimit returns the configured per-page cap, MaxLimit when unset.
func (c *Config) MaxPageLimit() int {
	if c.Limits.Max == 0 {
		return MaxLimit
	}

	return c.Limits.Max
}

// NewCodec builds the cursor codec from the resolved secret and TTL.
func (c *Config) NewCodec() (*Codec, error) {
	secret, err := c.Secret()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve cursor secret: %w", err)
	}

	return NewCodec(secret, WithTTL(c.TTL()))
}
