// Package secrets fetches webhook secrets from an external store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when the store has no secret under the requested id.
var ErrNotFound = errors.New("secret not found")

// Store returns the current value of a secret.
type Store interface {
	GetSecret(ctx context.Context, id string) (string, error)
}

// StoreFunc adapts a function to a Store.
type StoreFunc func(ctx context.Context, id string) (string, error)

// GetSecret calls f.
func (f StoreFunc) GetSecret(ctx context.Context, id string) (string, error) {
	return f(ctx, id)
}

// Config selects and configures a Store.
type Config struct {
	// Driver is one of aws, env or static.
	Driver string `yaml:"driver"`

	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	VersionStage string `yaml:"version_stage"`

	// EnvPrefix is prepended to the derived variable name for the env driver.
	EnvPrefix string `yaml:"env_prefix"`
	// Value is returned for every id by the static driver.
	Value string `yaml:"value"`

	CacheTTLMS int64 `yaml:"cache_ttl_ms"`
	CacheSize  int   `yaml:"cache_size"`
}

// New builds the Store described by cfg, wrapped in a cache when CacheTTLMS is set.
func New(cfg Config) (Store, error) {
	var store Store
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "aws", "secretsmanager":
		awsStore, err := NewAWSStore(AWSConfig{
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			VersionStage: cfg.VersionStage,
		})
		if err != nil {
			return nil, fmt.Errorf("secretsmanager: %w", err)
		}
		store = awsStore
	case "env":
		store = NewEnvStore(cfg.EnvPrefix)
	case "static":
		if cfg.Value == "" {
			return nil, errors.New("static secret value is required")
		}
		store = StaticStore(cfg.Value)
	default:
		return nil, fmt.Errorf("unsupported secrets driver: %s", cfg.Driver)
	}

	if cfg.CacheTTLMS > 0 {
		store = NewCachedStore(store, cfg.CacheSize, time.Duration(cfg.CacheTTLMS)*time.Millisecond)
	}
	return store, nil
}

// StaticStore returns the same secret for every id. Useful for local runs and tests.
type StaticStore string

// GetSecret returns s.
func (s StaticStore) GetSecret(context.Context, string) (string, error) {
	return string(s), nil
}
