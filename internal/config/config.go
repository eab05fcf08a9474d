// Package config assembles the authority's named configuration options from
// defaults, the environment and an optional .env file.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Provider selects the key backend behind the factory.
type Provider string

const (
	// ProviderThreshold backs keys with the external threshold-signing
	// network.
	ProviderThreshold Provider = "threshold"
	// ProviderSecretShare custodies locally generated secret-shared keys
	// with a bounded lifetime.
	ProviderSecretShare Provider = "secretshare"
)

// Config carries every named option with stated effects. Zero values are
// filled in by Defaults.
type Config struct {
	// Provider picks the backend variant at construction time.
	Provider Provider
	// Network names the signing-network environment to target.
	Network string
	// ChainID is the chain bound into session challenges.
	ChainID int
	// Domain and SessionURI identify this authority inside the canonical
	// challenge statement.
	Domain     string
	SessionURI string
	// SessionStatement is the human-readable statement subjects sign.
	SessionStatement string
	// MinterPrivateKey (hex) authorizes network-level minting operations.
	MinterPrivateKey string
	// MaxSessionTTL is the hard horizon for credential expiration.
	MaxSessionTTL time.Duration
	// Capacity grant defaults used when a session supplies no grant.
	CapacityRequestsPerKilosecond int
	CapacityValidDays             int
	// RedisAddr, when set, switches the registry store to redis.
	RedisAddr string
	// TokenSecret keys the HS256 encoding of session credentials.
	TokenSecret string
	// SecretShareTTL bounds the lifetime of secret-share custody keys.
	SecretShareTTL time.Duration
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Provider:                      ProviderThreshold,
		Network:                       "datil-dev",
		ChainID:                       1,
		Domain:                        "key-authority.kashguard.dev",
		SessionURI:                    "urn:key-authority:session",
		SessionStatement:              "Generate a session credential",
		MaxSessionTTL:                 5 * time.Minute,
		CapacityRequestsPerKilosecond: 10,
		CapacityValidDays:             7,
		SecretShareTTL:                30 * 24 * time.Hour,
	}
}

// FromEnv loads configuration from the environment (prefix KEY_AUTHORITY_),
// after loading a .env file when one is present.
func FromEnv() (Config, error) {
	_ = gotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("KEY_AUTHORITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Defaults()
	v.SetDefault("provider", string(def.Provider))
	v.SetDefault("network", def.Network)
	v.SetDefault("chain_id", def.ChainID)
	v.SetDefault("domain", def.Domain)
	v.SetDefault("session_uri", def.SessionURI)
	v.SetDefault("session_statement", def.SessionStatement)
	v.SetDefault("minter_private_key", "")
	v.SetDefault("max_session_ttl", def.MaxSessionTTL)
	v.SetDefault("capacity_requests_per_kilosecond", def.CapacityRequestsPerKilosecond)
	v.SetDefault("capacity_valid_days", def.CapacityValidDays)
	v.SetDefault("redis_addr", "")
	v.SetDefault("token_secret", "")
	v.SetDefault("secret_share_ttl", def.SecretShareTTL)

	cfg := Config{
		Provider:                      Provider(v.GetString("provider")),
		Network:                       v.GetString("network"),
		ChainID:                       v.GetInt("chain_id"),
		Domain:                        v.GetString("domain"),
		SessionURI:                    v.GetString("session_uri"),
		SessionStatement:              v.GetString("session_statement"),
		MinterPrivateKey:              v.GetString("minter_private_key"),
		MaxSessionTTL:                 v.GetDuration("max_session_ttl"),
		CapacityRequestsPerKilosecond: v.GetInt("capacity_requests_per_kilosecond"),
		CapacityValidDays:             v.GetInt("capacity_valid_days"),
		RedisAddr:                     v.GetString("redis_addr"),
		TokenSecret:                   v.GetString("token_secret"),
		SecretShareTTL:                v.GetDuration("secret_share_ttl"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the factory cannot act on.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderThreshold, ProviderSecretShare:
	default:
		return errors.Errorf("unknown provider %q", c.Provider)
	}
	if c.MaxSessionTTL <= 0 {
		return errors.New("max session TTL must be positive")
	}
	if c.CapacityRequestsPerKilosecond <= 0 {
		return errors.New("capacity requests per kilosecond must be positive")
	}
	if c.CapacityValidDays <= 0 {
		return errors.New("capacity validity days must be positive")
	}
	return nil
}
