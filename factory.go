package keyauthority

import (
	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-key-authority/internal/capacity"
	"github.com/kashguard/go-key-authority/internal/config"
	"github.com/kashguard/go-key-authority/internal/delegation"
	"github.com/kashguard/go-key-authority/internal/gateway"
	"github.com/kashguard/go-key-authority/internal/keystore"
	"github.com/kashguard/go-key-authority/internal/metrics"
	"github.com/kashguard/go-key-authority/internal/network"
	"github.com/kashguard/go-key-authority/internal/registry"
	"github.com/kashguard/go-key-authority/internal/session"
)

type options struct {
	client     network.Client
	store      registry.Store
	clock      time2.Clock
	registerer prometheus.Registerer
}

// Option customizes construction.
type Option func(*options)

// WithNetworkClient injects the threshold-signing network client. Required
// for the threshold backend; the transport itself is not part of this
// library.
func WithNetworkClient(client network.Client) Option {
	return func(o *options) { o.client = client }
}

// WithStore overrides the registry store selected from configuration.
func WithStore(store registry.Store) Option {
	return func(o *options) { o.store = store }
}

// WithClock overrides the wall clock, for tests.
func WithClock(clock time2.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithRegisterer registers the authority's prometheus collectors. Without
// it the collectors exist but are not exported anywhere.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New selects and constructs the backend variant named by cfg.Provider
// behind the uniform Provider interface.
func New(cfg Config, opts ...Option) (*Authority, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	clock := o.clock
	if clock == nil {
		clock = time2.DefaultClock
	}

	store := o.store
	if store == nil {
		if cfg.RedisAddr != "" {
			store = registry.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
			log.Info().Str("addr", cfg.RedisAddr).Msg("Using redis registry store")
		} else {
			store = registry.NewMemoryStore()
		}
	}

	client := o.client
	switch cfg.Provider {
	case config.ProviderThreshold:
		if client == nil {
			return nil, errors.New("threshold backend requires a signing network client (WithNetworkClient)")
		}
	case config.ProviderSecretShare:
		if client == nil {
			client = network.NewFakeClient(clock, cfg.SecretShareTTL)
		}
	}

	minter, err := minterAddress(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New(o.registerer)
	keys := keystore.NewService(store, client)
	delegations := delegation.NewService(store)
	ledger := capacity.NewLedger(client, clock, m)
	sessions := session.NewAuthority(session.Config{
		Domain:                cfg.Domain,
		URI:                   cfg.SessionURI,
		ChainID:               cfg.ChainID,
		DefaultStatement:      cfg.SessionStatement,
		MaxTTL:                cfg.MaxSessionTTL,
		Minter:                minter,
		RequestsPerKilosecond: cfg.CapacityRequestsPerKilosecond,
		ValidDays:             cfg.CapacityValidDays,
	}, ledger, clock, m)
	gw := gateway.NewGateway(client, keys, delegations, sessions, clock, m)

	return &Authority{
		cfg:         cfg,
		client:      client,
		minter:      minter,
		keys:        keys,
		delegations: delegations,
		ledger:      ledger,
		sessions:    sessions,
		gateway:     gw,
	}, nil
}

// minterAddress resolves the identity that authorizes network-level minting.
// The secret-share backend may run with an ephemeral minter; the threshold
// backend pays on-chain fees and must be given one explicitly.
func minterAddress(cfg Config) (common.Address, error) {
	if cfg.MinterPrivateKey != "" {
		keyHex := cfg.MinterPrivateKey
		if len(keyHex) >= 2 && keyHex[:2] == "0x" {
			keyHex = keyHex[2:]
		}
		key, err := crypto.HexToECDSA(keyHex)
		if err != nil {
			return common.Address{}, errors.Wrap(err, "failed to parse minter private key")
		}
		return crypto.PubkeyToAddress(key.PublicKey), nil
	}
	if cfg.Provider == config.ProviderThreshold {
		return common.Address{}, errors.New("threshold backend requires a minter private key")
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to generate ephemeral minter key")
	}
	log.Warn().Msg("No minter key configured, generated an ephemeral one")
	return crypto.PubkeyToAddress(key.PublicKey), nil
}
