package keyauthority

import (
	"time"

	"github.com/kashguard/go-key-authority/internal/config"
	"github.com/kashguard/go-key-authority/internal/delegation"
	"github.com/kashguard/go-key-authority/internal/network"
	"github.com/kashguard/go-key-authority/internal/registry"
	"github.com/kashguard/go-key-authority/internal/session"
	"github.com/kashguard/go-key-authority/internal/types"
)

// Aliases forming the public surface of the library. The implementation
// lives in internal packages; callers import only this package.
type (
	Config            = config.Config
	Backend           = config.Provider
	KeyRecord         = types.KeyRecord
	KeyStatus         = types.KeyStatus
	Tool              = types.Tool
	ToolStatus        = types.ToolStatus
	ToolGrant         = types.ToolGrant
	ToolOptions       = delegation.ToolOptions
	PermissionStatus  = types.PermissionStatus
	CapacityGrant     = types.CapacityGrant
	Ability           = types.Ability
	ResourceAbility   = types.ResourceAbility
	SessionCredential = types.SessionCredential
	SessionRequest    = session.Request
	Signer            = session.Signer
	LocalSigner       = session.LocalSigner
	ProgramRef        = network.ProgramRef
	ExecutionResult   = network.ExecutionResult

	// NetworkClient is the boundary to the external threshold-signing
	// network; the threshold backend requires an implementation injected
	// via WithNetworkClient.
	NetworkClient = network.Client
	// RegistryStore is the contract-style registry interface behind the
	// delegation and tool state.
	RegistryStore = registry.Store
)

const (
	BackendThreshold   = config.ProviderThreshold
	BackendSecretShare = config.ProviderSecretShare

	KeyStatusActive      = types.KeyStatusActive
	KeyStatusTransferred = types.KeyStatusTransferred
	KeyStatusBurned      = types.KeyStatusBurned

	AbilitySign    = types.AbilitySign
	AbilityExecute = types.AbilityExecute
)

// Error kinds, matched with errors.Is.
var (
	ErrNotInitialized      = types.ErrNotInitialized
	ErrNotFound            = types.ErrNotFound
	ErrInvalidOwner        = types.ErrInvalidOwner
	ErrUnauthorized        = types.ErrUnauthorized
	ErrAlreadyRegistered   = types.ErrAlreadyRegistered
	ErrProviderUnavailable = types.ErrProviderUnavailable
	ErrSignatureMismatch   = types.ErrSignatureMismatch
	ErrCredentialExpired   = types.ErrCredentialExpired
	ErrToolNotRegistered   = types.ErrToolNotRegistered
	ErrNotDelegatee        = types.ErrNotDelegatee
	ErrExecutionFailed     = types.ErrExecutionFailed
)

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config { return config.Defaults() }

// ConfigFromEnv loads configuration from the environment.
func ConfigFromEnv() (Config, error) { return config.FromEnv() }

// NewLocalSigner wraps an in-memory secp256k1 key as a session Signer.
var NewLocalSigner = session.NewLocalSigner

// LocalSignerFromHex parses a hex private key into a session Signer.
var LocalSignerFromHex = session.LocalSignerFromHex

// ProgramID computes the content address of program code.
var ProgramID = network.ProgramID

// DecodeSessionToken parses a transported session credential token.
func DecodeSessionToken(token, secret string) (*SessionCredential, error) {
	return session.DecodeToken(token, []byte(secret))
}

// NewMemoryStore returns the in-process registry store.
func NewMemoryStore() RegistryStore { return registry.NewMemoryStore() }

// NewLocalNetworkClient returns an in-process signing network that hosts
// programs as Go handlers. Intended for local development and examples; key
// shares expire after ttl (zero means never).
func NewLocalNetworkClient(ttl time.Duration) *network.FakeClient {
	return network.NewFakeClient(nil, ttl)
}
