package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// KeyStatus is the lifecycle state of a managed key record.
type KeyStatus string

const (
	KeyStatusActive      KeyStatus = "active"
	KeyStatusTransferred KeyStatus = "transferred"
	KeyStatusBurned      KeyStatus = "burned"
)

// KeyRecord holds identity and ownership metadata for a managed key. The key
// material itself never leaves the signing network; only the public half is
// recorded here.
type KeyRecord struct {
	ID        string         `json:"id"`
	PublicKey hexutil.Bytes  `json:"publicKey"`
	Owner     common.Address `json:"owner"`
	Status    KeyStatus      `json:"status"`
}

// Burned reports whether the record reached its terminal state.
func (r *KeyRecord) Burned() bool {
	return r.Status == KeyStatusBurned || r.Owner == (common.Address{})
}

// Tool is a content-addressed executable program registered against a key.
type Tool struct {
	KeyID     string `json:"keyId"`
	ProgramID string `json:"programId"`
	Enabled   bool   `json:"enabled"`
}

// ToolStatus is the answer to "is this tool registered and enabled".
type ToolStatus struct {
	IsRegistered bool `json:"isRegistered"`
	IsEnabled    bool `json:"isEnabled"`
}

// PermissionStatus reports the per-delegatee permission relation. IsEnabled
// is the conjunction of tool-enabled, permission-enabled and delegatee
// membership, evaluated live at query time.
type PermissionStatus struct {
	IsPermitted bool `json:"isPermitted"`
	IsEnabled   bool `json:"isEnabled"`
}

// ToolGrant pairs a registered tool with the delegatees currently permitted
// to invoke it.
type ToolGrant struct {
	Tool       Tool             `json:"tool"`
	Delegatees []common.Address `json:"delegatees"`
}

// CapacityGrant is a metered usage budget delegated to a set of addresses.
// Immutable once minted; the signing network consumes it opaquely up to
// MaxUses.
type CapacityGrant struct {
	ID                    string           `json:"id"`
	Delegator             common.Address   `json:"delegator"`
	Delegatees            []common.Address `json:"delegatees"`
	MaxUses               int              `json:"maxUses"`
	RequestsPerKilosecond int              `json:"requestsPerKilosecond"`
	ExpiresAt             time.Time        `json:"expiresAt"`
}

// Expired reports whether the grant is past its validity window.
func (g *CapacityGrant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// Ability is the action half of a resource-ability request.
type Ability string

const (
	AbilitySign    Ability = "sign"
	AbilityExecute Ability = "execute"
)

// ResourceAbility is a declared (resource, action) pair a session credential
// is scoped to permit. Resource names a managed key by record ID.
type ResourceAbility struct {
	Resource string  `json:"resource"`
	Ability  Ability `json:"ability"`
}

// SessionCredential is a short-lived, capability-scoped authorization
// artifact. It is never persisted beyond ExpiresAt and carries the proof
// signature produced by the subject over the canonical challenge statement.
type SessionCredential struct {
	Subject         common.Address    `json:"subject"`
	Resources       []ResourceAbility `json:"resources"`
	IssuedAt        time.Time         `json:"issuedAt"`
	ExpiresAt       time.Time         `json:"expiresAt"`
	CapacityGrantID string            `json:"capacityGrantId,omitempty"`
	Statement       string            `json:"statement"`
	Nonce           string            `json:"nonce"`
	Proof           hexutil.Bytes     `json:"proof"`
}

// ExpiredAt reports whether the credential must be rejected at the given
// instant. The boundary is inclusive: a credential is unusable at exactly
// ExpiresAt.
func (c *SessionCredential) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
