// Package network is the boundary to the external threshold-signing network.
// The authority never holds key material; everything that touches it goes
// through a Client.
package network

import (
	"context"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/kashguard/go-key-authority/internal/types"
)

// CapacityGrantRequest carries the parameters of the network's metering
// primitive.
type CapacityGrantRequest struct {
	Delegator             common.Address
	Delegatees            []common.Address
	RequestsPerKilosecond int
	ValidDays             int
	MaxUses               int
}

// ProgramRef names the program to run: either by content address or by
// literal code, which is hashed to its content address before dispatch.
type ProgramRef struct {
	ProgramID string
	Code      []byte
}

// Resolve returns the content address the reference points at.
func (r ProgramRef) Resolve() string {
	if r.ProgramID != "" {
		return r.ProgramID
	}
	return ProgramID(r.Code)
}

// ExecutionResult is the network's answer to a program execution.
type ExecutionResult struct {
	Response string
	Logs     string
}

// Client is the process-wide handle to the signing network. Disconnect is
// safe to call repeatedly and is not required for correctness, only for
// resource hygiene. All calls honor ctx cancellation; a canceled call commits
// nothing as far as the caller is concerned; the network remains the system
// of record.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	MintKey(ctx context.Context, owner common.Address) (*types.KeyRecord, error)
	TransferKey(ctx context.Context, keyID string, newOwner common.Address) error
	MintCapacityGrant(ctx context.Context, req CapacityGrantRequest) (*types.CapacityGrant, error)
	ExecuteProgram(ctx context.Context, cred *types.SessionCredential, ref ProgramRef, params map[string]any) (*ExecutionResult, error)
}

// ProgramID computes the content address of program code: lowercase hex of
// its SHA3-256 digest.
func ProgramID(code []byte) string {
	sum := sha3.Sum256(code)
	return hex.EncodeToString(sum[:])
}

// ExecutionError is returned by a Client when the network reached the
// program and the program itself failed. The message is preserved verbatim.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }
