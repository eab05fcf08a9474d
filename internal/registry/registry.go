// Package registry is the on-chain-style system of record for key records,
// delegatee sets, tool sets and tool permissions. Writes are atomic per call;
// operations touching the same key record are linearizable, operations on
// different key records are independent.
package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kashguard/go-key-authority/internal/types"
)

// Permission is the stored (keyID, programID, delegatee) relation.
type Permission struct {
	Permitted bool
	Enabled   bool
}

// Store is the contract-style read/write interface. Implementations must not
// apply policy (idempotency rules, ordering preconditions); that belongs to
// the services on top.
type Store interface {
	PutRecord(ctx context.Context, rec *types.KeyRecord) error
	GetRecord(ctx context.Context, keyID string) (*types.KeyRecord, error)
	ListRecordsByOwner(ctx context.Context, owner common.Address) ([]*types.KeyRecord, error)

	AddDelegatee(ctx context.Context, keyID string, addr common.Address) error
	RemoveDelegatee(ctx context.Context, keyID string, addr common.Address) error
	ListDelegatees(ctx context.Context, keyID string) ([]common.Address, error)
	HasDelegatee(ctx context.Context, keyID string, addr common.Address) (bool, error)

	PutTool(ctx context.Context, keyID, programID string, enabled bool) error
	GetTool(ctx context.Context, keyID, programID string) (*types.Tool, error)
	DeleteTool(ctx context.Context, keyID, programID string) error
	ListTools(ctx context.Context, keyID string) ([]types.Tool, error)

	PutPermission(ctx context.Context, keyID, programID string, delegatee common.Address, perm Permission) error
	GetPermission(ctx context.Context, keyID, programID string, delegatee common.Address) (Permission, error)
	DeletePermission(ctx context.Context, keyID, programID string, delegatee common.Address) error
	ListPermitted(ctx context.Context, keyID, programID string) ([]common.Address, error)

	// PruneDelegatee removes every permission row for the delegatee across
	// all tools of the key.
	PruneDelegatee(ctx context.Context, keyID string, delegatee common.Address) error

	// PruneTool removes every permission row for the tool across all
	// delegatees of the key.
	PruneTool(ctx context.Context, keyID, programID string) error
}
