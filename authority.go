// Package keyauthority is a delegated key authority: it mints, custodies
// and delegates use of non-exportable signing keys without revealing key
// material, granting delegatees only narrowly scoped, time-limited,
// revocable capabilities.
package keyauthority

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kashguard/go-key-authority/internal/capacity"
	"github.com/kashguard/go-key-authority/internal/config"
	"github.com/kashguard/go-key-authority/internal/delegation"
	"github.com/kashguard/go-key-authority/internal/gateway"
	"github.com/kashguard/go-key-authority/internal/keystore"
	"github.com/kashguard/go-key-authority/internal/network"
	"github.com/kashguard/go-key-authority/internal/session"
	"github.com/kashguard/go-key-authority/internal/types"
)

// Provider is the single capability interface over the closed set of
// backend variants. The factory selects a variant at construction time;
// callers never branch on which one is active.
type Provider interface {
	// Init connects the process-wide network handle. Every other operation
	// fails until it has completed.
	Init(ctx context.Context) error
	// Close releases the network handle. Safe to call repeatedly; needed
	// only for resource hygiene, not correctness.
	Close(ctx context.Context) error

	MintWallet(ctx context.Context, owner common.Address) (*KeyRecord, error)
	TransferWalletOwnership(ctx context.Context, keyID string, caller, newOwner common.Address) error
	WalletInfo(ctx context.Context, keyID string) (*KeyRecord, error)
	OwnedWallets(ctx context.Context, owner common.Address) ([]*KeyRecord, error)

	AddDelegatee(ctx context.Context, keyID string, addr common.Address) error
	RemoveDelegatee(ctx context.Context, keyID string, addr common.Address) error
	Delegatees(ctx context.Context, keyID string) ([]common.Address, error)
	IsDelegatee(ctx context.Context, keyID string, addr common.Address) (bool, error)

	RegisterTool(ctx context.Context, keyID, programID string, opts ToolOptions) error
	RemoveTool(ctx context.Context, keyID, programID string) error
	EnableTool(ctx context.Context, keyID, programID string) error
	DisableTool(ctx context.Context, keyID, programID string) error
	IsToolRegistered(ctx context.Context, keyID, programID string) (ToolStatus, error)
	RegisteredTool(ctx context.Context, keyID, programID string) (*Tool, error)
	RegisteredTools(ctx context.Context, keyID string) ([]ToolGrant, error)

	PermitToolForDelegatee(ctx context.Context, keyID, programID string, delegatee common.Address) error
	UnpermitToolForDelegatee(ctx context.Context, keyID, programID string, delegatee common.Address) error
	IsToolPermittedForDelegatee(ctx context.Context, keyID, programID string, delegatee common.Address) (PermissionStatus, error)

	EnsureCapacityGrant(ctx context.Context, delegatees []common.Address) (*CapacityGrant, error)
	FreshCapacityGrant(ctx context.Context, delegatees []common.Address) (*CapacityGrant, error)

	IssueSession(ctx context.Context, req SessionRequest) (*SessionCredential, error)
	SessionToken(cred *SessionCredential) (string, error)
	Execute(ctx context.Context, cred *SessionCredential, ref ProgramRef, params map[string]any) (*ExecutionResult, error)
}

// Authority is the Provider implementation produced by New.
type Authority struct {
	cfg    config.Config
	client network.Client
	minter common.Address

	keys        *keystore.Service
	delegations *delegation.Service
	ledger      *capacity.Ledger
	sessions    *session.Authority
	gateway     *gateway.Gateway

	mu          sync.RWMutex
	initialized bool
}

var _ Provider = (*Authority)(nil)

func (a *Authority) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}
	if err := a.client.Connect(ctx); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "connect to signing network")
	}
	a.initialized = true
	return nil
}

func (a *Authority) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return nil
	}
	if err := a.client.Disconnect(ctx); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "disconnect from signing network")
	}
	a.initialized = false
	return nil
}

func (a *Authority) ready(op string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.initialized {
		return types.NewKind(types.ErrNotInitialized, op)
	}
	return nil
}

func (a *Authority) MintWallet(ctx context.Context, owner common.Address) (*KeyRecord, error) {
	if err := a.ready("mint wallet"); err != nil {
		return nil, err
	}
	return a.keys.Mint(ctx, owner)
}

func (a *Authority) TransferWalletOwnership(ctx context.Context, keyID string, caller, newOwner common.Address) error {
	if err := a.ready("transfer wallet ownership"); err != nil {
		return err
	}
	return a.keys.TransferOwnership(ctx, keyID, caller, newOwner)
}

func (a *Authority) WalletInfo(ctx context.Context, keyID string) (*KeyRecord, error) {
	if err := a.ready("get wallet info"); err != nil {
		return nil, err
	}
	return a.keys.Get(ctx, keyID)
}

func (a *Authority) OwnedWallets(ctx context.Context, owner common.Address) ([]*KeyRecord, error) {
	if err := a.ready("list owned wallets"); err != nil {
		return nil, err
	}
	return a.keys.ListByOwner(ctx, owner)
}

func (a *Authority) AddDelegatee(ctx context.Context, keyID string, addr common.Address) error {
	if err := a.ready("add delegatee"); err != nil {
		return err
	}
	return a.delegations.AddDelegatee(ctx, keyID, addr)
}

func (a *Authority) RemoveDelegatee(ctx context.Context, keyID string, addr common.Address) error {
	if err := a.ready("remove delegatee"); err != nil {
		return err
	}
	return a.delegations.RemoveDelegatee(ctx, keyID, addr)
}

func (a *Authority) Delegatees(ctx context.Context, keyID string) ([]common.Address, error) {
	if err := a.ready("list delegatees"); err != nil {
		return nil, err
	}
	return a.delegations.ListDelegatees(ctx, keyID)
}

func (a *Authority) IsDelegatee(ctx context.Context, keyID string, addr common.Address) (bool, error) {
	if err := a.ready("check delegatee"); err != nil {
		return false, err
	}
	return a.delegations.IsDelegatee(ctx, keyID, addr)
}

func (a *Authority) RegisterTool(ctx context.Context, keyID, programID string, opts ToolOptions) error {
	if err := a.ready("register tool"); err != nil {
		return err
	}
	return a.delegations.RegisterTool(ctx, keyID, programID, opts)
}

func (a *Authority) RemoveTool(ctx context.Context, keyID, programID string) error {
	if err := a.ready("remove tool"); err != nil {
		return err
	}
	return a.delegations.RemoveTool(ctx, keyID, programID)
}

func (a *Authority) EnableTool(ctx context.Context, keyID, programID string) error {
	if err := a.ready("enable tool"); err != nil {
		return err
	}
	return a.delegations.EnableTool(ctx, keyID, programID)
}

func (a *Authority) DisableTool(ctx context.Context, keyID, programID string) error {
	if err := a.ready("disable tool"); err != nil {
		return err
	}
	return a.delegations.DisableTool(ctx, keyID, programID)
}

func (a *Authority) IsToolRegistered(ctx context.Context, keyID, programID string) (ToolStatus, error) {
	if err := a.ready("check tool registration"); err != nil {
		return ToolStatus{}, err
	}
	return a.delegations.IsToolRegistered(ctx, keyID, programID)
}

func (a *Authority) RegisteredTool(ctx context.Context, keyID, programID string) (*Tool, error) {
	if err := a.ready("get registered tool"); err != nil {
		return nil, err
	}
	return a.delegations.GetTool(ctx, keyID, programID)
}

func (a *Authority) RegisteredTools(ctx context.Context, keyID string) ([]ToolGrant, error) {
	if err := a.ready("list registered tools"); err != nil {
		return nil, err
	}
	return a.delegations.RegisteredTools(ctx, keyID)
}

func (a *Authority) PermitToolForDelegatee(ctx context.Context, keyID, programID string, delegatee common.Address) error {
	if err := a.ready("permit tool"); err != nil {
		return err
	}
	return a.delegations.PermitTool(ctx, keyID, programID, delegatee)
}

func (a *Authority) UnpermitToolForDelegatee(ctx context.Context, keyID, programID string, delegatee common.Address) error {
	if err := a.ready("unpermit tool"); err != nil {
		return err
	}
	return a.delegations.UnpermitTool(ctx, keyID, programID, delegatee)
}

func (a *Authority) IsToolPermittedForDelegatee(ctx context.Context, keyID, programID string, delegatee common.Address) (PermissionStatus, error) {
	if err := a.ready("check tool permission"); err != nil {
		return PermissionStatus{}, err
	}
	return a.delegations.IsToolPermitted(ctx, keyID, programID, delegatee)
}

func (a *Authority) EnsureCapacityGrant(ctx context.Context, delegatees []common.Address) (*CapacityGrant, error) {
	if err := a.ready("ensure capacity grant"); err != nil {
		return nil, err
	}
	return a.ledger.EnsureGrant(ctx, a.minter, delegatees, a.cfg.CapacityRequestsPerKilosecond, a.cfg.CapacityValidDays)
}

func (a *Authority) FreshCapacityGrant(ctx context.Context, delegatees []common.Address) (*CapacityGrant, error) {
	if err := a.ready("mint fresh capacity grant"); err != nil {
		return nil, err
	}
	return a.ledger.FreshGrant(ctx, a.minter, delegatees, a.cfg.CapacityRequestsPerKilosecond, a.cfg.CapacityValidDays)
}

func (a *Authority) IssueSession(ctx context.Context, req SessionRequest) (*SessionCredential, error) {
	if err := a.ready("issue session"); err != nil {
		return nil, err
	}
	return a.sessions.IssueSession(ctx, req)
}

// SessionToken encodes an issued credential for transport. Requires a
// configured token secret.
func (a *Authority) SessionToken(cred *SessionCredential) (string, error) {
	if err := a.ready("encode session token"); err != nil {
		return "", err
	}
	if a.cfg.TokenSecret == "" {
		return "", types.NewKind(types.ErrNotInitialized, "encode session token: no token secret configured")
	}
	return session.EncodeToken(cred, []byte(a.cfg.TokenSecret))
}

func (a *Authority) Execute(ctx context.Context, cred *SessionCredential, ref ProgramRef, params map[string]any) (*ExecutionResult, error) {
	if err := a.ready("execute program"); err != nil {
		return nil, err
	}
	return a.gateway.Execute(ctx, cred, ref, params)
}
