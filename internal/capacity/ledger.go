// Package capacity tracks metered usage budgets delegated via the signing
// network's metering primitive.
package capacity

import (
	"context"
	"fmt"
	"sync"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/kashguard/go-key-authority/internal/metrics"
	"github.com/kashguard/go-key-authority/internal/network"
	"github.com/kashguard/go-key-authority/internal/types"
)

// Ledger mints capacity grants on demand and reuses non-expired ones. At
// most one grant exists per (owner, budget window); concurrent callers for
// the same window are collapsed onto a single mint. Ambiguous mint failures
// are never retried here, since a blind retry could double-charge the
// on-chain fee; the caller decides whether to try again.
type Ledger struct {
	client network.Client
	clock  time2.Clock
	m      *metrics.Set

	mu     sync.Mutex
	grants map[string]*types.CapacityGrant
	group  singleflight.Group
}

func NewLedger(client network.Client, clock time2.Clock, m *metrics.Set) *Ledger {
	if clock == nil {
		clock = time2.DefaultClock
	}
	return &Ledger{
		client: client,
		clock:  clock,
		m:      m,
		grants: make(map[string]*types.CapacityGrant),
	}
}

func windowKey(owner common.Address, requestsPerKilosecond, validDays int) string {
	return fmt.Sprintf("%s/%d/%d", owner.Hex(), requestsPerKilosecond, validDays)
}

// EnsureGrant returns an existing non-expired grant for the owner's budget
// window, minting one when none exists.
func (l *Ledger) EnsureGrant(ctx context.Context, owner common.Address, delegatees []common.Address, requestsPerKilosecond, validDays int) (*types.CapacityGrant, error) {
	key := windowKey(owner, requestsPerKilosecond, validDays)

	if grant := l.cached(key); grant != nil {
		return grant, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		if grant := l.cached(key); grant != nil {
			return grant, nil
		}
		return l.mint(ctx, key, owner, delegatees, requestsPerKilosecond, validDays)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.CapacityGrant), nil
}

// FreshGrant mints a new grant unconditionally, replacing the cached one for
// the window.
func (l *Ledger) FreshGrant(ctx context.Context, owner common.Address, delegatees []common.Address, requestsPerKilosecond, validDays int) (*types.CapacityGrant, error) {
	key := windowKey(owner, requestsPerKilosecond, validDays)
	return l.mint(ctx, key, owner, delegatees, requestsPerKilosecond, validDays)
}

func (l *Ledger) cached(key string) *types.CapacityGrant {
	l.mu.Lock()
	defer l.mu.Unlock()
	grant, ok := l.grants[key]
	if !ok || grant.Expired(l.clock.Now()) {
		return nil
	}
	return grant
}

func (l *Ledger) mint(ctx context.Context, key string, owner common.Address, delegatees []common.Address, requestsPerKilosecond, validDays int) (*types.CapacityGrant, error) {
	// The delegator's own address always appears in the delegatee list so
	// the authority can spend against its own budget.
	withOwner := make([]common.Address, 0, len(delegatees)+1)
	seen := make(map[common.Address]struct{}, len(delegatees)+1)
	for _, addr := range append(delegatees, owner) {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		withOwner = append(withOwner, addr)
	}

	grant, err := l.client.MintCapacityGrant(ctx, network.CapacityGrantRequest{
		Delegator:             owner,
		Delegatees:            withOwner,
		RequestsPerKilosecond: requestsPerKilosecond,
		ValidDays:             validDays,
		MaxUses:               1,
	})
	if err != nil {
		return nil, types.WrapKind(types.ErrProviderUnavailable, err, "mint capacity grant")
	}

	l.mu.Lock()
	l.grants[key] = grant
	l.mu.Unlock()

	if l.m != nil {
		l.m.CapacityGrantsMinted.Inc()
	}
	log.Info().
		Str("grant_id", grant.ID).
		Str("delegator", owner.Hex()).
		Int("requests_per_kilosecond", requestsPerKilosecond).
		Int("valid_days", validDays).
		Msg("Minted capacity grant")
	return grant, nil
}
