// Package delegation implements the delegatee set, the tool registry and the
// per-delegatee tool permission relation for a managed key. Permission
// status is always computed from live registry state; nothing here is cached
// into issued credentials, which is what makes revocation effective against
// credentials that have not yet expired.
package delegation

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-key-authority/internal/registry"
	"github.com/kashguard/go-key-authority/internal/types"
)

type Service struct {
	store registry.Store
}

func NewService(store registry.Store) *Service {
	return &Service{store: store}
}

// AddDelegatee grants delegatee status. Adding an existing delegatee is a
// no-op success.
func (s *Service) AddDelegatee(ctx context.Context, keyID string, addr common.Address) error {
	if err := s.liveKey(ctx, keyID, "add delegatee"); err != nil {
		return err
	}
	if err := s.store.AddDelegatee(ctx, keyID, addr); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "add delegatee")
	}
	log.Info().Str("key_id", keyID).Str("delegatee", addr.Hex()).Msg("Added delegatee")
	return nil
}

// RemoveDelegatee revokes delegatee status and eagerly prunes the
// delegatee's tool permissions for the key. Already-issued session
// credentials stay valid until natural expiry; the execution-time re-check
// is what shuts them out.
func (s *Service) RemoveDelegatee(ctx context.Context, keyID string, addr common.Address) error {
	if err := s.liveKey(ctx, keyID, "remove delegatee"); err != nil {
		return err
	}
	if err := s.store.RemoveDelegatee(ctx, keyID, addr); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "remove delegatee")
	}
	if err := s.store.PruneDelegatee(ctx, keyID, addr); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "prune delegatee permissions")
	}
	log.Info().Str("key_id", keyID).Str("delegatee", addr.Hex()).Msg("Removed delegatee")
	return nil
}

func (s *Service) ListDelegatees(ctx context.Context, keyID string) ([]common.Address, error) {
	if err := s.liveKey(ctx, keyID, "list delegatees"); err != nil {
		return nil, err
	}
	addrs, err := s.store.ListDelegatees(ctx, keyID)
	if err != nil {
		return nil, types.WrapKind(types.ErrProviderUnavailable, err, "list delegatees")
	}
	return addrs, nil
}

// IsDelegatee reports membership. Unknown keys simply answer false.
func (s *Service) IsDelegatee(ctx context.Context, keyID string, addr common.Address) (bool, error) {
	ok, err := s.store.HasDelegatee(ctx, keyID, addr)
	if err != nil {
		return false, types.WrapKind(types.ErrProviderUnavailable, err, "check delegatee")
	}
	return ok, nil
}

// liveKey rejects unknown or burned keys for mutating operations.
func (s *Service) liveKey(ctx context.Context, keyID, op string) error {
	rec, err := s.store.GetRecord(ctx, keyID)
	if err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, op)
	}
	if rec == nil || rec.Burned() {
		return types.NewKind(types.ErrNotFound, op)
	}
	return nil
}
