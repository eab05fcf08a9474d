package delegation

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-key-authority/internal/registry"
	"github.com/kashguard/go-key-authority/internal/types"
)

// PermitTool grants a delegatee permission to invoke a registered tool. The
// ordering precondition is enforced here: the tool must be registered and
// the address must already be a delegatee of the key.
func (s *Service) PermitTool(ctx context.Context, keyID, programID string, delegatee common.Address) error {
	if err := s.liveKey(ctx, keyID, "permit tool"); err != nil {
		return err
	}
	tool, err := s.store.GetTool(ctx, keyID, programID)
	if err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "permit tool")
	}
	if tool == nil {
		return types.NewKind(types.ErrToolNotRegistered, "permit tool")
	}
	isDelegatee, err := s.store.HasDelegatee(ctx, keyID, delegatee)
	if err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "permit tool")
	}
	if !isDelegatee {
		return types.NewKind(types.ErrNotDelegatee, "permit tool")
	}

	perm := registry.Permission{Permitted: true, Enabled: true}
	if err := s.store.PutPermission(ctx, keyID, programID, delegatee, perm); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "permit tool")
	}
	log.Info().
		Str("key_id", keyID).
		Str("program_id", programID).
		Str("delegatee", delegatee.Hex()).
		Msg("Permitted tool for delegatee")
	return nil
}

// UnpermitTool removes the permission row. Idempotent.
func (s *Service) UnpermitTool(ctx context.Context, keyID, programID string, delegatee common.Address) error {
	if err := s.liveKey(ctx, keyID, "unpermit tool"); err != nil {
		return err
	}
	if err := s.store.DeletePermission(ctx, keyID, programID, delegatee); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "unpermit tool")
	}
	log.Info().
		Str("key_id", keyID).
		Str("program_id", programID).
		Str("delegatee", delegatee.Hex()).
		Msg("Unpermitted tool for delegatee")
	return nil
}

// IsToolPermitted is the single source of truth consulted at execution time.
// IsPermitted reflects the stored relation; IsEnabled is the live
// conjunction of tool-global enablement, per-delegatee enablement and
// current delegatee membership. None of it is cached.
func (s *Service) IsToolPermitted(ctx context.Context, keyID, programID string, delegatee common.Address) (types.PermissionStatus, error) {
	perm, err := s.store.GetPermission(ctx, keyID, programID, delegatee)
	if err != nil {
		return types.PermissionStatus{}, types.WrapKind(types.ErrProviderUnavailable, err, "check tool permission")
	}
	if !perm.Permitted {
		return types.PermissionStatus{}, nil
	}

	tool, err := s.store.GetTool(ctx, keyID, programID)
	if err != nil {
		return types.PermissionStatus{}, types.WrapKind(types.ErrProviderUnavailable, err, "check tool permission")
	}
	isDelegatee, err := s.store.HasDelegatee(ctx, keyID, delegatee)
	if err != nil {
		return types.PermissionStatus{}, types.WrapKind(types.ErrProviderUnavailable, err, "check tool permission")
	}

	enabled := perm.Enabled && tool != nil && tool.Enabled && isDelegatee
	return types.PermissionStatus{IsPermitted: true, IsEnabled: enabled}, nil
}
