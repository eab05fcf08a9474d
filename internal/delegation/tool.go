package delegation

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-key-authority/internal/types"
)

// ToolOptions controls tool registration.
type ToolOptions struct {
	EnabledByDefault bool
}

// RegisterTool records a content-addressed program against the key.
// Registering an already-registered tool fails; re-registration after an
// explicit RemoveTool is permitted and resets state.
func (s *Service) RegisterTool(ctx context.Context, keyID, programID string, opts ToolOptions) error {
	if err := s.liveKey(ctx, keyID, "register tool"); err != nil {
		return err
	}
	existing, err := s.store.GetTool(ctx, keyID, programID)
	if err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "register tool")
	}
	if existing != nil {
		return types.NewKind(types.ErrAlreadyRegistered, "register tool")
	}
	if err := s.store.PutTool(ctx, keyID, programID, opts.EnabledByDefault); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "register tool")
	}
	log.Info().
		Str("key_id", keyID).
		Str("program_id", programID).
		Bool("enabled", opts.EnabledByDefault).
		Msg("Registered tool")
	return nil
}

// RemoveTool unregisters the tool and purges its permission rows. A later
// re-registration of the same program starts from an empty relation; access
// returns only through explicit re-permits.
func (s *Service) RemoveTool(ctx context.Context, keyID, programID string) error {
	if err := s.requireTool(ctx, keyID, programID, "remove tool"); err != nil {
		return err
	}
	if err := s.store.DeleteTool(ctx, keyID, programID); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "remove tool")
	}
	if err := s.store.PruneTool(ctx, keyID, programID); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "prune tool permissions")
	}
	log.Info().Str("key_id", keyID).Str("program_id", programID).Msg("Removed tool")
	return nil
}

// EnableTool flips the tool-global enabled flag on. Idempotent.
func (s *Service) EnableTool(ctx context.Context, keyID, programID string) error {
	return s.setToolEnabled(ctx, keyID, programID, true)
}

// DisableTool flips the tool-global enabled flag off. Idempotent and
// non-destructive: per-delegatee permissions survive and regain effect when
// the tool is re-enabled.
func (s *Service) DisableTool(ctx context.Context, keyID, programID string) error {
	return s.setToolEnabled(ctx, keyID, programID, false)
}

func (s *Service) setToolEnabled(ctx context.Context, keyID, programID string, enabled bool) error {
	op := "disable tool"
	if enabled {
		op = "enable tool"
	}
	if err := s.requireTool(ctx, keyID, programID, op); err != nil {
		return err
	}
	if err := s.store.PutTool(ctx, keyID, programID, enabled); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, op)
	}
	log.Info().Str("key_id", keyID).Str("program_id", programID).Bool("enabled", enabled).Msg("Updated tool state")
	return nil
}

// IsToolRegistered answers registration and tool-global enablement.
func (s *Service) IsToolRegistered(ctx context.Context, keyID, programID string) (types.ToolStatus, error) {
	tool, err := s.store.GetTool(ctx, keyID, programID)
	if err != nil {
		return types.ToolStatus{}, types.WrapKind(types.ErrProviderUnavailable, err, "check tool registration")
	}
	if tool == nil {
		return types.ToolStatus{}, nil
	}
	return types.ToolStatus{IsRegistered: true, IsEnabled: tool.Enabled}, nil
}

// GetTool returns a single registered tool's metadata.
func (s *Service) GetTool(ctx context.Context, keyID, programID string) (*types.Tool, error) {
	tool, err := s.store.GetTool(ctx, keyID, programID)
	if err != nil {
		return nil, types.WrapKind(types.ErrProviderUnavailable, err, "get tool")
	}
	if tool == nil {
		return nil, types.NewKind(types.ErrNotFound, "get tool")
	}
	return tool, nil
}

// RegisteredTools enumerates every tool of the key together with the
// delegatees currently permitted on it.
func (s *Service) RegisteredTools(ctx context.Context, keyID string) ([]types.ToolGrant, error) {
	if err := s.liveKey(ctx, keyID, "list registered tools"); err != nil {
		return nil, err
	}
	tools, err := s.store.ListTools(ctx, keyID)
	if err != nil {
		return nil, types.WrapKind(types.ErrProviderUnavailable, err, "list registered tools")
	}
	out := make([]types.ToolGrant, 0, len(tools))
	for _, tool := range tools {
		permitted, err := s.store.ListPermitted(ctx, keyID, tool.ProgramID)
		if err != nil {
			return nil, types.WrapKind(types.ErrProviderUnavailable, err, "list permitted delegatees")
		}
		out = append(out, types.ToolGrant{Tool: tool, Delegatees: permitted})
	}
	return out, nil
}

func (s *Service) requireTool(ctx context.Context, keyID, programID, op string) error {
	if err := s.liveKey(ctx, keyID, op); err != nil {
		return err
	}
	tool, err := s.store.GetTool(ctx, keyID, programID)
	if err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, op)
	}
	if tool == nil {
		return types.NewKind(types.ErrNotFound, op)
	}
	return nil
}
