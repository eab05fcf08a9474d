package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kashguard/go-key-authority/internal/types"
)

type permKey struct {
	programID string
	delegatee common.Address
}

// keyspace holds everything recorded for one key. Each keyspace has its own
// lock so mutations to different keys never contend.
type keyspace struct {
	mu         sync.Mutex
	record     *types.KeyRecord
	delegatees map[common.Address]struct{}
	tools      map[string]bool
	perms      map[permKey]Permission
}

// MemoryStore is the in-process Store implementation. It backs the
// secret-sharing provider and every test; the redis store mirrors the same
// layout for shared deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	spaces map[string]*keyspace
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{spaces: make(map[string]*keyspace)}
}

func (s *MemoryStore) space(keyID string) *keyspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks, ok := s.spaces[keyID]
	if !ok {
		ks = &keyspace{
			delegatees: make(map[common.Address]struct{}),
			tools:      make(map[string]bool),
			perms:      make(map[permKey]Permission),
		}
		s.spaces[keyID] = ks
	}
	return ks
}

func (s *MemoryStore) PutRecord(ctx context.Context, rec *types.KeyRecord) error {
	ks := s.space(rec.ID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	cp := *rec
	ks.record = &cp
	return nil
}

func (s *MemoryStore) GetRecord(ctx context.Context, keyID string) (*types.KeyRecord, error) {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.record == nil {
		return nil, nil
	}
	cp := *ks.record
	return &cp, nil
}

func (s *MemoryStore) ListRecordsByOwner(ctx context.Context, owner common.Address) ([]*types.KeyRecord, error) {
	s.mu.RLock()
	spaces := make([]*keyspace, 0, len(s.spaces))
	for _, ks := range s.spaces {
		spaces = append(spaces, ks)
	}
	s.mu.RUnlock()

	var out []*types.KeyRecord
	for _, ks := range spaces {
		ks.mu.Lock()
		if ks.record != nil && ks.record.Owner == owner {
			cp := *ks.record
			out = append(out, &cp)
		}
		ks.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) AddDelegatee(ctx context.Context, keyID string, addr common.Address) error {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.delegatees[addr] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveDelegatee(ctx context.Context, keyID string, addr common.Address) error {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	delete(ks.delegatees, addr)
	return nil
}

func (s *MemoryStore) ListDelegatees(ctx context.Context, keyID string) ([]common.Address, error) {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	out := make([]common.Address, 0, len(ks.delegatees))
	for addr := range ks.delegatees {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out, nil
}

func (s *MemoryStore) HasDelegatee(ctx context.Context, keyID string, addr common.Address) (bool, error) {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	_, ok := ks.delegatees[addr]
	return ok, nil
}

func (s *MemoryStore) PutTool(ctx context.Context, keyID, programID string, enabled bool) error {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.tools[programID] = enabled
	return nil
}

func (s *MemoryStore) GetTool(ctx context.Context, keyID, programID string) (*types.Tool, error) {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	enabled, ok := ks.tools[programID]
	if !ok {
		return nil, nil
	}
	return &types.Tool{KeyID: keyID, ProgramID: programID, Enabled: enabled}, nil
}

func (s *MemoryStore) DeleteTool(ctx context.Context, keyID, programID string) error {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	delete(ks.tools, programID)
	return nil
}

func (s *MemoryStore) ListTools(ctx context.Context, keyID string) ([]types.Tool, error) {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	out := make([]types.Tool, 0, len(ks.tools))
	for programID, enabled := range ks.tools {
		out = append(out, types.Tool{KeyID: keyID, ProgramID: programID, Enabled: enabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProgramID < out[j].ProgramID })
	return out, nil
}

func (s *MemoryStore) PutPermission(ctx context.Context, keyID, programID string, delegatee common.Address, perm Permission) error {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.perms[permKey{programID, delegatee}] = perm
	return nil
}

func (s *MemoryStore) GetPermission(ctx context.Context, keyID, programID string, delegatee common.Address) (Permission, error) {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.perms[permKey{programID, delegatee}], nil
}

func (s *MemoryStore) DeletePermission(ctx context.Context, keyID, programID string, delegatee common.Address) error {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	delete(ks.perms, permKey{programID, delegatee})
	return nil
}

func (s *MemoryStore) ListPermitted(ctx context.Context, keyID, programID string) ([]common.Address, error) {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	var out []common.Address
	for pk, perm := range ks.perms {
		if pk.programID == programID && perm.Permitted {
			out = append(out, pk.delegatee)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out, nil
}

func (s *MemoryStore) PruneDelegatee(ctx context.Context, keyID string, delegatee common.Address) error {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	for pk := range ks.perms {
		if pk.delegatee == delegatee {
			delete(ks.perms, pk)
		}
	}
	return nil
}

func (s *MemoryStore) PruneTool(ctx context.Context, keyID, programID string) error {
	ks := s.space(keyID)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	for pk := range ks.perms {
		if pk.programID == programID {
			delete(ks.perms, pk)
		}
	}
	return nil
}
