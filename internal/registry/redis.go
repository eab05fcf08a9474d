package registry

import (
	"context"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/kashguard/go-key-authority/internal/types"
)

// RedisStore is a Store backed by redis, for deployments where several
// authority instances share registry state. Every write maps to a single
// redis command against one key, so per-key linearizability falls out of
// redis' single-threaded execution.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func recordKey(keyID string) string { return "ka:record:" + keyID }

func ownerKey(owner common.Address) string {
	return "ka:owner:" + strings.ToLower(owner.Hex())
}

func delegateesKey(keyID string) string { return "ka:" + keyID + ":delegatees" }
func toolsKey(keyID string) string      { return "ka:" + keyID + ":tools" }
func permsKey(keyID string) string      { return "ka:" + keyID + ":perms" }

func permField(programID string, delegatee common.Address) string {
	return programID + "|" + strings.ToLower(delegatee.Hex())
}

func encodePerm(p Permission) string {
	out := "0"
	if p.Permitted {
		out = "1"
	}
	if p.Enabled {
		return out + "1"
	}
	return out + "0"
}

func decodePerm(s string) Permission {
	if len(s) != 2 {
		return Permission{}
	}
	return Permission{Permitted: s[0] == '1', Enabled: s[1] == '1'}
}

func (s *RedisStore) PutRecord(ctx context.Context, rec *types.KeyRecord) error {
	prev, err := s.GetRecord(ctx, rec.ID)
	if err != nil {
		return err
	}
	if prev != nil && prev.Owner != rec.Owner {
		if err := s.rdb.SRem(ctx, ownerKey(prev.Owner), rec.ID).Err(); err != nil {
			return errors.Wrap(err, "failed to drop owner index")
		}
	}
	if err := s.rdb.HSet(ctx, recordKey(rec.ID),
		"id", rec.ID,
		"owner", rec.Owner.Hex(),
		"publicKey", rec.PublicKey.String(),
		"status", string(rec.Status),
	).Err(); err != nil {
		return errors.Wrap(err, "failed to put key record")
	}
	if err := s.rdb.SAdd(ctx, ownerKey(rec.Owner), rec.ID).Err(); err != nil {
		return errors.Wrap(err, "failed to index key record by owner")
	}
	return nil
}

func (s *RedisStore) GetRecord(ctx context.Context, keyID string) (*types.KeyRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, recordKey(keyID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get key record")
	}
	if len(fields) == 0 {
		return nil, nil
	}
	pub, err := hexutil.Decode(fields["publicKey"])
	if err != nil {
		return nil, errors.Wrap(err, "corrupt public key in record")
	}
	return &types.KeyRecord{
		ID:        fields["id"],
		Owner:     common.HexToAddress(fields["owner"]),
		PublicKey: pub,
		Status:    types.KeyStatus(fields["status"]),
	}, nil
}

func (s *RedisStore) ListRecordsByOwner(ctx context.Context, owner common.Address) ([]*types.KeyRecord, error) {
	ids, err := s.rdb.SMembers(ctx, ownerKey(owner)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list key records by owner")
	}
	sort.Strings(ids)
	out := make([]*types.KeyRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetRecord(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *RedisStore) AddDelegatee(ctx context.Context, keyID string, addr common.Address) error {
	return errors.Wrap(s.rdb.SAdd(ctx, delegateesKey(keyID), addr.Hex()).Err(), "failed to add delegatee")
}

func (s *RedisStore) RemoveDelegatee(ctx context.Context, keyID string, addr common.Address) error {
	return errors.Wrap(s.rdb.SRem(ctx, delegateesKey(keyID), addr.Hex()).Err(), "failed to remove delegatee")
}

func (s *RedisStore) ListDelegatees(ctx context.Context, keyID string) ([]common.Address, error) {
	members, err := s.rdb.SMembers(ctx, delegateesKey(keyID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list delegatees")
	}
	sort.Strings(members)
	out := make([]common.Address, 0, len(members))
	for _, m := range members {
		out = append(out, common.HexToAddress(m))
	}
	return out, nil
}

func (s *RedisStore) HasDelegatee(ctx context.Context, keyID string, addr common.Address) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, delegateesKey(keyID), addr.Hex()).Result()
	return ok, errors.Wrap(err, "failed to check delegatee membership")
}

func (s *RedisStore) PutTool(ctx context.Context, keyID, programID string, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	return errors.Wrap(s.rdb.HSet(ctx, toolsKey(keyID), programID, val).Err(), "failed to put tool")
}

func (s *RedisStore) GetTool(ctx context.Context, keyID, programID string) (*types.Tool, error) {
	val, err := s.rdb.HGet(ctx, toolsKey(keyID), programID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tool")
	}
	return &types.Tool{KeyID: keyID, ProgramID: programID, Enabled: val == "1"}, nil
}

func (s *RedisStore) DeleteTool(ctx context.Context, keyID, programID string) error {
	return errors.Wrap(s.rdb.HDel(ctx, toolsKey(keyID), programID).Err(), "failed to delete tool")
}

func (s *RedisStore) ListTools(ctx context.Context, keyID string) ([]types.Tool, error) {
	fields, err := s.rdb.HGetAll(ctx, toolsKey(keyID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tools")
	}
	out := make([]types.Tool, 0, len(fields))
	for programID, val := range fields {
		out = append(out, types.Tool{KeyID: keyID, ProgramID: programID, Enabled: val == "1"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProgramID < out[j].ProgramID })
	return out, nil
}

func (s *RedisStore) PutPermission(ctx context.Context, keyID, programID string, delegatee common.Address, perm Permission) error {
	err := s.rdb.HSet(ctx, permsKey(keyID), permField(programID, delegatee), encodePerm(perm)).Err()
	return errors.Wrap(err, "failed to put permission")
}

func (s *RedisStore) GetPermission(ctx context.Context, keyID, programID string, delegatee common.Address) (Permission, error) {
	val, err := s.rdb.HGet(ctx, permsKey(keyID), permField(programID, delegatee)).Result()
	if err == redis.Nil {
		return Permission{}, nil
	}
	if err != nil {
		return Permission{}, errors.Wrap(err, "failed to get permission")
	}
	return decodePerm(val), nil
}

func (s *RedisStore) DeletePermission(ctx context.Context, keyID, programID string, delegatee common.Address) error {
	err := s.rdb.HDel(ctx, permsKey(keyID), permField(programID, delegatee)).Err()
	return errors.Wrap(err, "failed to delete permission")
}

func (s *RedisStore) ListPermitted(ctx context.Context, keyID, programID string) ([]common.Address, error) {
	fields, err := s.rdb.HGetAll(ctx, permsKey(keyID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list permitted delegatees")
	}
	var out []common.Address
	prefix := programID + "|"
	for field, val := range fields {
		if strings.HasPrefix(field, prefix) && decodePerm(val).Permitted {
			out = append(out, common.HexToAddress(strings.TrimPrefix(field, prefix)))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out, nil
}

// prunePermsScript deletes every field of the permission hash carrying the
// given prefix or suffix in one atomic step, so no concurrent PutPermission
// can slip between the scan and the deletes.
var prunePermsScript = redis.NewScript(`
local fields = redis.call('HKEYS', KEYS[1])
local removed = 0
for i = 1, #fields do
	local field = fields[i]
	local match = false
	if ARGV[1] == 'prefix' then
		match = string.sub(field, 1, string.len(ARGV[2])) == ARGV[2]
	else
		match = string.sub(field, -string.len(ARGV[2])) == ARGV[2]
	end
	if match then
		redis.call('HDEL', KEYS[1], field)
		removed = removed + 1
	end
end
return removed
`)

func (s *RedisStore) PruneDelegatee(ctx context.Context, keyID string, delegatee common.Address) error {
	suffix := "|" + strings.ToLower(delegatee.Hex())
	err := prunePermsScript.Run(ctx, s.rdb, []string{permsKey(keyID)}, "suffix", suffix).Err()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, "failed to prune delegatee permissions")
	}
	return nil
}

func (s *RedisStore) PruneTool(ctx context.Context, keyID, programID string) error {
	prefix := programID + "|"
	err := prunePermsScript.Run(ctx, s.rdb, []string{permsKey(keyID)}, "prefix", prefix).Err()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, "failed to prune tool permissions")
	}
	return nil
}
