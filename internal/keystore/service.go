// Package keystore owns the KeyRecord lifecycle: mint, transfer, burn and
// the read paths. It is the only writer of key records; delegation and tool
// state live in their own services on the same registry store.
package keystore

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-key-authority/internal/network"
	"github.com/kashguard/go-key-authority/internal/registry"
	"github.com/kashguard/go-key-authority/internal/types"
)

type Service struct {
	store  registry.Store
	client network.Client
}

func NewService(store registry.Store, client network.Client) *Service {
	return &Service{store: store, client: client}
}

// Mint allocates a new key pair on the signing network and records its
// ownership. The private half never crosses the network boundary.
func (s *Service) Mint(ctx context.Context, owner common.Address) (*types.KeyRecord, error) {
	if owner == (common.Address{}) {
		return nil, types.NewKind(types.ErrInvalidOwner, "mint key")
	}

	rec, err := s.client.MintKey(ctx, owner)
	if err != nil {
		return nil, types.WrapKind(types.ErrProviderUnavailable, err, "mint key")
	}
	if err := s.store.PutRecord(ctx, rec); err != nil {
		return nil, types.WrapKind(types.ErrProviderUnavailable, err, "record minted key")
	}

	log.Info().Str("key_id", rec.ID).Str("owner", owner.Hex()).Msg("Minted key")
	return rec, nil
}

// TransferOwnership moves a key record to a new owner. Transferring to the
// zero address burns the record; burn is terminal and every later mutation
// of the record fails with not-found.
func (s *Service) TransferOwnership(ctx context.Context, keyID string, caller, newOwner common.Address) error {
	rec, err := s.liveRecord(ctx, keyID, "transfer key ownership")
	if err != nil {
		return err
	}
	if rec.Owner != caller {
		return types.NewKind(types.ErrUnauthorized, "transfer key ownership")
	}

	if err := s.client.TransferKey(ctx, keyID, newOwner); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "transfer key ownership")
	}

	rec.Owner = newOwner
	if newOwner == (common.Address{}) {
		rec.Status = types.KeyStatusBurned
	} else {
		rec.Status = types.KeyStatusTransferred
	}
	if err := s.store.PutRecord(ctx, rec); err != nil {
		return types.WrapKind(types.ErrProviderUnavailable, err, "record ownership transfer")
	}

	log.Info().
		Str("key_id", keyID).
		Str("new_owner", newOwner.Hex()).
		Str("status", string(rec.Status)).
		Msg("Transferred key ownership")
	return nil
}

// Get returns the key record, including burned ones: reads stay available
// after burn, only mutation is terminal.
func (s *Service) Get(ctx context.Context, keyID string) (*types.KeyRecord, error) {
	rec, err := s.store.GetRecord(ctx, keyID)
	if err != nil {
		return nil, types.WrapKind(types.ErrProviderUnavailable, err, "get key record")
	}
	if rec == nil {
		return nil, types.NewKind(types.ErrNotFound, "get key record")
	}
	return rec, nil
}

// ListByOwner returns every record currently owned by the address. Unknown
// owners yield an empty list, not an error.
func (s *Service) ListByOwner(ctx context.Context, owner common.Address) ([]*types.KeyRecord, error) {
	recs, err := s.store.ListRecordsByOwner(ctx, owner)
	if err != nil {
		return nil, types.WrapKind(types.ErrProviderUnavailable, err, "list keys by owner")
	}
	return recs, nil
}

// liveRecord loads a record and rejects unknown or burned keys.
func (s *Service) liveRecord(ctx context.Context, keyID, op string) (*types.KeyRecord, error) {
	rec, err := s.store.GetRecord(ctx, keyID)
	if err != nil {
		return nil, types.WrapKind(types.ErrProviderUnavailable, err, op)
	}
	if rec == nil || rec.Burned() {
		return nil, types.NewKind(types.ErrNotFound, op)
	}
	return rec, nil
}
