package keystore

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-key-authority/internal/network"
	"github.com/kashguard/go-key-authority/internal/registry"
	"github.com/kashguard/go-key-authority/internal/types"
)

var (
	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func newTestService(t *testing.T) (*Service, *network.FakeClient) {
	t.Helper()
	client := network.NewFakeClient(nil, 0)
	require.NoError(t, client.Connect(context.Background()))
	return NewService(registry.NewMemoryStore(), client), client
}

func TestMint(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	rec, err := svc.Mint(ctx, alice)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.PublicKey)
	assert.Equal(t, alice, rec.Owner)
	assert.Equal(t, types.KeyStatusActive, rec.Status)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

func TestMintRejectsZeroOwner(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Mint(context.Background(), common.Address{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidOwner)
}

func TestMintProviderFailure(t *testing.T) {
	svc, client := newTestService(t)
	client.MintKeyErr = errors.New("relayer rejected the mint request")

	_, err := svc.Mint(context.Background(), alice)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
	// The provider's message survives wrapping verbatim.
	assert.Contains(t, err.Error(), "relayer rejected the mint request")
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	rec, err := svc.Mint(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, svc.TransferOwnership(ctx, rec.ID, alice, bob))

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, got.Owner)
	assert.Equal(t, types.KeyStatusTransferred, got.Status)

	byOwner, err := svc.ListByOwner(ctx, bob)
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	byOwner, err = svc.ListByOwner(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, byOwner)
}

func TestTransferOwnershipUnauthorized(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	rec, err := svc.Mint(ctx, alice)
	require.NoError(t, err)

	err = svc.TransferOwnership(ctx, rec.ID, bob, bob)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, alice, got.Owner)
}

func TestTransferOwnershipUnknownKey(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.TransferOwnership(context.Background(), "nope", alice, bob)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBurnIsTerminal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	rec, err := svc.Mint(ctx, alice)
	require.NoError(t, err)

	require.NoError(t, svc.TransferOwnership(ctx, rec.ID, alice, common.Address{}))

	// Reads stay available after burn.
	got, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.KeyStatusBurned, got.Status)
	assert.True(t, got.Burned())

	// Every later mutation fails with not-found, whoever calls.
	err = svc.TransferOwnership(ctx, rec.ID, alice, bob)
	assert.ErrorIs(t, err, types.ErrNotFound)
	err = svc.TransferOwnership(ctx, rec.ID, common.Address{}, bob)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
