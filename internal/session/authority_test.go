package session

import (
	"context"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-key-authority/internal/capacity"
	"github.com/kashguard/go-key-authority/internal/network"
	"github.com/kashguard/go-key-authority/internal/types"
)

func newTestAuthority(t *testing.T) (*Authority, *time2.MockClock) {
	t.Helper()
	clock := time2.NewMockClock(time.Now())
	client := network.NewFakeClient(clock, 0)
	require.NoError(t, client.Connect(context.Background()))
	ledger := capacity.NewLedger(client, clock, nil)
	cfg := Config{
		Domain:                "key-authority.kashguard.dev",
		URI:                   "urn:key-authority:session",
		ChainID:               1,
		DefaultStatement:      "Generate a session credential",
		Minter:                common.HexToAddress("0x9999999999999999999999999999999999999999"),
		RequestsPerKilosecond: 10,
		ValidDays:             7,
	}
	return NewAuthority(cfg, ledger, clock, nil), clock
}

func newSigner(t *testing.T) *LocalSigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return NewLocalSigner(key)
}

func TestIssueSession(t *testing.T) {
	ctx := context.Background()
	authority, clock := newTestAuthority(t)
	signer := newSigner(t)

	cred, err := authority.IssueSession(ctx, Request{
		Signer:    signer,
		Resources: []types.ResourceAbility{{Resource: "key-1", Ability: types.AbilityExecute}},
	})
	require.NoError(t, err)

	assert.Equal(t, signer.Address(), cred.Subject)
	assert.Len(t, cred.Nonce, 16)
	assert.NotEmpty(t, cred.CapacityGrantID)
	assert.Equal(t, "Generate a session credential", cred.Statement)
	assert.Equal(t, clock.Now().Add(5*time.Minute), cred.ExpiresAt)
	assert.False(t, cred.ExpiredAt(clock.Now()))

	// The proof verifies against the subject.
	require.Len(t, cred.Proof, crypto.SignatureLength)
}

func TestIssueSessionClampsExpiration(t *testing.T) {
	ctx := context.Background()
	authority, clock := newTestAuthority(t)
	signer := newSigner(t)

	// A request beyond the horizon is clamped down to it.
	cred, err := authority.IssueSession(ctx, Request{
		Signer:     signer,
		Resources:  []types.ResourceAbility{{Resource: "key-1", Ability: types.AbilityExecute}},
		Expiration: clock.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(5*time.Minute), cred.ExpiresAt)

	// A shorter request wins over the horizon.
	short := clock.Now().Add(90 * time.Second)
	cred, err = authority.IssueSession(ctx, Request{
		Signer:     signer,
		Resources:  []types.ResourceAbility{{Resource: "key-1", Ability: types.AbilityExecute}},
		Expiration: short,
	})
	require.NoError(t, err)
	assert.Equal(t, short, cred.ExpiresAt)
}

func TestIssueSessionRequiresSignerAndResources(t *testing.T) {
	ctx := context.Background()
	authority, _ := newTestAuthority(t)

	_, err := authority.IssueSession(ctx, Request{
		Resources: []types.ResourceAbility{{Resource: "key-1", Ability: types.AbilityExecute}},
	})
	require.Error(t, err)

	_, err = authority.IssueSession(ctx, Request{Signer: newSigner(t)})
	require.Error(t, err)
}

func TestIssueSessionUsesSuppliedGrant(t *testing.T) {
	ctx := context.Background()
	authority, clock := newTestAuthority(t)

	grant := &types.CapacityGrant{ID: "grant-7", ExpiresAt: clock.Now().Add(time.Hour)}
	cred, err := authority.IssueSession(ctx, Request{
		Signer:    newSigner(t),
		Resources: []types.ResourceAbility{{Resource: "key-1", Ability: types.AbilityExecute}},
		Grant:     grant,
	})
	require.NoError(t, err)
	assert.Equal(t, "grant-7", cred.CapacityGrantID)
}

// addressLyingSigner signs correctly but claims someone else's address, so
// recovery must not match.
type addressLyingSigner struct {
	inner   *LocalSigner
	claimed common.Address
}

func (s *addressLyingSigner) Address() common.Address { return s.claimed }

func (s *addressLyingSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	return s.inner.SignMessage(ctx, message)
}

func TestIssueSessionSignatureMismatch(t *testing.T) {
	ctx := context.Background()
	authority, _ := newTestAuthority(t)

	liar := &addressLyingSigner{
		inner:   newSigner(t),
		claimed: common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd"),
	}
	cred, err := authority.IssueSession(ctx, Request{
		Signer:    liar,
		Resources: []types.ResourceAbility{{Resource: "key-1", Ability: types.AbilityExecute}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrSignatureMismatch)
	// No partial credential escapes a failed issuance.
	assert.Nil(t, cred)
}

func TestIssueSessionGrantMintFailure(t *testing.T) {
	ctx := context.Background()
	clock := time2.NewMockClock(time.Now())
	client := network.NewFakeClient(clock, 0)
	require.NoError(t, client.Connect(ctx))
	client.MintGrantErr = assert.AnError
	authority := NewAuthority(Config{RequestsPerKilosecond: 10, ValidDays: 7}, capacity.NewLedger(client, clock, nil), clock, nil)

	cred, err := authority.IssueSession(ctx, Request{
		Signer:    newSigner(t),
		Resources: []types.ResourceAbility{{Resource: "key-1", Ability: types.AbilityExecute}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
	assert.Nil(t, cred)
}
