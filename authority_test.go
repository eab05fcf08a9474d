package keyauthority_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	keyauthority "github.com/kashguard/go-key-authority"
	"github.com/kashguard/go-key-authority/examples/taxcategory"
)

var adminAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")

func secretShareConfig() keyauthority.Config {
	cfg := keyauthority.DefaultConfig()
	cfg.Provider = keyauthority.BackendSecretShare
	cfg.TokenSecret = "test-secret"
	return cfg
}

func TestOperationsRequireInit(t *testing.T) {
	a, err := keyauthority.New(secretShareConfig())
	require.NoError(t, err)

	_, err = a.MintWallet(context.Background(), adminAddr)
	assert.ErrorIs(t, err, keyauthority.ErrNotInitialized)
	_, err = a.IssueSession(context.Background(), keyauthority.SessionRequest{})
	assert.ErrorIs(t, err, keyauthority.ErrNotInitialized)
}

func TestInitAndCloseAreIdempotent(t *testing.T) {
	ctx := context.Background()
	a, err := keyauthority.New(secretShareConfig())
	require.NoError(t, err)

	require.NoError(t, a.Init(ctx))
	require.NoError(t, a.Init(ctx))
	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx))

	_, err = a.MintWallet(ctx, adminAddr)
	assert.ErrorIs(t, err, keyauthority.ErrNotInitialized)
}

func TestThresholdBackendRequiresClient(t *testing.T) {
	cfg := keyauthority.DefaultConfig()
	cfg.Provider = keyauthority.BackendThreshold
	_, err := keyauthority.New(cfg)
	require.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := secretShareConfig()
	cfg.MaxSessionTTL = 0
	_, err := keyauthority.New(cfg)
	require.Error(t, err)
}

// TestDelegatedTaxComputation walks the whole lifecycle: mint a key,
// register the tax program as a tool, delegate it, issue a session and
// execute through the gateway.
func TestDelegatedTaxComputation(t *testing.T) {
	ctx := context.Background()

	client := keyauthority.NewLocalNetworkClient(0)
	programID := client.RegisterProgram(taxcategory.Code, taxcategory.Handler)

	a, err := keyauthority.New(secretShareConfig(), keyauthority.WithNetworkClient(client))
	require.NoError(t, err)
	require.NoError(t, a.Init(ctx))
	defer a.Close(ctx)

	rec, err := a.MintWallet(ctx, adminAddr)
	require.NoError(t, err)

	delegateeKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := keyauthority.NewLocalSigner(delegateeKey)

	require.NoError(t, a.AddDelegatee(ctx, rec.ID, signer.Address()))
	require.NoError(t, a.RegisterTool(ctx, rec.ID, programID, keyauthority.ToolOptions{EnabledByDefault: true}))
	require.NoError(t, a.PermitToolForDelegatee(ctx, rec.ID, programID, signer.Address()))

	perm, err := a.IsToolPermittedForDelegatee(ctx, rec.ID, programID, signer.Address())
	require.NoError(t, err)
	assert.True(t, perm.IsEnabled)

	cred, err := a.IssueSession(ctx, keyauthority.SessionRequest{
		Signer: signer,
		Resources: []keyauthority.ResourceAbility{
			{Resource: rec.ID, Ability: keyauthority.AbilityExecute},
		},
		Expiration: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	// However much was asked for, the credential never outlives the horizon.
	assert.LessOrEqual(t, cred.ExpiresAt.Sub(cred.IssuedAt), 5*time.Minute)

	result, err := a.Execute(ctx, cred, keyauthority.ProgramRef{Code: taxcategory.Code}, map[string]any{
		"category": "other",
		"amount":   1000000,
	})
	require.NoError(t, err)

	var res taxcategory.Result
	require.NoError(t, json.Unmarshal([]byte(result.Response), &res))
	assert.InDelta(t, 109200, res.TaxDue, 0.01)

	// Unpermitting shuts the delegatee out of the still-live credential.
	require.NoError(t, a.UnpermitToolForDelegatee(ctx, rec.ID, programID, signer.Address()))
	_, err = a.Execute(ctx, cred, keyauthority.ProgramRef{Code: taxcategory.Code}, map[string]any{
		"category": "other",
		"amount":   1000000,
	})
	assert.ErrorIs(t, err, keyauthority.ErrUnauthorized)
}

// A session scoped to signing only must not open the execution path, even
// for a subject that was never permitted anything.
func TestSignOnlySessionCannotExecute(t *testing.T) {
	ctx := context.Background()

	client := keyauthority.NewLocalNetworkClient(0)
	programID := client.RegisterProgram(taxcategory.Code, taxcategory.Handler)

	a, err := keyauthority.New(secretShareConfig(), keyauthority.WithNetworkClient(client))
	require.NoError(t, err)
	require.NoError(t, a.Init(ctx))
	defer a.Close(ctx)

	rec, err := a.MintWallet(ctx, adminAddr)
	require.NoError(t, err)
	require.NoError(t, a.RegisterTool(ctx, rec.ID, programID, keyauthority.ToolOptions{EnabledByDefault: true}))

	strangerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := keyauthority.NewLocalSigner(strangerKey)

	cred, err := a.IssueSession(ctx, keyauthority.SessionRequest{
		Signer: signer,
		Resources: []keyauthority.ResourceAbility{
			{Resource: rec.ID, Ability: keyauthority.AbilitySign},
		},
		Expiration: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = a.Execute(ctx, cred, keyauthority.ProgramRef{Code: taxcategory.Code}, map[string]any{
		"category": "other",
		"amount":   1000000,
	})
	assert.ErrorIs(t, err, keyauthority.ErrUnauthorized)
}

func TestSessionTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, err := keyauthority.New(secretShareConfig())
	require.NoError(t, err)
	require.NoError(t, a.Init(ctx))
	defer a.Close(ctx)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := keyauthority.NewLocalSigner(key)

	cred, err := a.IssueSession(ctx, keyauthority.SessionRequest{
		Signer: signer,
		Resources: []keyauthority.ResourceAbility{
			{Resource: "key-1", Ability: keyauthority.AbilityExecute},
		},
	})
	require.NoError(t, err)

	token, err := a.SessionToken(cred)
	require.NoError(t, err)

	got, err := keyauthority.DecodeSessionToken(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, cred.Subject, got.Subject)
	assert.Equal(t, cred.Nonce, got.Nonce)

	_, err = keyauthority.DecodeSessionToken(token, "other-secret")
	assert.ErrorIs(t, err, keyauthority.ErrSignatureMismatch)
}

func TestKeyLifecycleThroughFacade(t *testing.T) {
	ctx := context.Background()
	a, err := keyauthority.New(secretShareConfig())
	require.NoError(t, err)
	require.NoError(t, a.Init(ctx))
	defer a.Close(ctx)

	rec, err := a.MintWallet(ctx, adminAddr)
	require.NoError(t, err)

	owned, err := a.OwnedWallets(ctx, adminAddr)
	require.NoError(t, err)
	require.Len(t, owned, 1)

	// Burn and verify terminality through the public surface.
	require.NoError(t, a.TransferWalletOwnership(ctx, rec.ID, adminAddr, common.Address{}))
	info, err := a.WalletInfo(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, keyauthority.KeyStatusBurned, info.Status)

	err = a.AddDelegatee(ctx, rec.ID, adminAddr)
	assert.ErrorIs(t, err, keyauthority.ErrNotFound)
}

func TestCapacityGrantFacade(t *testing.T) {
	ctx := context.Background()
	a, err := keyauthority.New(secretShareConfig())
	require.NoError(t, err)
	require.NoError(t, a.Init(ctx))
	defer a.Close(ctx)

	first, err := a.EnsureCapacityGrant(ctx, nil)
	require.NoError(t, err)
	second, err := a.EnsureCapacityGrant(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	fresh, err := a.FreshCapacityGrant(ctx, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fresh.ID)
}
