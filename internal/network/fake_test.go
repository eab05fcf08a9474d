package network

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = common.HexToAddress("0x1000000000000000000000000000000000000001")

func TestProgramID(t *testing.T) {
	id := ProgramID([]byte("tool:echo:v1"))
	assert.Len(t, id, 64)
	assert.Equal(t, id, ProgramID([]byte("tool:echo:v1")))
	assert.NotEqual(t, id, ProgramID([]byte("tool:echo:v2")))
}

func TestProgramRefResolve(t *testing.T) {
	byID := ProgramRef{ProgramID: "abc"}
	assert.Equal(t, "abc", byID.Resolve())

	code := []byte("tool:echo:v1")
	byCode := ProgramRef{Code: code}
	assert.Equal(t, ProgramID(code), byCode.Resolve())
}

func TestFakeClientRequiresConnect(t *testing.T) {
	client := NewFakeClient(nil, 0)
	_, err := client.MintKey(context.Background(), owner)
	require.Error(t, err)
}

func TestFakeClientSignProgram(t *testing.T) {
	ctx := context.Background()
	client := NewFakeClient(nil, 0)
	require.NoError(t, client.Connect(ctx))

	rec, err := client.MintKey(ctx, owner)
	require.NoError(t, err)

	result, err := client.ExecuteProgram(ctx, nil, ProgramRef{Code: SignProgramCode}, map[string]any{
		"keyId":   rec.ID,
		"message": "hello",
	})
	require.NoError(t, err)

	sig, err := hex.DecodeString(result.Response)
	require.NoError(t, err)
	pub, err := crypto.SigToPub(crypto.Keccak256([]byte("hello")), sig)
	require.NoError(t, err)
	// The signature verifies against the minted key's public half.
	assert.Equal(t, []byte(rec.PublicKey), crypto.FromECDSAPub(pub))
}

func TestFakeClientUnknownProgram(t *testing.T) {
	ctx := context.Background()
	client := NewFakeClient(nil, 0)
	require.NoError(t, client.Connect(ctx))

	_, err := client.ExecuteProgram(ctx, nil, ProgramRef{Code: []byte("tool:missing:v1")}, nil)
	require.Error(t, err)
	var execErr *ExecutionError
	assert.ErrorAs(t, err, &execErr)
}

func TestFakeClientKeyExpiry(t *testing.T) {
	ctx := context.Background()
	clock := time2.NewMockClock(time.Now())
	client := NewFakeClient(clock, 24*time.Hour)
	require.NoError(t, client.Connect(ctx))

	rec, err := client.MintKey(ctx, owner)
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)

	_, err = client.ExecuteProgram(ctx, nil, ProgramRef{Code: SignProgramCode}, map[string]any{
		"keyId":   rec.ID,
		"message": "hello",
	})
	require.Error(t, err)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "expired")
}
