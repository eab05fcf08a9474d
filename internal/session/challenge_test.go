package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-key-authority/internal/types"
)

func TestNewNonce(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		nonce, err := newNonce()
		require.NoError(t, err)
		assert.Len(t, nonce, nonceLength)
		for _, r := range nonce {
			assert.Contains(t, nonceCharset, string(r))
		}
		_, dup := seen[nonce]
		assert.False(t, dup, "nonce %q repeated", nonce)
		seen[nonce] = struct{}{}
	}
}

func TestChallengeMessage(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &Challenge{
		Domain:    "key-authority.kashguard.dev",
		Address:   "0x1111111111111111111111111111111111111111",
		Statement: "Generate a session credential",
		URI:       "urn:key-authority:session",
		Version:   "1",
		ChainID:   1,
		Nonce:     "A1b2C3d4E5f6G7h8",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(5 * time.Minute),
		Resources: []types.ResourceAbility{
			{Resource: "key-1", Ability: types.AbilityExecute},
			{Resource: "key-2", Ability: types.AbilitySign},
		},
	}

	want := strings.Join([]string{
		"key-authority.kashguard.dev wants you to sign in with your Ethereum account:",
		"0x1111111111111111111111111111111111111111",
		"",
		"Generate a session credential",
		"",
		"URI: urn:key-authority:session",
		"Version: 1",
		"Chain ID: 1",
		"Nonce: A1b2C3d4E5f6G7h8",
		"Issued At: 2026-03-01T12:00:00Z",
		"Expiration Time: 2026-03-01T12:05:00Z",
		"Resources:",
		"- urn:key-authority:key-1/execute",
		"- urn:key-authority:key-2/sign",
	}, "\n")
	assert.Equal(t, want, c.Message())

	// Identical fields render identically.
	assert.Equal(t, c.Message(), c.Message())
}

func TestChallengeMessageWithoutStatement(t *testing.T) {
	c := &Challenge{
		Domain:  "d",
		Address: "0x0",
		URI:     "u",
		Version: "1",
	}
	msg := c.Message()
	assert.NotContains(t, msg, "\n\n\n")
	assert.NotContains(t, msg, "Resources:")
}
