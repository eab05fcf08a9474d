package types

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKind(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := WrapKind(ErrProviderUnavailable, cause, "mint key")

	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "mint key: provider unavailable: dial tcp: connection refused", err.Error())
}

func TestNewKind(t *testing.T) {
	err := NewKind(ErrNotFound, "get key record")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "get key record: not found", err.Error())
	require.Nil(t, errors.Unwrap(err))
}
