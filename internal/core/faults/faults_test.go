package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSessionTerminal(t *testing.T) {
	wrapped := fmt.Errorf("ledger: submit multihop: %w", ErrStepCountMismatch)
	require.True(t, IsSessionTerminal(wrapped))
	require.True(t, IsSessionTerminal(ErrDecomposition))
	require.False(t, IsSessionTerminal(ErrOutputRetrieval))
	require.False(t, IsSessionTerminal(ErrConfiguration))
	require.False(t, IsSessionTerminal(nil))
}

func TestConfigfWrapsConfiguration(t *testing.T) {
	err := Configf("need %d providers, got %d", 3, 2)
	require.ErrorIs(t, err, ErrConfiguration)
	require.Contains(t, err.Error(), "need 3 providers, got 2")
}

func TestReason(t *testing.T) {
	require.Equal(t, "unknown error", Reason(nil))
	require.Equal(t, "unknown error", Reason(errors.New("  ")))
	require.Equal(t, "boom", Reason(errors.New("boom")))
}
