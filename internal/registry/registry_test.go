package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Invariant 8: the five canonical categories derive their pinned addresses.
func TestCanonicalAddresses(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{"general", "DG7EBGqYFaWnaYeH9QQNEWeT6xY2DqVCzE"},
		{"compute", "DMiK6hDKciWj4NG9Pi7m9dtATduM46sdsT"},
		{"data", "D9mT3x5tsg7UYtxvjs9YwN8HN6EPiroSF6"},
		{"content", "DFhMUCFGhiv7Fd5fA1nvceDwTzPW8zpMi8"},
		{"identity", "DLtg8eRLc4BCZsb18GAvYmDRZC1PDyyJSi"},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			require.Equal(t, tt.want, Address(tt.category))
		})
	}
}

func TestSelfCheck(t *testing.T) {
	require.NoError(t, SelfCheck())
}

func TestDerivationIsDeterministic(t *testing.T) {
	require.Equal(t, Address("custom"), Address("custom"))
	require.NotEqual(t, Address("a"), Address("b"))
}
