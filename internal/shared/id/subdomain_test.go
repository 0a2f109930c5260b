package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSuffixLengthAndAlphabet(t *testing.T) {
	s, err := GenerateSuffix(SubdomainSuffixLength)
	require.NoError(t, err)
	require.Len(t, s, SubdomainSuffixLength)

	for _, c := range s {
		assert.True(t, strings.ContainsRune(lowercaseAlphanumeric, c), "unexpected character %q", c)
	}
}

func TestGenerateSuffixDefaultsOnNonPositiveLength(t *testing.T) {
	s, err := GenerateSuffix(0)
	require.NoError(t, err)
	assert.Len(t, s, SubdomainSuffixLength)
}

func TestGenerateSuffixUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s := MustGenerateSuffix(SubdomainSuffixLength)
		assert.False(t, seen[s], "duplicate suffix %q", s)
		seen[s] = true
	}
}

func TestSanitizeNodeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"node1", "node1"},
		{"My Node!!2", "my-node-2"},
		{"UPPER_CASE", "upper-case"},
		{"---", "node"},
		{"", "node"},
		{"a..b..c", "a-b-c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeNodeName(tt.in), "input %q", tt.in)
	}
}

func TestNewSubdomainShape(t *testing.T) {
	sub, err := NewSubdomain("Node One")
	require.NoError(t, err)

	parts := strings.SplitN(sub, "-", 2)
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(sub, "node-one-"))
	suffix := sub[len("node-one-"):]
	assert.Len(t, suffix, SubdomainSuffixLength)
}
