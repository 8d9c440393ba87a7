package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	h, err := Hash("open sesame")
	require.NoError(t, err)

	salt, key, ok := strings.Cut(h, ":")
	require.True(t, ok)
	require.Len(t, salt, 32)
	require.Len(t, key, 128)

	require.True(t, Verify("open sesame", h))
	require.False(t, Verify("open sesame ", h))
	require.False(t, Verify("", h))
}

func TestHashIsSalted(t *testing.T) {
	a, err := Hash("pw")
	require.NoError(t, err)
	b, err := Hash("pw")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	for _, stored := range []string{"", "nocolon", ":abcd", "abcd:", "salt:zz", "salt:abcd"} {
		require.False(t, Verify("pw", stored), stored)
	}
}
