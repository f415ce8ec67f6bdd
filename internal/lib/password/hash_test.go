package password

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetHashAndCompare(t *testing.T) {
	hash, err := GetHash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	require.NoError(t, CompareHash(hash, "correct horse battery staple"))
	require.Error(t, CompareHash(hash, "wrong password"))
}

func TestCompareHash_NotAHash(t *testing.T) {
	require.Error(t, CompareHash("plain-text", "plain-text"))
}
