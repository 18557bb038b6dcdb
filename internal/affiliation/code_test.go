package affiliation

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateInviteCode_FormatAndHash(t *testing.T) {
	code, hash, err := GenerateInviteCode()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(code, InviteCodePrefix))
	require.True(t, ValidateInviteCodeFormat(code))
	require.Len(t, hash, sha256.Size)
	require.Equal(t, HashInviteCode(code), hash)
}

func TestGenerateInviteCode_Unique(t *testing.T) {
	a, _, err := GenerateInviteCode()
	require.NoError(t, err)
	b, _, err := GenerateInviteCode()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestValidateInviteCodeFormat_InvalidPrefix(t *testing.T) {
	require.False(t, ValidateInviteCodeFormat("bhr_abc"))
	require.False(t, ValidateInviteCodeFormat(""))
}

func TestValidateInviteCodeFormat_BadEncoding(t *testing.T) {
	require.False(t, ValidateInviteCodeFormat(InviteCodePrefix+"not base64!!"))
}

func TestValidateInviteCodeFormat_WrongLength(t *testing.T) {
	code, _, err := GenerateInviteCode()
	require.NoError(t, err)
	require.False(t, ValidateInviteCodeFormat(code[:len(code)-4]))
}
