package jwt

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trangnv/homechat/pkg/errcode"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("u1", RoleUser, testSecret, 1)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserId)
	require.Equal(t, RoleUser, claims.Role)
	require.False(t, claims.IsAdmin())

	admin, err := GenerateToken("mod", RoleAdmin, testSecret, 1)
	require.NoError(t, err)
	claims, err = ParseToken(admin, testSecret)
	require.NoError(t, err)
	require.True(t, claims.IsAdmin())
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("u1", RoleUser, testSecret, 1)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	require.ErrorIs(t, err, errcode.ErrTokenInvalid)
}

func TestValidateTokenChecksUser(t *testing.T) {
	token, err := GenerateToken("u1", RoleUser, testSecret, 1)
	require.NoError(t, err)

	claims, err := ValidateToken(token, testSecret, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserId)

	_, err = ValidateToken(token, testSecret, "u2")
	require.ErrorIs(t, err, errcode.ErrTokenMismatch)
}
