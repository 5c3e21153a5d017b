package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthenticator() *JWTAuthenticator {
	return NewJWTAuthenticator("access-secret", "refresh-secret", "portal", "portal", time.Hour, 24*time.Hour)
}

func TestGenerateAndValidate(t *testing.T) {
	a := newTestAuthenticator()

	access, refresh, err := a.GenerateTokens(42)
	require.NoError(t, err)

	tok, err := a.ValidateAccessToken(access)
	require.NoError(t, err)
	id, err := UserID(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	claims := tok.Claims.(jwt.MapClaims)
	_, hasRole := claims["role"]
	assert.False(t, hasRole, "tier must not be embedded in the token")

	rtok, err := a.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	id, err = UserID(rtok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	a := newTestAuthenticator()
	access, refresh, err := a.GenerateTokens(1)
	require.NoError(t, err)

	_, err = a.ValidateAccessToken(refresh)
	assert.Error(t, err)
	_, err = a.ValidateRefreshToken(access)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	a := newTestAuthenticator()
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	access, _, err := a.GenerateTokens(1)
	require.NoError(t, err)

	a.now = time.Now
	_, err = a.ValidateAccessToken(access)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestRejectsOtherSigningMethod(t *testing.T) {
	a := newTestAuthenticator()
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "1", "exp": time.Now().Add(time.Hour).Unix(), "iss": "portal", "aud": "portal",
	})
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = a.ValidateAccessToken(signed)
	assert.Error(t, err)
}

func TestUserID_BadSubject(t *testing.T) {
	tok := &jwt.Token{Claims: jwt.MapClaims{"sub": "abc"}}
	_, err := UserID(tok)
	assert.ErrorIs(t, err, ErrInvalidSubject)
}
