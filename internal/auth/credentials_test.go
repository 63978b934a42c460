package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestSetToken_TracksExpiry(t *testing.T) {
	base := time.Now()
	now = func() time.Time { return base }
	t.Cleanup(func() { now = time.Now })

	c := &Credentials{}
	assert.False(t, c.Valid())

	token := signedToken(t, jwt.MapClaims{"sub": "u1", "exp": base.Add(time.Hour).Unix()})
	require.NoError(t, c.SetToken(token))
	assert.True(t, c.Valid())
	assert.Equal(t, token, c.Token())

	now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.False(t, c.Valid())
}

func TestSetToken_NoExpiryClaim(t *testing.T) {
	c := &Credentials{}
	require.NoError(t, c.SetToken(signedToken(t, jwt.MapClaims{"sub": "u1"})))
	assert.True(t, c.Valid())
}

func TestSetToken_Malformed(t *testing.T) {
	c := &Credentials{}
	assert.Error(t, c.SetToken("not.a.jwt-at-all"))
	assert.False(t, c.Valid())
}

func TestClear(t *testing.T) {
	c := &Credentials{}
	require.NoError(t, c.SetToken(signedToken(t, jwt.MapClaims{"sub": "u1"})))
	c.Clear()
	assert.False(t, c.Valid())
	assert.Empty(t, c.Token())
}
