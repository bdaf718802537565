package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestTokenRoundTrip(t *testing.T) {
	tg := NewTokenGenerator(testKey(t), time.Hour)

	token, err := tg.Generate(42, "alice", true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tg.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsAdmin)
	assert.Equal(t, "sshwatch", claims.Issuer)
}

func TestValidate_ExpiredToken(t *testing.T) {
	tg := NewTokenGenerator(testKey(t), -time.Minute)

	token, err := tg.Generate(1, "alice", false)
	require.NoError(t, err)

	_, err = tg.Validate(token)
	assert.Error(t, err)
}

func TestValidate_WrongKey(t *testing.T) {
	issuer := NewTokenGenerator(testKey(t), time.Hour)
	verifier := NewTokenGenerator(testKey(t), time.Hour)

	token, err := issuer.Generate(1, "alice", false)
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.Error(t, err)
}

func TestValidate_RejectsUnsignedToken(t *testing.T) {
	tg := NewTokenGenerator(testKey(t), time.Hour)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID:   1,
		Username: "alice",
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tg.Validate(token)
	assert.Error(t, err)
}

func TestValidate_Garbage(t *testing.T) {
	tg := NewTokenGenerator(testKey(t), time.Hour)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := tg.Validate(token)
		assert.Error(t, err, "token %q", token)
	}
}
