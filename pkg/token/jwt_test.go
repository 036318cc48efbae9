package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("secret", "https://auth.example", 1)
	tok, err := m.GenerateToken("user-1", "founder@flowco.io")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, "founder@flowco.io", claims.Email)
}

func TestVerifyRejectsWrongSecretAndIssuer(t *testing.T) {
	tok, err := NewJWTManager("other", "", 1).GenerateToken("u", "a@b.c")
	require.NoError(t, err)
	_, err = NewJWTManager("secret", "", 1).VerifyToken(tok)
	assert.Error(t, err)

	tok, err = NewJWTManager("secret", "https://evil", 1).GenerateToken("u", "a@b.c")
	require.NoError(t, err)
	_, err = NewJWTManager("secret", "https://auth.example", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredAndSubjectless(t *testing.T) {
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	s, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewJWTManager("secret", "", 1).VerifyToken(s)
	assert.Error(t, err)

	anon := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{Email: "a@b.c"})
	s, err = anon.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = NewJWTManager("secret", "", 1).VerifyToken(s)
	assert.Error(t, err)
}
