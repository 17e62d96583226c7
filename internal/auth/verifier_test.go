package auth

import (
	"context"
	"testing"
	"time"

	"challenge-server/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims *models.Claims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTVerifier_ValidToken(t *testing.T) {
	v, err := NewJWTVerifier(testSecret, nil)
	require.NoError(t, err)

	tokenString := signToken(t, &models.Claims{
		OwnerID: "owner-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	claims, err := v.VerifyToken(context.Background(), tokenString)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", claims.OwnerID)
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	v, err := NewJWTVerifier(testSecret, nil)
	require.NoError(t, err)

	tokenString := signToken(t, &models.Claims{
		OwnerID: "owner-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, testSecret)

	_, err = v.VerifyToken(context.Background(), tokenString)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestJWTVerifier_MalformedToken(t *testing.T) {
	v, err := NewJWTVerifier(testSecret, nil)
	require.NoError(t, err)

	_, err = v.VerifyToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, models.ErrTokenMalformed)
}

func TestJWTVerifier_WrongSignature(t *testing.T) {
	v, err := NewJWTVerifier(testSecret, nil)
	require.NoError(t, err)

	tokenString := signToken(t, &models.Claims{OwnerID: "owner-1"}, "another-secret")

	_, err = v.VerifyToken(context.Background(), tokenString)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestJWTVerifier_MissingOwnerID(t *testing.T) {
	v, err := NewJWTVerifier(testSecret, nil)
	require.NoError(t, err)

	tokenString := signToken(t, &models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	_, err = v.VerifyToken(context.Background(), tokenString)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestNewJWTVerifier_EmptySecret(t *testing.T) {
	_, err := NewJWTVerifier("", nil)
	assert.Error(t, err)
}
