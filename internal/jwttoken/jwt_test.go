package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatepass/pkg/domain"
)

const testKey = "test-signing-key"

func mint(t *testing.T, key string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	v := NewValidator(testKey)

	t.Run("valid token", func(t *testing.T) {
		signed := mint(t, testKey, Claims{
			Role: "student",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "9b2e1af3-66a1-4c8e-9f2d-2b7f6f2ee111",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})

		claims, err := v.ValidateToken(signed)
		require.NoError(t, err)
		assert.Equal(t, "9b2e1af3-66a1-4c8e-9f2d-2b7f6f2ee111", claims.ActorID)
		assert.Equal(t, domain.RoleStudent, claims.Role)
	})

	t.Run("wrong key", func(t *testing.T) {
		signed := mint(t, "other-key", Claims{
			Role: "student",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "subject",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		_, err := v.ValidateToken(signed)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		signed := mint(t, testKey, Claims{
			Role: "student",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "subject",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})
		_, err := v.ValidateToken(signed)
		assert.Error(t, err)
	})

	t.Run("missing role", func(t *testing.T) {
		signed := mint(t, testKey, Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "subject",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		_, err := v.ValidateToken(signed)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.ValidateToken("not.a.jwt")
		assert.Error(t, err)
	})
}
