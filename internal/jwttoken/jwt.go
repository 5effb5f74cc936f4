package jwttoken

import (
	"github.com/golang-jwt/jwt/v5"

	"gatepass/internal/platform/middleware"
	"gatepass/pkg/domain"
	dErrors "gatepass/pkg/domain-errors"
)

// Claims are the claims expected on access tokens minted by the campus
// identity service.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Validator validates HS256 access tokens against the shared signing key.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken parses and verifies a token, returning middleware claims.
func (v *Validator) ValidateToken(tokenString string) (*middleware.Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token missing subject or role")
	}

	return &middleware.Claims{
		ActorID: claims.Subject,
		Role:    domain.Role(claims.Role),
	}, nil
}
