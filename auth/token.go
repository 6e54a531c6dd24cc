package auth

import (
	"charity-chat/domain"
	"charity-chat/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "charity-chat"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string      `json:"user_id"`
	Kind   domain.Kind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 tokens with a single server secret.
type TokenIssuer struct {
	secret   []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, duration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), duration: duration, now: time.Now}
}

// GenerateToken creates a signed JWT for a donor or a charity.
func (t *TokenIssuer) GenerateToken(id string, kind domain.Kind) (string, error) {
	now := t.now()
	claims := &CustomClaims{
		UserID: id,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
// Every failure is reported as ErrAuthRequired.
func (t *TokenIssuer) ValidateToken(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, errors.ErrAuthRequired
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return t.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", errors.ErrAuthRequired, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" || !claims.Kind.Valid() {
		return Identity{}, fmt.Errorf("%w: invalid claims", errors.ErrAuthRequired)
	}
	return Identity{ID: claims.UserID, Kind: claims.Kind}, nil
}
