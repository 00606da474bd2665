package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ControlTokenTTL is the lifetime of a GRIP control-plane token.
const ControlTokenTTL = 600 * time.Second

var (
	ErrMissingKey   = errors.New("control token key is empty")
	ErrInvalidToken = errors.New("invalid control token")
)

// SignControlToken creates an HS256 JWT asserting iss, valid for ttl from now.
func SignControlToken(iss string, key []byte, ttl time.Duration, now time.Time) (string, error) {
	if len(key) == 0 {
		return "", ErrMissingKey
	}
	claims := jwt.RegisteredClaims{
		Issuer:    iss,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        NewUUIDv7().String(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign control token: %w", err)
	}
	return token, nil
}

// VerifyControlToken checks signature, algorithm and expiry and returns the
// issuer.
func VerifyControlToken(token string, key []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Issuer, nil
}
