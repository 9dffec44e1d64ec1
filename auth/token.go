package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lingo-dm/errors"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies the opaque credential carried by the
// connection handshake. Token issuance normally belongs to the external
// auth service; it is kept here so development tooling and tests can
// mint credentials without it.
type TokenManager struct {
	secret   []byte
	issuer   string
	duration time.Duration
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), issuer: "lingo-dm", duration: duration}
}

// Generate creates a signed JWT for a specific user using the HS256
// algorithm (HMAC with SHA256).
func (m *TokenManager) Generate(userID string) (string, error) {
	claims := &CustomClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    m.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses and validates the signature and expiration of a JWT
// string. Expired or tampered tokens come back as ErrInvalidToken; the
// gateway refuses the handshake without creating any partial state.
func (m *TokenManager) Validate(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.ErrInvalidToken
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, errors.ErrInvalidToken
	}
	return claims, nil
}
