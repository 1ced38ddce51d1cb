package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "awaybot"

// OwnerClaims identify the bot owner calling the management API.
type OwnerClaims struct {
	Owner string `json:"owner"`
	jwt.RegisteredClaims
}

// JWTManager issues and validates owner tokens signed with HS256.
type JWTManager struct {
	secret []byte
	expiry time.Duration
}

func NewJWTManager(secret string, expiry time.Duration) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
	}
}

// Issue signs a token for owner and returns it with its expiry time.
func (m *JWTManager) Issue(owner string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.expiry)

	claims := OwnerClaims{
		Owner: owner,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing owner token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses tokenStr and returns its claims when the signature,
// issuer and expiry all check out.
func (m *JWTManager) Validate(tokenStr string) (*OwnerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &OwnerClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("parsing owner token: %w", err)
	}

	claims, ok := token.Claims.(*OwnerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid owner token claims")
	}
	if claims.Owner == "" {
		return nil, fmt.Errorf("owner token has no owner")
	}

	return claims, nil
}
