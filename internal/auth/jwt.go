package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	TokenTypeAccess = "access"
)

type JWTManager struct {
	issuer   string
	audience string
	secret   []byte
}

// Claims carry the ledger account in UserID.
type Claims struct {
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

func NewJWTManager(issuer, audience, signingKey string) *JWTManager {
	return &JWTManager{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(signingKey),
	}
}

func (m *JWTManager) Mint(userID, role, tokenType string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("missing user id")
	}
	if role != RoleUser && role != RoleAdmin {
		return "", fmt.Errorf("invalid role: %s", role)
	}
	now := time.Now().UTC()
	claims := Claims{
		UserID:    userID,
		Role:      role,
		SessionID: uuid.NewString(),
		Type:      tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			Audience:  []string{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.secret)
}

// Parse verifies signature, expiry, issuer and audience, and rejects tokens
// whose subject disagrees with the uid claim.
func (m *JWTManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.Subject != claims.UserID {
		return nil, errors.New("subject mismatch")
	}
	return claims, nil
}
