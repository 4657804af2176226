// Package auth protects the ring's admin HTTP surface (node join/leave,
// rebalance triggers) with JWT bearer tokens, the way the teacher protects
// its multi-tenant API — trimmed down to a flat admin/write/read role set.
package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ringdht/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// AuthServiceInterface is the contract the HTTP middleware depends on.
type AuthServiceInterface interface {
	GenerateToken(userID string, roles []string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims identifies the caller and the roles granted to them. RingDHT has
// no tenant concept, unlike the teacher's multi-tenant claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

// AuthService issues and validates RS256-signed JWTs.
type AuthService struct {
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	tokenDuration time.Duration
}

// NewAuthService builds a JWT-backed auth service from the configured RSA
// key pair. If the configured keys don't parse, it falls back to
// SimpleAuthService the way the teacher does, rather than failing startup.
func NewAuthService(cfg *config.AuthConfig) (AuthServiceInterface, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return NewSimpleAuthService(cfg.TokenDuration), nil
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
	if err != nil {
		return NewSimpleAuthService(cfg.TokenDuration), nil
	}

	return &AuthService{
		privateKey:    privateKey,
		publicKey:     publicKey,
		tokenDuration: time.Duration(cfg.TokenDuration) * time.Second,
	}, nil
}

func (a *AuthService) GenerateToken(userID string, roles []string) (string, error) {
	claims := &Claims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "ringdht",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(a.privateKey)
}

func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.publicKey, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// SimpleAuthService is a dependency-free fallback for local development
// where no RSA key pair is configured.
type SimpleAuthService struct {
	tokenDuration time.Duration
}

func NewSimpleAuthService(tokenDuration int) *SimpleAuthService {
	return &SimpleAuthService{tokenDuration: time.Duration(tokenDuration) * time.Second}
}

func (s *SimpleAuthService) GenerateToken(userID string, roles []string) (string, error) {
	tokenData := fmt.Sprintf("%s:%s", userID, strings.Join(roles, ","))
	encoded := base64.StdEncoding.EncodeToString([]byte(tokenData))
	return "simple-token-" + encoded, nil
}

func (s *SimpleAuthService) ValidateToken(tokenString string) (*Claims, error) {
	if !strings.HasPrefix(tokenString, "simple-token-") {
		return nil, ErrInvalidToken
	}

	encoded := strings.TrimPrefix(tokenString, "simple-token-")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidToken
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) < 2 {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID: parts[0],
		Roles:  strings.Split(parts[1], ","),
	}, nil
}

var _ AuthServiceInterface = (*AuthService)(nil)
var _ AuthServiceInterface = (*SimpleAuthService)(nil)
