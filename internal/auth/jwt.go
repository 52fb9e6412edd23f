// Package auth issues and verifies the bearer tokens guarding the admin API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrForbidden    = errors.New("admin role required")
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenService(secretKey string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenService{secretKey: []byte(secretKey), ttl: ttl, now: time.Now}
}

// IssueAdminToken signs an HS256 token for the given operator.
func (s *TokenService) IssueAdminToken(subject string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	return claims, nil
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
