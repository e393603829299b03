// internal/auth/service.go
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrInvalidKey   = errors.New("invalid API key")
)

// Claims carried by admin bearer tokens for the management API.
type Claims struct {
	Subject string `json:"sub_name,omitempty"`
	jwt.RegisteredClaims
}

type contextKey string

const AdminContextKey contextKey = "admin"

// Service validates admin bearer tokens and service API keys. Keys are
// configured, not stored; there is no user database behind this.
type Service struct {
	tokenSecret []byte
	keyHashes   [][]byte
}

func NewService(tokenSecret string, serviceKeys []string) *Service {
	hashes := make([][]byte, 0, len(serviceKeys))
	for _, key := range serviceKeys {
		hashes = append(hashes, hashKey(key))
	}
	return &Service{
		tokenSecret: []byte(tokenSecret),
		keyHashes:   hashes,
	}
}

// IssueAdminToken mints an HS256 bearer token for the management API.
func (s *Service) IssueAdminToken(subject string, ttl time.Duration) (string, time.Time, error) {
	expiresAt := time.Now().Add(ttl)
	claims := Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.tokenSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateAdminToken parses and verifies an admin bearer token.
func (s *Service) ValidateAdminToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.tokenSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateServiceKey checks an emitter API key against the configured set.
// Comparison is over SHA-256 digests so timing never leaks key bytes.
func (s *Service) ValidateServiceKey(key string) error {
	candidate := hashKey(key)
	for _, known := range s.keyHashes {
		if hmac.Equal(candidate, known) {
			return nil
		}
	}
	return ErrInvalidKey
}

func hashKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}
