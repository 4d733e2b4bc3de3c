package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campustest/testgate/internal/config"
)

// ErrTokenInvalid is returned for malformed, forged or expired gateway
// tokens.
var ErrTokenInvalid = errors.New("invalid gateway token")

// Claims is the gateway session token payload. The upstream credential is
// the student's own test-service token; the gateway carries it so session
// calls to the test service run under the student's identity. The gateway
// issues and verifies these tokens but never issues upstream credentials;
// authentication against the institution is owned by the test service.
type Claims struct {
	jwt.RegisteredClaims
	StudentID     string `json:"student_id"`
	UpstreamToken string `json:"upstream_token"`
}

// AuthService issues and validates gateway JWTs.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// GenerateToken creates a gateway JWT binding a student id to their
// upstream test-service credential.
func (s *AuthService) GenerateToken(studentID, upstreamToken string) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   studentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		StudentID:     studentID,
		UpstreamToken: upstreamToken,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a gateway JWT, returning its claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.StudentID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
