package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/upl-platform/exam-portal/internal/config"
	"github.com/upl-platform/exam-portal/internal/model"
)

// Common auth errors.
var (
	ErrTokenRevoked    = errors.New("token has been revoked")
	ErrIncompleteClaim = errors.New("token is missing the user id or role")
)

// Claims are the identity fields issued by the exam backend's login.
type Claims struct {
	jwt.RegisteredClaims
	UserID  string     `json:"user_id"`
	Name    string     `json:"name"`
	Role    model.Role `json:"role"`
	Faculty string     `json:"faculty,omitempty"`
}

// Student returns the identity carried by the claims.
func (c *Claims) Student() model.Student {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return model.Student{ID: id, Name: c.Name, Faculty: c.Faculty, Role: c.Role}
}

// AuthService validates bearer tokens shared with the exam backend and keeps
// the logout denylist in Redis.
type AuthService struct {
	cfg *config.Config
	rdb *redis.Client
	now func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, now: time.Now}
}

// IssueToken signs a token for student. The exam backend normally issues
// tokens; the portal does so for tooling and tests.
func (s *AuthService) IssueToken(student model.Student) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   student.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		UserID:  student.ID,
		Name:    student.Name,
		Role:    student.Role,
		Faculty: student.Faculty,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(ctx context.Context, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Student().ID == "" || claims.Role == "" {
		return nil, ErrIncompleteClaim
	}

	if claims.ID != "" {
		revoked, err := s.rdb.Exists(ctx, config.CacheKey.RevokedTokenKey(claims.ID)).Result()
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked > 0 {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Revoke denies claims' token until it would have expired anyway.
func (s *AuthService) Revoke(ctx context.Context, claims *Claims) error {
	if claims.ID == "" {
		return nil
	}
	ttl := time.Hour
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, config.CacheKey.RevokedTokenKey(claims.ID), 1, ttl).Err()
}

// ParseUnverified reads the claims of a token without checking its
// signature. The exam CLI uses it to learn who it acts for; the backend
// still verifies every call.
func ParseUnverified(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Student().ID == "" {
		return nil, ErrIncompleteClaim
	}
	return claims, nil
}
