package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"formdeck/internal/config"
	"formdeck/internal/repo"
)

// ErrInvalidCredentials hides which part of a login or token check failed.
var ErrInvalidCredentials = errors.New("invalid credentials")

const APIKeyPrefix = "fd_"

// Principal identifies the caller of a management request.
type Principal struct {
	ActorID string
	Source  string
}

type Claims struct {
	jwt.RegisteredClaims
}

// Service checks admin passwords, issues bearer tokens and resolves API keys.
type Service struct {
	Config config.AuthConfig
	Repo   repo.Repo
	Now    func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// HashPassword returns the bcrypt hash stored in auth.admin_password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login checks the configured admin account and returns a signed token.
func (s Service) Login(user, password string) (string, time.Time, error) {
	if s.Config.AdminPasswordHash == "" || user != s.Config.AdminUser {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.Config.AdminPasswordHash), []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.IssueToken(user)
}

// IssueToken signs an HS256 token for subject valid for the configured TTL.
func (s Service) IssueToken(subject string) (string, time.Time, error) {
	if strings.TrimSpace(s.Config.JWTSecret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	now := s.now()
	expires := now.Add(s.Config.TokenTTL())
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Config.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (s Service) VerifyToken(token string) (Principal, error) {
	if strings.TrimSpace(s.Config.JWTSecret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.Config.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidCredentials
	}
	if claims.Subject == "" {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{ActorID: claims.Subject, Source: "jwt"}, nil
}

// VerifyAPIKey resolves a plaintext key against the stored hashes.
func (s Service) VerifyAPIKey(ctx context.Context, key string) (Principal, error) {
	if strings.TrimSpace(key) == "" {
		return Principal{}, ErrInvalidCredentials
	}
	apiKey, err := s.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if errors.Is(err, repo.ErrNotFound) {
		return Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, err
	}
	actor := "api_key:" + apiKey.ID
	if apiKey.Name != "" {
		actor = "api_key:" + apiKey.Name
	}
	return Principal{ActorID: actor, Source: "api_key"}, nil
}

// GenerateAPIKey returns a new random plaintext key.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}
