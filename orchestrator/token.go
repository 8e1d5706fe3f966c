package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeSessionActive is the scope minted into session tokens.
const ScopeSessionActive = "session:active"

var ErrInvalidToken = errors.New("invalid token")

// TokenClaims is the decoded payload of a session token.
type TokenClaims struct {
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
}

type sessionClaims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies the HMAC-signed session tokens handed out
// by POST /v1/sessions. The token subject is the session id.
type TokenService struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	expiry time.Duration
}

// NewTokenService builds a token service for the given HMAC algorithm.
// Non-HMAC or unknown algorithms fall back to HS256 with a warning.
func NewTokenService(secret, algorithm string, expiry time.Duration) *TokenService {
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		slog.Warn("orchestrator: unsupported jwt algorithm, using HS256", "algorithm", algorithm)
		method = jwt.SigningMethodHS256
	}
	return &TokenService{secret: []byte(secret), method: method, expiry: expiry}
}

func (s *TokenService) Issue(sessionID string, scopes []string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	token := jwt.NewWithClaims(s.method, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token. Expired, malformed or wrongly signed
// tokens all come back as ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (*TokenClaims, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{s.method.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	out := &TokenClaims{
		Subject: claims.Subject,
		Scopes:  claims.Scopes,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
