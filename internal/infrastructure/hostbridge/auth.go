package hostbridge

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid authentication token")
	ErrExpiredToken = errors.New("token has expired")
)

// Authenticator authenticates an incoming host connection and returns the
// campaign/session id the bridge should register under.
type Authenticator interface {
	Authenticate(r *http.Request) (sessionID string, err error)
}

// JWTAuth implements Authenticator with a single shared secret per
// deployment, matching the "one shared secret per campaign/session" note
// in SPEC_FULL.md. Grounded on the teacher's JWTAuth almost verbatim: the
// three-source token lookup (Authorization header, query param,
// Sec-WebSocket-Protocol) carries over unchanged, since a VTT host's
// scripting sandbox has the same limited ability to set custom headers a
// browser does.
type JWTAuth struct {
	secretKey string
}

func NewJWTAuth(secretKey string) *JWTAuth {
	return &JWTAuth{secretKey: secretKey}
}

func (a *JWTAuth) Authenticate(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
		return a.validateToken(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return a.validateToken(token)
	}

	protocols := r.Header.Get("Sec-WebSocket-Protocol")
	if protocols != "" {
		for _, p := range strings.Split(protocols, ",") {
			p = strings.TrimSpace(p)
			if strings.HasPrefix(p, "auth-") {
				return a.validateToken(strings.TrimPrefix(p, "auth-"))
			}
		}
	}

	return "", ErrMissingToken
}

// SessionClaims carries the campaign/session id in the JWT's own claim,
// falling back to the registered subject claim if absent.
type SessionClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

func (a *JWTAuth) validateToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.secretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	sessionID := claims.SessionID
	if sessionID == "" {
		sessionID = claims.Subject
	}
	if sessionID == "" {
		return "", ErrInvalidToken
	}

	return sessionID, nil
}

// GenerateToken is a helper for minting tokens out-of-band (ops tooling,
// tests); the campaign host embeds the resulting token in its connection
// URL or Sec-WebSocket-Protocol header.
func (a *JWTAuth) GenerateToken(sessionID string, expiresAt *jwt.NumericDate) (string, error) {
	claims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			ExpiresAt: expiresAt,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.secretKey))
}

// NoAuth allows any connection through, keyed by a "session" query param;
// useful for local development against a single host instance.
type NoAuth struct{}

func NewNoAuth() *NoAuth { return &NoAuth{} }

func (a *NoAuth) Authenticate(r *http.Request) (string, error) {
	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		return sessionID, nil
	}
	return "default", nil
}
