package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"billscan/internal/core"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
	ErrInvalidState = errors.New("invalid oauth state")
)

const (
	sessionAudience = "billscan"
	stateAudience   = "billscan-oauth-state"
	stateLifetime   = 10 * time.Minute
)

// JWTManager handles JWT token generation and validation.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	now           func() time.Time
}

// Claims represents the custom JWT claims for a user session.
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWT manager with the given secret and token duration.
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		now:           time.Now,
	}
}

// Lifetime is how long issued session tokens stay valid.
func (m *JWTManager) Lifetime() time.Duration {
	return m.tokenDuration
}

// Generate creates a session token for the given user.
func (m *JWTManager) Generate(user core.User) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Validate parses and validates a session token, returning the claims if valid.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc,
		jwt.WithAudience(sessionAudience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// stateClaims carry the OAuth state. Redirect is set when a local client
// (the CLI) asked to receive the session token on a loopback URL.
type stateClaims struct {
	Redirect string `json:"redirect,omitempty"`
	jwt.RegisteredClaims
}

// GenerateState returns a short-lived signed value for the OAuth state
// parameter, so the callback can tell it started the flow. redirect must be
// empty or a loopback http URL.
func (m *JWTManager) GenerateState(redirect string) (string, error) {
	if redirect != "" && !IsLoopbackURL(redirect) {
		return "", fmt.Errorf("%w: redirect must be a loopback url", ErrInvalidState)
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	now := m.now()
	claims := &stateClaims{
		Redirect: redirect,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        hex.EncodeToString(nonce),
			Audience:  jwt.ClaimStrings{stateAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(stateLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return s, nil
}

// ValidateState checks a value produced by GenerateState and returns the
// redirect it carries.
func (m *JWTManager) ValidateState(state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, m.keyFunc,
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.Redirect != "" && !IsLoopbackURL(claims.Redirect) {
		return "", ErrInvalidState
	}
	return claims.Redirect, nil
}

// IsLoopbackURL reports whether raw is an http URL on localhost or a
// loopback address.
func IsLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "http" || u.User != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (m *JWTManager) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return m.secretKey, nil
}
