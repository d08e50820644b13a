// Package auth handles bearer tokens for the hushwire client and classifies
// authentication rejections.
//
// Authentication failures are deliberately kept separate from transport
// failures: only explicit 401-class rejections observed by the Interceptor
// count against session health. Network blips never do.
package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// TokenSource supplies the session bearer token.
type TokenSource interface {
	// Token returns the current bearer token, or "" when none is held.
	Token() string
	// Valid reports whether the held token is usable.
	Valid() bool
	// RequireValidation signals that the token was rejected and the
	// application must re-authenticate.
	RequireValidation()
}

// StaticTokenSource holds a fixed token. Valid is true while a non-empty
// token is set and no validation has been demanded.
type StaticTokenSource struct {
	mu         sync.RWMutex
	token      string
	needsCheck bool
	onValidate func()
}

// NewStaticTokenSource creates a source with the given token. onValidate
// fires when the token is rejected; it may be nil.
func NewStaticTokenSource(token string, onValidate func()) *StaticTokenSource {
	return &StaticTokenSource{token: token, onValidate: onValidate}
}

// SetToken replaces the token and clears any pending validation demand.
func (s *StaticTokenSource) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.needsCheck = false
	s.mu.Unlock()
}

func (s *StaticTokenSource) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *StaticTokenSource) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && !s.needsCheck
}

func (s *StaticTokenSource) RequireValidation() {
	s.mu.Lock()
	s.needsCheck = true
	fn := s.onValidate
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "RequireValidation",
	}).Warn("Bearer token flagged for re-validation")

	if fn != nil {
		fn()
	}
}

// JWTTokenSource wraps a JWT bearer token and treats expiry as invalidity.
// The client holds no key material, so the signature is not verified here;
// only the exp claim is inspected.
type JWTTokenSource struct {
	StaticTokenSource
}

// NewJWTTokenSource creates a source for a JWT bearer token.
func NewJWTTokenSource(token string, onValidate func()) *JWTTokenSource {
	src := &JWTTokenSource{}
	src.SetToken(token)
	src.onValidate = onValidate
	return src
}

func (s *JWTTokenSource) Valid() bool {
	if !s.StaticTokenSource.Valid() {
		return false
	}

	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(s.Token(), &claims)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Valid",
			"error":    err,
		}).Warn("Bearer token is not a parsable JWT")
		return false
	}

	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.After(time.Now())
}
