// ABOUTME: JWT token verification for structural bearer credential checks
// ABOUTME: Uses HS256 signing with configurable secret, issuer, and audience

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// MinSecretLength is the minimum allowed HMAC secret length in bytes.
const MinSecretLength = 32

// TokenClaims carries the structural claims extracted from a verified token.
type TokenClaims struct {
	Subject            string
	Email              string
	EmailVerified      bool
	SubscriptionActive bool
	ExpiresAt          time.Time
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*TokenClaims, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs.
// Verification is structural only: expiration, issuer, and audience.
// Scope decisions belong to the authorization layer.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTVerifier creates a new JWT verifier with the given secret.
// Issuer and audience are enforced when non-empty.
func NewJWTVerifier(secret []byte, issuer, audience string) (*JWTVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
	}
	return &JWTVerifier{secret: secret, issuer: issuer, audience: audience}, nil
}

// Verify validates the token signature and structural claims.
func (v *JWTVerifier) Verify(tokenString string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	tc := &TokenClaims{Subject: sub}
	if email, ok := claims["email"].(string); ok {
		tc.Email = email
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		tc.EmailVerified = verified
	}
	if active, ok := claims["subscription_active"].(bool); ok {
		tc.SubscriptionActive = active
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.Time
	}

	return tc, nil
}

// Generate creates a new JWT token for the given subject with expiration.
// Extra claims are merged in; reserved claims cannot be overridden.
func (v *JWTVerifier) Generate(subject string, expiresIn time.Duration, extra map[string]any) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{}
	for k, val := range extra {
		claims[k] = val
	}
	claims["sub"] = subject
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(expiresIn).Unix()
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	if v.audience != "" {
		claims["aud"] = v.audience
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
