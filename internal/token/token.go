// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package token builds and verifies compact signed access tokens and
// derives the one-way hashes used for refresh tokens and OTP codes.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("invalid token signature")
	ErrExpiredToken   = errors.New("token expired")
)

// DefaultAccessTTL is the access-token lifetime used when none is configured.
const DefaultAccessTTL = 15 * time.Minute

// Claims is the access-token payload. The token is self-contained: no
// server-side session exists for access tokens.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access tokens with a shared HMAC-SHA256 secret.
type Codec struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewCodec creates a codec. A zero ttl falls back to DefaultAccessTTL.
func NewCodec(secret string, accessTTL time.Duration) *Codec {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &Codec{secret: []byte(secret), accessTTL: accessTTL, now: time.Now}
}

// AccessTTL returns the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// SignAccessToken issues a signed token for the given subject. Signing is
// deterministic for identical inputs and timestamp.
func (c *Codec) SignAccessToken(sub, email, name string, now time.Time) (string, error) {
	claims := Claims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken validates structure, signature and expiry, in that order.
// The expiry boundary is exact: a token verified at exp is already expired,
// and no clock-skew leeway is applied.
func (c *Codec) VerifyAccessToken(tok string) (*Claims, error) {
	segments := strings.Split(tok, ".")
	if len(segments) != 3 {
		return nil, ErrMalformedToken
	}
	for _, seg := range segments {
		if seg == "" {
			return nil, ErrMalformedToken
		}
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tok, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrMalformedToken
	default:
		return nil, fmt.Errorf("verifying access token: %w", err)
	}
}

// HashOpaque computes the SHA-256 hex digest of an opaque secret. Refresh
// tokens and OTP codes are persisted only through this hash.
func HashOpaque(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// GenerateOpaque returns byteLength cryptographically secure random bytes,
// hex-encoded.
func GenerateOpaque(byteLength int) (string, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
