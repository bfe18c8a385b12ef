// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package otp implements the one-time passcode policy: code generation,
// expiry, attempt limiting and resend cooldown. The engine only decides;
// persisting the resulting state changes is the caller's job.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/notefleet/notefleet/internal/token"
)

const (
	DefaultTTL            = 5 * time.Minute
	DefaultMaxAttempts    = 5
	DefaultResendCooldown = 60 * time.Second
)

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a 6-digit zero-padded code drawn uniformly from
// [0, 1000000) using a secure random source.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generating otp code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// State is a snapshot of an identity's verification fields. Exactly one of
// "unverified with OTP state" and "verified with timestamp" holds at a time.
type State struct {
	CodeHash   string
	ExpiresAt  *time.Time
	Attempts   int
	SentAt     *time.Time
	VerifiedAt *time.Time
}

// Issued is the stored shape of a freshly generated code.
type Issued struct {
	CodeHash  string
	ExpiresAt time.Time
	SentAt    time.Time
}

// VerifyResult is the outcome of a code submission.
type VerifyResult int

const (
	VerifyAccepted VerifyResult = iota
	VerifyAlreadyVerified
	VerifyTooManyAttempts
	VerifyExpired
	VerifyMismatch
)

// ResendResult is the outcome of a resend request.
type ResendResult int

const (
	ResendAccepted ResendResult = iota
	ResendAlreadyVerified
	ResendCooldownActive
)

// Engine holds the OTP policy knobs.
type Engine struct {
	ttl            time.Duration
	maxAttempts    int
	resendCooldown time.Duration
}

// NewEngine creates an engine; non-positive values fall back to the defaults.
func NewEngine(ttl time.Duration, maxAttempts int, resendCooldown time.Duration) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if resendCooldown <= 0 {
		resendCooldown = DefaultResendCooldown
	}
	return &Engine{ttl: ttl, maxAttempts: maxAttempts, resendCooldown: resendCooldown}
}

// TTL returns the configured code lifetime.
func (e *Engine) TTL() time.Duration { return e.ttl }

// Issue hashes a freshly generated code and stamps its expiry.
func (e *Engine) Issue(code string, now time.Time) Issued {
	return Issued{
		CodeHash:  token.HashOpaque(code),
		ExpiresAt: now.Add(e.ttl),
		SentAt:    now,
	}
}

// CheckVerify decides the outcome of a code submission. The check order is
// fixed: verified, attempt count, expiry, hash compare. Each earlier failure
// short-circuits before the comparison; only a mismatch asks the caller to
// increment the attempt counter.
func (e *Engine) CheckVerify(s State, submitted string, now time.Time) VerifyResult {
	if s.VerifiedAt != nil {
		return VerifyAlreadyVerified
	}
	if s.Attempts >= e.maxAttempts {
		return VerifyTooManyAttempts
	}
	if s.CodeHash == "" || s.ExpiresAt == nil || s.ExpiresAt.Before(now) {
		return VerifyExpired
	}
	submittedHash := token.HashOpaque(submitted)
	if subtle.ConstantTimeCompare([]byte(submittedHash), []byte(s.CodeHash)) != 1 {
		return VerifyMismatch
	}
	return VerifyAccepted
}

// CheckResend decides whether a new code may be issued. The cooldown is
// strict: a resend exactly at the boundary succeeds.
func (e *Engine) CheckResend(s State, now time.Time) ResendResult {
	if s.VerifiedAt != nil {
		return ResendAlreadyVerified
	}
	if s.SentAt != nil && now.Sub(*s.SentAt) < e.resendCooldown {
		return ResendCooldownActive
	}
	return ResendAccepted
}
