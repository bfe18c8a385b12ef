// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package models

import "time"

// Identity is the identity service's durable record: credentials, the
// email-verification state and the single live refresh session. The OTP
// fields and EmailVerifiedAt are mutually exclusive; the OTP fields are
// cleared when the identity transitions to verified.
type Identity struct { //nolint:govet // fieldalignment: readability over optimization
	ID           string  `db:"id" json:"id"`
	Email        string  `db:"email" json:"email"`
	PasswordHash string  `db:"password_hash" json:"-"`
	Name         *string `db:"name" json:"name,omitempty"`

	EmailVerifiedAt *time.Time `db:"email_verified_at" json:"emailVerifiedAt,omitempty"`
	OTPHash         *string    `db:"otp_hash" json:"-"`
	OTPExpiresAt    *time.Time `db:"otp_expires_at" json:"-"`
	OTPAttempts     int        `db:"otp_attempts" json:"-"`
	OTPSentAt       *time.Time `db:"otp_sent_at" json:"-"`

	// Present only while a session is active; overwritten on every
	// login/refresh so exactly one refresh token is live per identity.
	RefreshTokenHash      *string    `db:"refresh_token_hash" json:"-"`
	RefreshTokenExpiresAt *time.Time `db:"refresh_token_expires_at" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// DisplayName returns the optional name or falls back to the email address.
func (i *Identity) DisplayName() string {
	if i.Name != nil && *i.Name != "" {
		return *i.Name
	}
	return i.Email
}

// NameOrEmpty unwraps the optional name for token claims.
func (i *Identity) NameOrEmpty() string {
	if i.Name != nil {
		return *i.Name
	}
	return ""
}
