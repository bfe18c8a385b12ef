// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package models

import "time"

// Profile is the profile service's shadow copy of an upstream identity.
// It is written only by event handlers and may be stale between events.
type Profile struct { //nolint:govet // fieldalignment: readability over optimization
	ID            string     `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	Name          *string    `db:"name" json:"name,omitempty"`
	EmailVerified bool       `db:"email_verified" json:"emailVerified"`
	VerifiedAt    *time.Time `db:"verified_at" json:"verifiedAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}
