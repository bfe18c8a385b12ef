// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package models

import "time"

// SyncedIdentity is the note service's shadow copy of an upstream identity.
type SyncedIdentity struct { //nolint:govet // fieldalignment: readability over optimization
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	Name          *string   `db:"name" json:"name,omitempty"`
	EmailVerified bool      `db:"email_verified" json:"emailVerified"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// Note is a note owned by an identity. At most one welcome note exists per
// identity; it is created the first time the identity is seen.
type Note struct { //nolint:govet // fieldalignment: readability over optimization
	ID         string    `db:"id" json:"id"`
	IdentityID string    `db:"identity_id" json:"identityId"`
	Title      string    `db:"title" json:"title"`
	Content    string    `db:"content" json:"content"`
	IsWelcome  bool      `db:"is_welcome" json:"isWelcome"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}
