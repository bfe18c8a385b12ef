// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package bus

import "time"

// The identity service owns one durable topic exchange; downstream
// services bind their own queues with a wildcard pattern.
const (
	IdentityExchange    = "identity.events"
	IdentityAllPattern  = "identity.*"
	IdentityCreatedKey  = "identity.created"
	IdentityVerifiedKey = "identity.email_verified"
)

// IdentityCreated announces a freshly registered identity.
type IdentityCreated struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          *string   `json:"name,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	EmailVerified bool      `json:"emailVerified"`
}

// IdentityEmailVerified announces a successful email verification.
type IdentityEmailVerified struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	VerifiedAt time.Time `json:"verifiedAt"`
}
