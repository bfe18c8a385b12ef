// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/notefleet/notefleet/internal/models"
	"github.com/vinovest/sqlx"
)

// ProfileRepository stores the profile service's shadow identities.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new ProfileRepository instance.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert creates or updates a shadow profile keyed by the upstream identity
// id. Reports whether a new row was created so callers can distinguish the
// first sight of an identity from a replay.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.Profile) (bool, error) {
	now := time.Now().UTC()

	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE id = ?)`, profile.ID)
	if err != nil {
		return false, wrapError(err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, name, email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			updated_at = excluded.updated_at`,
		profile.ID, profile.Email, profile.Name, profile.EmailVerified, now, now)
	if err != nil {
		return false, wrapError(err)
	}
	return !exists, nil
}

// SetVerified marks a shadow profile verified, last write wins on the
// timestamp. A missing row is created so a lost created-event does not wedge
// the projection.
func (r *ProfileRepository) SetVerified(ctx context.Context, id, email string, verifiedAt time.Time) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, email_verified, verified_at, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email_verified = 1,
			verified_at = excluded.verified_at,
			updated_at = excluded.updated_at`,
		id, email, verifiedAt, now, now)
	return wrapError(err)
}

// GetByID retrieves a shadow profile by the upstream identity id.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.GetContext(ctx, &profile, `SELECT * FROM profiles WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &profile, nil
}

// List returns all shadow profiles ordered by creation date (newest first).
func (r *ProfileRepository) List(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.db.SelectContext(ctx, &profiles, `SELECT * FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrapError(err)
	}
	return profiles, nil
}
