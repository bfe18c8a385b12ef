// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/notefleet/notefleet/internal/models"
	"github.com/vinovest/sqlx"
)

// IdentityRepository stores identity records for the identity service.
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new IdentityRepository instance.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create inserts a new identity. Returns ErrDuplicate when the email is
// already taken (case-sensitive match, as stored).
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO identities (
			id, email, password_hash, name,
			otp_hash, otp_expires_at, otp_attempts, otp_sent_at,
			created_at, updated_at
		) VALUES (
			:id, :email, :password_hash, :name,
			:otp_hash, :otp_expires_at, :otp_attempts, :otp_sent_at,
			:created_at, :updated_at
		)`, identity)
	return wrapError(err)
}

// Delete removes an identity. Used for rollback when the verification
// email cannot be delivered during registration.
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	return wrapError(err)
}

// GetByID retrieves an identity by its ID.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	var identity models.Identity
	err := r.db.GetContext(ctx, &identity, `SELECT * FROM identities WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &identity, nil
}

// GetByEmail retrieves an identity by its email address.
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var identity models.Identity
	err := r.db.GetContext(ctx, &identity, `SELECT * FROM identities WHERE email = ?`, email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &identity, nil
}

// GetByRefreshTokenHash retrieves an identity by its stored refresh-token
// hash. Lookup is always by hash, never by the plaintext token.
func (r *IdentityRepository) GetByRefreshTokenHash(ctx context.Context, hash string) (*models.Identity, error) {
	var identity models.Identity
	err := r.db.GetContext(ctx, &identity, `SELECT * FROM identities WHERE refresh_token_hash = ?`, hash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &identity, nil
}

// List returns all identities ordered by creation date (newest first).
func (r *IdentityRepository) List(ctx context.Context) ([]models.Identity, error) {
	var identities []models.Identity
	err := r.db.SelectContext(ctx, &identities, `SELECT * FROM identities ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrapError(err)
	}
	return identities, nil
}

// SetRefreshSession overwrites the refresh session on login. The previous
// session, if any, is invalidated by the overwrite.
func (r *IdentityRepository) SetRefreshSession(ctx context.Context, id, hash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET refresh_token_hash = ?, refresh_token_expires_at = ?, updated_at = ?
		WHERE id = ?`,
		hash, expiresAt, time.Now().UTC(), id)
	if err != nil {
		return wrapError(err)
	}
	return requireRow(res)
}

// RotateRefreshSession replaces the refresh session only if the stored hash
// still equals the presented one. The compare-and-swap guards against lost
// updates when two refresh calls race for the same identity; the loser gets
// ErrConflict.
func (r *IdentityRepository) RotateRefreshSession(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET refresh_token_hash = ?, refresh_token_expires_at = ?, updated_at = ?
		WHERE id = ? AND refresh_token_hash = ?`,
		newHash, expiresAt, time.Now().UTC(), id, oldHash)
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ClearRefreshSession revokes the refresh session, if one is stored.
func (r *IdentityRepository) ClearRefreshSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET refresh_token_hash = NULL, refresh_token_expires_at = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return wrapError(err)
	}
	return requireRow(res)
}

// IncrementOTPAttempts bumps the attempt counter by one in a single atomic
// update so concurrent mismatches never undercount.
func (r *IdentityRepository) IncrementOTPAttempts(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET otp_attempts = otp_attempts + 1, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return wrapError(err)
	}
	return requireRow(res)
}

// SetOTPState replaces the OTP state on resend and resets the attempt
// counter to zero.
func (r *IdentityRepository) SetOTPState(ctx context.Context, id, hash string, expiresAt, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET otp_hash = ?, otp_expires_at = ?, otp_attempts = 0, otp_sent_at = ?, updated_at = ?
		WHERE id = ?`,
		hash, expiresAt, sentAt, time.Now().UTC(), id)
	if err != nil {
		return wrapError(err)
	}
	return requireRow(res)
}

// MarkEmailVerified transitions the identity to verified and clears the OTP
// fields in the same statement, keeping the two states mutually exclusive.
// Returns ErrConflict if the identity was verified concurrently.
func (r *IdentityRepository) MarkEmailVerified(ctx context.Context, id string, verifiedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET email_verified_at = ?,
		    otp_hash = NULL, otp_expires_at = NULL, otp_attempts = 0, otp_sent_at = NULL,
		    updated_at = ?
		WHERE id = ? AND email_verified_at IS NULL`,
		verifiedAt, time.Now().UTC(), id)
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func requireRow(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
