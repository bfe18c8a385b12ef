// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/notefleet/notefleet/internal/models"
	"github.com/vinovest/sqlx"
)

// NoteRepository stores notes and the note service's shadow identities.
type NoteRepository struct {
	db *sqlx.DB
}

// NewNoteRepository creates a new NoteRepository instance.
func NewNoteRepository(db *sqlx.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// UpsertSyncedIdentity creates or updates the local identity copy. Reports
// whether a new row was created.
func (r *NoteRepository) UpsertSyncedIdentity(ctx context.Context, identity *models.SyncedIdentity) (bool, error) {
	now := time.Now().UTC()

	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM synced_identities WHERE id = ?)`, identity.ID)
	if err != nil {
		return false, wrapError(err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO synced_identities (id, email, name, email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			updated_at = excluded.updated_at`,
		identity.ID, identity.Email, identity.Name, identity.EmailVerified, now, now)
	if err != nil {
		return false, wrapError(err)
	}
	return !exists, nil
}

// MarkSyncedIdentityVerified mirrors the upstream verified flag. Creates the
// row when the created-event has not been seen yet.
func (r *NoteRepository) MarkSyncedIdentityVerified(ctx context.Context, id, email string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO synced_identities (id, email, email_verified, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email_verified = 1,
			updated_at = excluded.updated_at`,
		id, email, now, now)
	return wrapError(err)
}

// GetSyncedIdentity retrieves the local identity copy.
func (r *NoteRepository) GetSyncedIdentity(ctx context.Context, id string) (*models.SyncedIdentity, error) {
	var identity models.SyncedIdentity
	err := r.db.GetContext(ctx, &identity, `SELECT * FROM synced_identities WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &identity, nil
}

// CreateNote inserts a note.
func (r *NoteRepository) CreateNote(ctx context.Context, note *models.Note) error {
	now := time.Now().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO notes (id, identity_id, title, content, is_welcome, created_at, updated_at)
		VALUES (:id, :identity_id, :title, :content, :is_welcome, :created_at, :updated_at)`,
		note)
	return wrapError(err)
}

// CreateWelcomeNote inserts the one-time welcome note for an identity. The
// partial unique index on (identity_id) WHERE is_welcome makes the insert a
// no-op on replay; the return value reports whether a row was written.
func (r *NoteRepository) CreateWelcomeNote(ctx context.Context, note *models.Note) (bool, error) {
	now := time.Now().UTC()
	note.IsWelcome = true
	note.CreatedAt = now
	note.UpdatedAt = now
	res, err := r.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO notes (id, identity_id, title, content, is_welcome, created_at, updated_at)
		VALUES (:id, :identity_id, :title, :content, 1, :created_at, :updated_at)`,
		note)
	if err != nil {
		return false, wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetNoteByID retrieves a note by its ID.
func (r *NoteRepository) GetNoteByID(ctx context.Context, id string) (*models.Note, error) {
	var note models.Note
	err := r.db.GetContext(ctx, &note, `SELECT * FROM notes WHERE id = ?`, id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &note, nil
}

// ListNotes returns all notes ordered by creation date (newest first).
func (r *NoteRepository) ListNotes(ctx context.Context) ([]models.Note, error) {
	var notes []models.Note
	err := r.db.SelectContext(ctx, &notes, `SELECT * FROM notes ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrapError(err)
	}
	return notes, nil
}

// ListNotesByIdentity returns an identity's notes, newest first.
func (r *NoteRepository) ListNotesByIdentity(ctx context.Context, identityID string) ([]models.Note, error) {
	var notes []models.Note
	err := r.db.SelectContext(ctx, &notes,
		`SELECT * FROM notes WHERE identity_id = ? ORDER BY created_at DESC`, identityID)
	if err != nil {
		return nil, wrapError(err)
	}
	return notes, nil
}
