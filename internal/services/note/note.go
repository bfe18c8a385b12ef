// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package note owns notes and mirrors upstream identities from the
// identity service's events.
package note

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/ksuid"

	"github.com/notefleet/notefleet/internal/bus"
	"github.com/notefleet/notefleet/internal/models"
	"github.com/notefleet/notefleet/internal/repository"
)

var ErrUnknownIdentity = errors.New("unknown identity")

const welcomeTitle = "Welcome! 🎉"

type Service struct {
	repo *repository.NoteRepository
}

func NewService(repo *repository.NoteRepository) *Service {
	return &Service{repo: repo}
}

// OnIdentityCreated mirrors the identity locally and writes the one-time
// welcome note. The welcome insert is keyed by identity id, so a replayed
// event never produces a second note.
func (s *Service) OnIdentityCreated(ctx context.Context, body []byte) error {
	var event bus.IdentityCreated
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decoding identity.created: %w", err)
	}
	if event.ID == "" || event.Email == "" {
		return fmt.Errorf("identity.created missing id or email")
	}

	created, err := s.repo.UpsertSyncedIdentity(ctx, &models.SyncedIdentity{
		ID:            event.ID,
		Email:         event.Email,
		Name:          event.Name,
		EmailVerified: event.EmailVerified,
	})
	if err != nil {
		return fmt.Errorf("syncing identity: %w", err)
	}

	name := event.Email
	if event.Name != nil && *event.Name != "" {
		name = *event.Name
	}
	written, err := s.repo.CreateWelcomeNote(ctx, &models.Note{
		ID:         ksuid.New().String(),
		IdentityID: event.ID,
		Title:      welcomeTitle,
		Content:    fmt.Sprintf("Hello %s! This is your first note. Start writing!", name),
	})
	if err != nil {
		return fmt.Errorf("creating welcome note: %w", err)
	}

	slog.Info("identity_synced", "identity_id", event.ID, "created", created, "welcome_note", written)
	return nil
}

// OnIdentityEmailVerified mirrors the upstream verified flag.
func (s *Service) OnIdentityEmailVerified(ctx context.Context, body []byte) error {
	var event bus.IdentityEmailVerified
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decoding identity.email_verified: %w", err)
	}
	if event.ID == "" || event.Email == "" {
		return fmt.Errorf("identity.email_verified missing id or email")
	}

	if err := s.repo.MarkSyncedIdentityVerified(ctx, event.ID, event.Email); err != nil {
		return fmt.Errorf("marking identity verified: %w", err)
	}

	slog.Info("identity_verified_synced", "identity_id", event.ID)
	return nil
}

// CreateParams holds the parameters for creating a note.
type CreateParams struct {
	IdentityID string
	Title      string
	Content    string
}

// Create writes a note for a known identity. Identities only become known
// through the event stream; a note for an unseen identity is refused.
func (s *Service) Create(ctx context.Context, params CreateParams) (*models.Note, error) {
	if _, err := s.repo.GetSyncedIdentity(ctx, params.IdentityID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownIdentity
		}
		return nil, fmt.Errorf("looking up identity: %w", err)
	}

	note := &models.Note{
		ID:         ksuid.New().String(),
		IdentityID: params.IdentityID,
		Title:      params.Title,
		Content:    params.Content,
	}
	if err := s.repo.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("creating note: %w", err)
	}

	slog.Info("note_created", "note_id", note.ID, "identity_id", note.IdentityID)
	return note, nil
}

// List returns all notes, newest first.
func (s *Service) List(ctx context.Context) ([]models.Note, error) {
	return s.repo.ListNotes(ctx)
}

// GetByID returns one note or repository.ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Note, error) {
	return s.repo.GetNoteByID(ctx, id)
}

// ListByIdentity returns an identity's notes, newest first.
func (s *Service) ListByIdentity(ctx context.Context, identityID string) ([]models.Note, error) {
	return s.repo.ListNotesByIdentity(ctx, identityID)
}
