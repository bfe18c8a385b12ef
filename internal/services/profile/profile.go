// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package profile keeps a shadow copy of upstream identities, driven by
// the identity service's events. Handlers are idempotent: the bus delivers
// at least once and replays must converge on the same state.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/notefleet/notefleet/internal/bus"
	"github.com/notefleet/notefleet/internal/models"
	"github.com/notefleet/notefleet/internal/repository"
)

type Service struct {
	repo *repository.ProfileRepository
}

func NewService(repo *repository.ProfileRepository) *Service {
	return &Service{repo: repo}
}

// OnIdentityCreated upserts the shadow profile for a new identity.
func (s *Service) OnIdentityCreated(ctx context.Context, body []byte) error {
	var event bus.IdentityCreated
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decoding identity.created: %w", err)
	}
	if event.ID == "" || event.Email == "" {
		return fmt.Errorf("identity.created missing id or email")
	}

	created, err := s.repo.Upsert(ctx, &models.Profile{
		ID:            event.ID,
		Email:         event.Email,
		Name:          event.Name,
		EmailVerified: event.EmailVerified,
	})
	if err != nil {
		return fmt.Errorf("upserting profile: %w", err)
	}

	slog.Info("profile_synced", "identity_id", event.ID, "created", created)
	return nil
}

// OnIdentityEmailVerified marks the shadow profile verified. Last write
// wins on the timestamp, so replays are harmless.
func (s *Service) OnIdentityEmailVerified(ctx context.Context, body []byte) error {
	var event bus.IdentityEmailVerified
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decoding identity.email_verified: %w", err)
	}
	if event.ID == "" || event.Email == "" {
		return fmt.Errorf("identity.email_verified missing id or email")
	}

	if err := s.repo.SetVerified(ctx, event.ID, event.Email, event.VerifiedAt); err != nil {
		return fmt.Errorf("marking profile verified: %w", err)
	}

	slog.Info("profile_verified", "identity_id", event.ID)
	return nil
}

// List returns all shadow profiles, newest first.
func (s *Service) List(ctx context.Context) ([]models.Profile, error) {
	return s.repo.List(ctx)
}

// GetByID returns one shadow profile or repository.ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return s.repo.GetByID(ctx, id)
}
