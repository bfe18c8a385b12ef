// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/notefleet/notefleet/internal/repository"
	"github.com/notefleet/notefleet/internal/services/profile"
)

// ProfileHandlers contains handlers for the profile service.
type ProfileHandlers struct {
	svc *profile.Service
}

// NewProfile creates a new ProfileHandlers instance.
func NewProfile(svc *profile.Service) *ProfileHandlers {
	return &ProfileHandlers{svc: svc}
}

// Register mounts the profile routes on e.
func (h *ProfileHandlers) Register(e *echo.Echo) {
	e.GET("/profiles", h.List)
	e.GET("/profiles/:id", h.GetByID)
	e.GET("/health", Health)
}

// List returns all shadow profiles.
func (h *ProfileHandlers) List(c echo.Context) error {
	profiles, err := h.svc.List(c.Request().Context())
	if err != nil {
		slog.Error("list profiles failed", "error", err)
		return internalError(c)
	}
	return c.JSON(http.StatusOK, profiles)
}

// GetByID returns one shadow profile.
func (h *ProfileHandlers) GetByID(c echo.Context) error {
	found, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c)
		}
		slog.Error("get profile failed", "error", err)
		return internalError(c)
	}
	return c.JSON(http.StatusOK, found)
}
