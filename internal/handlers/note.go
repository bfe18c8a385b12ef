// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"

	"github.com/notefleet/notefleet/internal/repository"
	"github.com/notefleet/notefleet/internal/services/note"
)

// IdentityIDHeader carries the verified subject from the gateway to the
// downstream services.
const IdentityIDHeader = "X-Identity-Id"

// NoteHandlers contains handlers for the note service.
type NoteHandlers struct {
	svc *note.Service
}

// NewNote creates a new NoteHandlers instance.
func NewNote(svc *note.Service) *NoteHandlers {
	return &NoteHandlers{svc: svc}
}

// Register mounts the note routes on e.
func (h *NoteHandlers) Register(e *echo.Echo) {
	e.POST("/notes", h.Create)
	e.GET("/notes", h.List)
	e.GET("/notes/:id", h.GetByID)
	e.GET("/identities/:id/notes", h.ListByIdentity)
	e.GET("/health", Health)
}

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Content, validation.Length(0, 65535)),
	)
}

// Create writes a note owned by the caller. The owner is the verified
// subject forwarded by the gateway, never taken from the body.
func (h *NoteHandlers) Create(c echo.Context) error {
	identityID := c.Request().Header.Get(IdentityIDHeader)
	if identityID == "" {
		return fail(c, http.StatusUnauthorized, "MissingToken", "missing identity")
	}

	var req CreateNoteRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	created, err := h.svc.Create(c.Request().Context(), note.CreateParams{
		IdentityID: identityID,
		Title:      req.Title,
		Content:    req.Content,
	})
	if err != nil {
		if errors.Is(err, note.ErrUnknownIdentity) {
			return fail(c, http.StatusNotFound, "UnknownIdentity", "identity not synced yet")
		}
		slog.Error("create note failed", "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusCreated, created)
}

// List returns all notes.
func (h *NoteHandlers) List(c echo.Context) error {
	notes, err := h.svc.List(c.Request().Context())
	if err != nil {
		slog.Error("list notes failed", "error", err)
		return internalError(c)
	}
	return c.JSON(http.StatusOK, notes)
}

// GetByID returns one note.
func (h *NoteHandlers) GetByID(c echo.Context) error {
	found, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c)
		}
		slog.Error("get note failed", "error", err)
		return internalError(c)
	}
	return c.JSON(http.StatusOK, found)
}

// ListByIdentity returns the notes owned by one identity.
func (h *NoteHandlers) ListByIdentity(c echo.Context) error {
	notes, err := h.svc.ListByIdentity(c.Request().Context(), c.Param("id"))
	if err != nil {
		slog.Error("list notes failed", "error", err)
		return internalError(c)
	}
	return c.JSON(http.StatusOK, notes)
}
