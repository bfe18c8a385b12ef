// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notefleet/notefleet/internal/bus"
	"github.com/notefleet/notefleet/internal/repository"
	"github.com/notefleet/notefleet/internal/services/note"
	"github.com/notefleet/notefleet/internal/testutil"
)

func newNoteHandlers(t *testing.T) (*NoteHandlers, *note.Service) {
	t.Helper()
	db := testutil.NewTestDB(t, "note")
	svc := note.NewService(repository.NewNoteRepository(db))
	return NewNote(svc), svc
}

func syncIdentity(t *testing.T, svc *note.Service, id string) {
	t.Helper()
	body, err := json.Marshal(bus.IdentityCreated{
		ID:        id,
		Email:     "alice@example.com",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.OnIdentityCreated(context.Background(), body))
}

func TestCreateNoteRequiresIdentityHeader(t *testing.T) {
	h, _ := newNoteHandlers(t)
	e := echo.New()

	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/notes",
		strings.NewReader(`{"title":"t","content":"c"}`))
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateNoteUnknownIdentity(t *testing.T) {
	h, _ := newNoteHandlers(t)
	e := echo.New()

	c, rec := testutil.NewEchoContextWithHeaders(e, http.MethodPost, "/notes",
		strings.NewReader(`{"title":"t","content":"c"}`), map[string]string{
			echo.HeaderContentType: echo.MIMEApplicationJSON,
			IdentityIDHeader:       "ghost",
		})
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAndFetchNote(t *testing.T) {
	h, svc := newNoteHandlers(t)
	e := echo.New()
	syncIdentity(t, svc, "id-1")

	c, rec := testutil.NewEchoContextWithHeaders(e, http.MethodPost, "/notes",
		strings.NewReader(`{"title":"Groceries","content":"milk"}`), map[string]string{
			echo.HeaderContentType: echo.MIMEApplicationJSON,
			IdentityIDHeader:       "id-1",
		})
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	noteID := created["id"].(string)

	c, rec = testutil.NewEchoContext(e, http.MethodGet, "/notes/"+noteID, nil)
	c.SetParamNames("id")
	c.SetParamValues(noteID)
	require.NoError(t, h.GetByID(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Groceries")
}

func TestListNotesByIdentity(t *testing.T) {
	h, svc := newNoteHandlers(t)
	e := echo.New()
	syncIdentity(t, svc, "id-1")

	c, rec := testutil.NewEchoContext(e, http.MethodGet, "/identities/id-1/notes", nil)
	c.SetParamNames("id")
	c.SetParamValues("id-1")
	require.NoError(t, h.ListByIdentity(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	// The welcome note written on sync is already there.
	assert.Contains(t, rec.Body.String(), "first note")
}

func TestGetNoteNotFound(t *testing.T) {
	h, _ := newNoteHandlers(t)
	e := echo.New()

	c, rec := testutil.NewEchoContext(e, http.MethodGet, "/notes/missing", nil)
	c.SetParamNames("id")
	c.SetParamValues("missing")
	require.NoError(t, h.GetByID(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
