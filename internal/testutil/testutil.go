// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"

	"github.com/notefleet/notefleet/internal/database"
)

// NewTestDB creates an in-memory SQLite database with the given service's
// migrations applied ("identity", "profile" or "note").
func NewTestDB(t *testing.T, service string) *sqlx.DB {
	t.Helper()
	db, err := database.Open(":memory:", service)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// FakeMailer records sent verification codes in place of an SMTP server.
type FakeMailer struct {
	mu    sync.Mutex
	Codes []string
	To    []string
	Err   error
}

func (f *FakeMailer) SendOTP(ctx context.Context, to, name, code string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.To = append(f.To, to)
	f.Codes = append(f.Codes, code)
	return nil
}

// LastCode returns the most recently delivered code.
func (f *FakeMailer) LastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.Codes, "no verification code was sent")
	return f.Codes[len(f.Codes)-1]
}

// CapturedEvent is one publish recorded by CapturePublisher.
type CapturedEvent struct {
	RoutingKey string
	Payload    any
}

// CapturePublisher records published events in place of a live broker.
type CapturePublisher struct {
	mu     sync.Mutex
	Events []CapturedEvent
	Err    error
}

func (p *CapturePublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, CapturedEvent{RoutingKey: routingKey, Payload: payload})
	return nil
}

// Keys returns the routing keys of all captured events in publish order.
func (p *CapturePublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, len(p.Events))
	for i, e := range p.Events {
		keys[i] = e.RoutingKey
	}
	return keys
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithHeaders creates an Echo context with custom headers.
func NewEchoContextWithHeaders(e *echo.Echo, method, path string, body io.Reader, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}
