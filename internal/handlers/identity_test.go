// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notefleet/notefleet/internal/otp"
	"github.com/notefleet/notefleet/internal/repository"
	"github.com/notefleet/notefleet/internal/services/identity"
	"github.com/notefleet/notefleet/internal/testutil"
	"github.com/notefleet/notefleet/internal/token"
)

func newIdentityHandlers(t *testing.T) (*IdentityHandlers, *testutil.FakeMailer) {
	t.Helper()
	db := testutil.NewTestDB(t, "identity")
	mailer := &testutil.FakeMailer{}
	svc := identity.NewService(
		repository.NewIdentityRepository(db),
		token.NewCodec("test-secret", 0),
		otp.NewEngine(0, 0, 0),
		mailer,
		&testutil.CapturePublisher{},
		0,
	)
	return NewIdentity(svc), mailer
}

func postJSON(t *testing.T, e *echo.Echo, handler echo.HandlerFunc, body string) (int, map[string]any) {
	t.Helper()
	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/", strings.NewReader(body))
	require.NoError(t, handler(c))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec.Code, decoded
}

func TestRegisterIdentity(t *testing.T) {
	h, _ := newIdentityHandlers(t)
	e := echo.New()

	code, body := postJSON(t, e, h.RegisterIdentity,
		`{"email":"alice@example.com","password":"superseekrit","name":"Alice"}`)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.NotEmpty(t, body["id"])
	assert.NotEmpty(t, body["verificationOtpExpiresAt"])

	// Duplicate email conflicts.
	code, body = postJSON(t, e, h.RegisterIdentity,
		`{"email":"alice@example.com","password":"superseekrit"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "DuplicateEmail", body["code"])
}

func TestRegisterIdentityValidation(t *testing.T) {
	h, _ := newIdentityHandlers(t)
	e := echo.New()

	tests := []struct {
		name string
		body string
	}{
		{"missing email", `{"password":"superseekrit"}`},
		{"bad email", `{"email":"not-an-email","password":"superseekrit"}`},
		{"short password", `{"email":"alice@example.com","password":"short"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := postJSON(t, e, h.RegisterIdentity, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
}

func TestLoginStatusCodes(t *testing.T) {
	h, mailer := newIdentityHandlers(t)
	e := echo.New()

	code, _ := postJSON(t, e, h.RegisterIdentity,
		`{"email":"alice@example.com","password":"superseekrit"}`)
	require.Equal(t, http.StatusCreated, code)

	// Wrong password and unknown email both come back as plain 401.
	code, body := postJSON(t, e, h.Login, `{"email":"alice@example.com","password":"wrong password"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "InvalidCredentials", body["code"])

	code, body = postJSON(t, e, h.Login, `{"email":"nobody@example.com","password":"wrong password"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "InvalidCredentials", body["code"])

	// Correct credentials but unverified email.
	code, body = postJSON(t, e, h.Login, `{"email":"alice@example.com","password":"superseekrit"}`)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "EmailNotVerified", body["code"])

	code, _ = postJSON(t, e, h.VerifyEmail,
		`{"email":"alice@example.com","otp":"`+mailer.LastCode(t)+`"}`)
	require.Equal(t, http.StatusOK, code)

	code, body = postJSON(t, e, h.Login, `{"email":"alice@example.com","password":"superseekrit"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Bearer", body["tokenType"])
	assert.NotEmpty(t, body["accessToken"])
	assert.NotEmpty(t, body["refreshToken"])
}

func TestVerifyEmailStatusCodes(t *testing.T) {
	h, mailer := newIdentityHandlers(t)
	e := echo.New()

	code, _ := postJSON(t, e, h.RegisterIdentity,
		`{"email":"alice@example.com","password":"superseekrit"}`)
	require.Equal(t, http.StatusCreated, code)
	right := mailer.LastCode(t)
	wrong := "000000"
	if right == wrong {
		wrong = "111111"
	}

	code, body := postJSON(t, e, h.VerifyEmail,
		`{"email":"alice@example.com","otp":"`+wrong+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Mismatch", body["code"])

	// Unknown identities report the same shape as an expired code.
	code, body = postJSON(t, e, h.VerifyEmail,
		`{"email":"nobody@example.com","otp":"123456"}`)
	assert.Equal(t, http.StatusGone, code)
	assert.Equal(t, "Expired", body["code"])

	code, _ = postJSON(t, e, h.VerifyEmail,
		`{"email":"alice@example.com","otp":"`+right+`"}`)
	assert.Equal(t, http.StatusOK, code)

	code, body = postJSON(t, e, h.VerifyEmail,
		`{"email":"alice@example.com","otp":"`+right+`"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "AlreadyVerified", body["code"])
}

func TestVerifyEmailTooManyAttempts(t *testing.T) {
	h, mailer := newIdentityHandlers(t)
	e := echo.New()

	code, _ := postJSON(t, e, h.RegisterIdentity,
		`{"email":"alice@example.com","password":"superseekrit"}`)
	require.Equal(t, http.StatusCreated, code)
	right := mailer.LastCode(t)
	wrong := "000000"
	if right == wrong {
		wrong = "111111"
	}

	for i := 0; i < 5; i++ {
		code, _ = postJSON(t, e, h.VerifyEmail,
			`{"email":"alice@example.com","otp":"`+wrong+`"}`)
		require.Equal(t, http.StatusBadRequest, code)
	}

	code, body := postJSON(t, e, h.VerifyEmail,
		`{"email":"alice@example.com","otp":"`+right+`"}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "TooManyAttempts", body["code"])
}

func TestResendOTPStatusCodes(t *testing.T) {
	h, _ := newIdentityHandlers(t)
	e := echo.New()

	code, _ := postJSON(t, e, h.RegisterIdentity,
		`{"email":"alice@example.com","password":"superseekrit"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := postJSON(t, e, h.ResendOTP, `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "CooldownActive", body["code"])

	// Unknown addresses always report success.
	code, body = postJSON(t, e, h.ResendOTP, `{"email":"nobody@example.com"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["sent"])
}

func TestRefreshAndLogout(t *testing.T) {
	h, mailer := newIdentityHandlers(t)
	e := echo.New()

	code, _ := postJSON(t, e, h.RegisterIdentity,
		`{"email":"alice@example.com","password":"superseekrit"}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = postJSON(t, e, h.VerifyEmail,
		`{"email":"alice@example.com","otp":"`+mailer.LastCode(t)+`"}`)
	require.Equal(t, http.StatusOK, code)
	code, body := postJSON(t, e, h.Login, `{"email":"alice@example.com","password":"superseekrit"}`)
	require.Equal(t, http.StatusOK, code)
	refreshToken := body["refreshToken"].(string)

	code, body = postJSON(t, e, h.Refresh, `{"refreshToken":"`+refreshToken+`"}`)
	assert.Equal(t, http.StatusOK, code)
	rotated := body["refreshToken"].(string)
	assert.NotEqual(t, refreshToken, rotated)

	// The consumed token is rejected.
	code, body = postJSON(t, e, h.Refresh, `{"refreshToken":"`+refreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "InvalidRefreshToken", body["code"])

	code, body = postJSON(t, e, h.Logout, `{"refreshToken":"`+rotated+`"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["revoked"])

	code, body = postJSON(t, e, h.Logout, `{"refreshToken":"`+rotated+`"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["revoked"])
}
