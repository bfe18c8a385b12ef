// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package handlers contains the echo HTTP handlers for all three services.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/labstack/echo/v4"

	"github.com/notefleet/notefleet/internal/repository"
	"github.com/notefleet/notefleet/internal/services/identity"
)

// IdentityHandlers contains handlers for the identity service.
type IdentityHandlers struct {
	svc *identity.Service
}

// NewIdentity creates a new IdentityHandlers instance.
func NewIdentity(svc *identity.Service) *IdentityHandlers {
	return &IdentityHandlers{svc: svc}
}

// Register mounts the identity routes on e.
func (h *IdentityHandlers) Register(e *echo.Echo) {
	e.POST("/auth/register", h.RegisterIdentity)
	e.POST("/auth/login", h.Login)
	e.POST("/auth/refresh", h.Refresh)
	e.POST("/auth/logout", h.Logout)
	e.POST("/auth/verify-email", h.VerifyEmail)
	e.POST("/auth/resend-otp", h.ResendOTP)
	e.GET("/identities", h.List)
	e.GET("/identities/:id", h.GetByID)
	e.GET("/health", Health)
}

// RegisterRequest is the request body for identity registration.
type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name,omitempty"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&r.Name, validation.Length(1, 255)),
	)
}

// RegisterResponse is the body of a successful registration.
type RegisterResponse struct {
	ID                       string     `json:"id"`
	Email                    string     `json:"email"`
	Name                     *string    `json:"name,omitempty"`
	VerificationOTPExpiresAt *time.Time `json:"verificationOtpExpiresAt,omitempty"`
}

// RegisterIdentity creates a new unverified identity.
func (h *IdentityHandlers) RegisterIdentity(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	created, err := h.svc.Register(c.Request().Context(), identity.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			return fail(c, http.StatusConflict, "DuplicateEmail", "email already registered")
		}
		slog.Error("register failed", "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusCreated, RegisterResponse{
		ID:                       created.ID,
		Email:                    created.Email,
		Name:                     created.Name,
		VerificationOTPExpiresAt: created.OTPExpiresAt,
	})
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// Login authenticates an identity and returns a token pair.
func (h *IdentityHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	pair, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			return fail(c, http.StatusUnauthorized, "InvalidCredentials", "invalid credentials")
		case errors.Is(err, identity.ErrEmailNotVerified):
			return fail(c, http.StatusForbidden, "EmailNotVerified", "email not verified")
		}
		slog.Error("login failed", "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusOK, pair)
}

// RefreshRequest is the request body for refresh and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// Refresh rotates a refresh token and returns a fresh token pair.
func (h *IdentityHandlers) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	pair, err := h.svc.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidRefreshToken):
			return fail(c, http.StatusUnauthorized, "InvalidRefreshToken", "invalid refresh token")
		case errors.Is(err, identity.ErrRefreshTokenExpired):
			return fail(c, http.StatusUnauthorized, "RefreshTokenExpired", "refresh token expired")
		}
		slog.Error("refresh failed", "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusOK, pair)
}

// Logout revokes the presented refresh session. Always 200; the body
// reports whether anything was revoked.
func (h *IdentityHandlers) Logout(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	revoked, err := h.svc.Logout(c.Request().Context(), req.RefreshToken)
	if err != nil {
		slog.Error("logout failed", "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusOK, map[string]bool{"revoked": revoked})
}

// VerifyEmailRequest is the request body for email verification.
type VerifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (r VerifyEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.OTP, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

// VerifyEmail checks a submitted verification code.
func (h *IdentityHandlers) VerifyEmail(c echo.Context) error {
	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	err := h.svc.VerifyEmail(c.Request().Context(), req.Email, req.OTP)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrOTPMismatch):
			return fail(c, http.StatusBadRequest, "Mismatch", "verification code mismatch")
		case errors.Is(err, identity.ErrOTPExpired):
			return fail(c, http.StatusGone, "Expired", "verification code expired")
		case errors.Is(err, identity.ErrTooManyAttempts):
			return fail(c, http.StatusTooManyRequests, "TooManyAttempts", "too many verification attempts")
		case errors.Is(err, identity.ErrAlreadyVerified):
			return fail(c, http.StatusConflict, "AlreadyVerified", "email already verified")
		}
		slog.Error("verify email failed", "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusOK, map[string]bool{"verified": true})
}

// ResendOTPRequest is the request body for requesting a fresh code.
type ResendOTPRequest struct {
	Email string `json:"email"`
}

func (r ResendOTPRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ResendOTP issues a fresh verification code.
func (h *IdentityHandlers) ResendOTP(c echo.Context) error {
	var req ResendOTPRequest
	if err := c.Bind(&req); err != nil {
		return invalidRequest(c)
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	err := h.svc.ResendOTP(c.Request().Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrCooldownActive):
			return fail(c, http.StatusTooManyRequests, "CooldownActive", "resend cooldown active")
		case errors.Is(err, identity.ErrAlreadyVerified):
			return fail(c, http.StatusConflict, "AlreadyVerified", "email already verified")
		}
		slog.Error("resend otp failed", "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusOK, map[string]bool{"sent": true})
}

// List returns all identities with credential fields stripped.
func (h *IdentityHandlers) List(c echo.Context) error {
	identities, err := h.svc.List(c.Request().Context())
	if err != nil {
		slog.Error("list identities failed", "error", err)
		return internalError(c)
	}
	return c.JSON(http.StatusOK, identities)
}

// GetByID returns one identity with credential fields stripped.
func (h *IdentityHandlers) GetByID(c echo.Context) error {
	found, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(c)
		}
		slog.Error("get identity failed", "error", err)
		return internalError(c)
	}
	return c.JSON(http.StatusOK, found)
}
