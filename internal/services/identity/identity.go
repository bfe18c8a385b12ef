// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package identity implements the credential lifecycle: registration with
// email verification, login, refresh-token rotation and logout.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/notefleet/notefleet/internal/bus"
	"github.com/notefleet/notefleet/internal/models"
	"github.com/notefleet/notefleet/internal/otp"
	"github.com/notefleet/notefleet/internal/repository"
	"github.com/notefleet/notefleet/internal/services/email"
	"github.com/notefleet/notefleet/internal/token"
)

var (
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailNotVerified    = errors.New("email not verified")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrAlreadyVerified     = errors.New("email already verified")
	ErrOTPMismatch         = errors.New("verification code mismatch")
	ErrOTPExpired          = errors.New("verification code expired")
	ErrTooManyAttempts     = errors.New("too many verification attempts")
	ErrCooldownActive      = errors.New("resend cooldown active")
)

// refreshTokenBytes is the entropy of an opaque refresh token before hex
// encoding.
const refreshTokenBytes = 32

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// EventPublisher is the slice of the bus the service needs. Publish
// failures are logged and dropped; the committed state change stands.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type Service struct {
	repo       *repository.IdentityRepository
	codec      *token.Codec
	otp        *otp.Engine
	mailer     email.Sender
	publisher  EventPublisher
	refreshTTL time.Duration
}

func NewService(
	repo *repository.IdentityRepository,
	codec *token.Codec,
	engine *otp.Engine,
	mailer email.Sender,
	publisher EventPublisher,
	refreshTTL time.Duration,
) *Service {
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		repo:       repo,
		codec:      codec,
		otp:        engine,
		mailer:     mailer,
		publisher:  publisher,
		refreshTTL: refreshTTL,
	}
}

// RegisterParams holds the parameters for identity registration.
type RegisterParams struct {
	Email    string
	Password string
	Name     *string
}

// TokenPair is the response of a successful login or refresh.
type TokenPair struct {
	AccessToken          string `json:"accessToken"`
	RefreshToken         string `json:"refreshToken"`
	TokenType            string `json:"tokenType"`
	AccessTokenExpiresIn int    `json:"accessTokenExpiresIn"`
}

// Register creates a new unverified identity and delivers its verification
// code. The row is only kept if the code left the building: a failed
// delivery rolls the registration back so no unreachable ghost account
// survives. On success an identity.created event is published best-effort.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.Identity, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	issued := s.otp.Issue(code, now)

	identity := &models.Identity{
		ID:           uuid.NewString(),
		Email:        params.Email,
		PasswordHash: string(passwordHash),
		Name:         params.Name,
		OTPHash:      &issued.CodeHash,
		OTPExpiresAt: &issued.ExpiresAt,
		OTPSentAt:    &issued.SentAt,
	}

	if err := s.repo.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, identity.Email, identity.DisplayName(), code, s.otp.TTL()); err != nil {
		if delErr := s.repo.Delete(ctx, identity.ID); delErr != nil {
			slog.Error("register_rollback_failed", "identity_id", identity.ID, "error", delErr)
		}
		slog.Warn("register_failed", "email", params.Email, "reason", "otp_delivery")
		return nil, fmt.Errorf("failed to deliver verification code: %w", err)
	}

	s.publish(ctx, bus.IdentityCreatedKey, bus.IdentityCreated{
		ID:            identity.ID,
		Email:         identity.Email,
		Name:          identity.Name,
		CreatedAt:     identity.CreatedAt,
		EmailVerified: false,
	})

	slog.Info("register_success", "identity_id", identity.ID, "email", identity.Email)
	return identity, nil
}

// Login authenticates by email and password and opens a fresh refresh
// session. Unknown email and wrong password are indistinguishable to the
// caller.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*TokenPair, error) {
	identity, err := s.repo.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "email", emailAddr, "reason", "identity_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "email", emailAddr, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if identity.EmailVerifiedAt == nil {
		slog.Warn("login_failed", "email", emailAddr, "reason", "email_not_verified")
		return nil, ErrEmailNotVerified
	}

	now := time.Now().UTC()
	refreshToken, err := token.GenerateOpaque(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	hash := token.HashOpaque(refreshToken)
	if err := s.repo.SetRefreshSession(ctx, identity.ID, hash, now.Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("failed to store refresh session: %w", err)
	}

	pair, err := s.tokenPair(identity, refreshToken, now)
	if err != nil {
		return nil, err
	}

	slog.Info("login_success", "identity_id", identity.ID, "email", emailAddr)
	return pair, nil
}

// Refresh exchanges a live refresh token for a new pair. Rotation is
// single-use: the presented token is invalidated by a compare-and-swap on
// its own hash, so the loser of a concurrent race is turned away.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	hash := token.HashOpaque(refreshToken)
	identity, err := s.repo.GetByRefreshTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Warn("refresh_failed", "reason", "unknown_token")
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	now := time.Now().UTC()
	if identity.RefreshTokenExpiresAt == nil || identity.RefreshTokenExpiresAt.Before(now) {
		slog.Warn("refresh_failed", "identity_id", identity.ID, "reason", "expired")
		return nil, ErrRefreshTokenExpired
	}

	next, err := token.GenerateOpaque(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	err = s.repo.RotateRefreshSession(ctx, identity.ID, hash, token.HashOpaque(next), now.Add(s.refreshTTL))
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			slog.Warn("refresh_failed", "identity_id", identity.ID, "reason", "lost_rotation_race")
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("failed to rotate refresh session: %w", err)
	}

	return s.tokenPair(identity, next, now)
}

// Logout revokes the session holding the presented refresh token. It never
// fails on an unknown or already-revoked token; the boolean reports
// whether anything was actually revoked.
func (s *Service) Logout(ctx context.Context, refreshToken string) (bool, error) {
	identity, err := s.repo.GetByRefreshTokenHash(ctx, token.HashOpaque(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	if err := s.repo.ClearRefreshSession(ctx, identity.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to clear refresh session: %w", err)
	}

	slog.Info("logout", "identity_id", identity.ID)
	return true, nil
}

// VerifyEmail checks a submitted verification code. A mismatch charges the
// attempt counter even though the call fails. On acceptance the identity
// transitions to verified and identity.email_verified is published
// best-effort. An unknown email reports the same outcome as a missing or
// expired code.
func (s *Service) VerifyEmail(ctx context.Context, emailAddr, code string) error {
	identity, err := s.repo.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOTPExpired
		}
		return fmt.Errorf("failed to get identity: %w", err)
	}

	now := time.Now().UTC()
	switch s.otp.CheckVerify(otpState(identity), code, now) {
	case otp.VerifyAlreadyVerified:
		return ErrAlreadyVerified
	case otp.VerifyTooManyAttempts:
		return ErrTooManyAttempts
	case otp.VerifyExpired:
		return ErrOTPExpired
	case otp.VerifyMismatch:
		if err := s.repo.IncrementOTPAttempts(ctx, identity.ID); err != nil {
			return fmt.Errorf("failed to record failed attempt: %w", err)
		}
		slog.Warn("verify_email_failed", "identity_id", identity.ID, "reason", "mismatch")
		return ErrOTPMismatch
	}

	if err := s.repo.MarkEmailVerified(ctx, identity.ID, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrAlreadyVerified
		}
		return fmt.Errorf("failed to mark verified: %w", err)
	}

	s.publish(ctx, bus.IdentityVerifiedKey, bus.IdentityEmailVerified{
		ID:         identity.ID,
		Email:      identity.Email,
		VerifiedAt: now,
	})

	slog.Info("email_verified", "identity_id", identity.ID, "email", identity.Email)
	return nil
}

// ResendOTP issues a fresh verification code, resetting the attempt
// counter. An unknown email succeeds without doing any work so the
// endpoint cannot be used to probe which addresses are registered.
func (s *Service) ResendOTP(ctx context.Context, emailAddr string) error {
	identity, err := s.repo.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			slog.Info("resend_otp_skipped", "reason", "unknown_email")
			return nil
		}
		return fmt.Errorf("failed to get identity: %w", err)
	}

	now := time.Now().UTC()
	switch s.otp.CheckResend(otpState(identity), now) {
	case otp.ResendAlreadyVerified:
		return ErrAlreadyVerified
	case otp.ResendCooldownActive:
		return ErrCooldownActive
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return err
	}
	issued := s.otp.Issue(code, now)

	// Deliver before persisting: a failed send must leave the previously
	// delivered code valid and the cooldown clock untouched.
	if err := s.mailer.SendOTP(ctx, identity.Email, identity.DisplayName(), code, s.otp.TTL()); err != nil {
		return fmt.Errorf("failed to deliver verification code: %w", err)
	}
	if err := s.repo.SetOTPState(ctx, identity.ID, issued.CodeHash, issued.ExpiresAt, issued.SentAt); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}

	slog.Info("otp_resent", "identity_id", identity.ID)
	return nil
}

// List returns all identities, newest first.
func (s *Service) List(ctx context.Context) ([]models.Identity, error) {
	return s.repo.List(ctx)
}

// GetByID returns one identity or repository.ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) tokenPair(identity *models.Identity, refreshToken string, now time.Time) (*TokenPair, error) {
	accessToken, err := s.codec.SignAccessToken(identity.ID, identity.Email, identity.NameOrEmpty(), now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	return &TokenPair{
		AccessToken:          accessToken,
		RefreshToken:         refreshToken,
		TokenType:            "Bearer",
		AccessTokenExpiresIn: int(s.codec.AccessTTL().Seconds()),
	}, nil
}

func (s *Service) publish(ctx context.Context, routingKey string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, routingKey, payload); err != nil {
		slog.Error("event_publish_failed", "routing_key", routingKey, "error", err)
	}
}

func otpState(i *models.Identity) otp.State {
	s := otp.State{
		Attempts:   i.OTPAttempts,
		ExpiresAt:  i.OTPExpiresAt,
		SentAt:     i.OTPSentAt,
		VerifiedAt: i.EmailVerifiedAt,
	}
	if i.OTPHash != nil {
		s.CodeHash = *i.OTPHash
	}
	return s
}
