// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notefleet/notefleet/internal/bus"
	"github.com/notefleet/notefleet/internal/otp"
	"github.com/notefleet/notefleet/internal/repository"
	"github.com/notefleet/notefleet/internal/testutil"
	"github.com/notefleet/notefleet/internal/token"
)

func newTestService(t *testing.T) (*Service, *repository.IdentityRepository, *testutil.FakeMailer, *testutil.CapturePublisher) {
	t.Helper()
	db := testutil.NewTestDB(t, "identity")
	repo := repository.NewIdentityRepository(db)
	mailer := &testutil.FakeMailer{}
	pub := &testutil.CapturePublisher{}
	svc := NewService(
		repo,
		token.NewCodec("test-secret", 0),
		otp.NewEngine(0, 0, 0),
		mailer,
		pub,
		0,
	)
	return svc, repo, mailer, pub
}

func register(t *testing.T, svc *Service, email string) string {
	t.Helper()
	name := "Alice"
	identity, err := svc.Register(context.Background(), RegisterParams{
		Email:    email,
		Password: "correct horse battery staple",
		Name:     &name,
	})
	require.NoError(t, err)
	return identity.ID
}

func wrongCode(right string) string {
	if right == "000000" {
		return "111111"
	}
	return "000000"
}

func TestRegister(t *testing.T) {
	svc, repo, mailer, pub := newTestService(t)
	ctx := context.Background()

	id := register(t, svc, "alice@example.com")

	stored, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", stored.Email)
	assert.Nil(t, stored.EmailVerifiedAt)
	assert.NotNil(t, stored.OTPHash)
	assert.Len(t, mailer.LastCode(t), 6)
	assert.Equal(t, []string{bus.IdentityCreatedKey}, pub.Keys())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	register(t, svc, "alice@example.com")
	_, err := svc.Register(context.Background(), RegisterParams{
		Email:    "alice@example.com",
		Password: "another password",
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegisterRollsBackWhenDeliveryFails(t *testing.T) {
	svc, repo, mailer, pub := newTestService(t)
	mailer.Err = errors.New("smtp down")

	_, err := svc.Register(context.Background(), RegisterParams{
		Email:    "alice@example.com",
		Password: "correct horse battery staple",
	})
	require.Error(t, err)

	_, err = repo.GetByEmail(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, pub.Keys(), "no event may announce a rolled-back registration")
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	register(t, svc, "alice@example.com")

	_, err := svc.Login(context.Background(), "alice@example.com", "correct horse battery staple")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	register(t, svc, "alice@example.com")

	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "unknown email")

	_, err = svc.Login(context.Background(), "alice@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "wrong password")
}

func TestVerifyThenLogin(t *testing.T) {
	svc, _, mailer, pub := newTestService(t)
	ctx := context.Background()
	register(t, svc, "alice@example.com")

	require.NoError(t, svc.VerifyEmail(ctx, "alice@example.com", mailer.LastCode(t)))

	pair, err := svc.Login(ctx, "alice@example.com", "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := token.NewCodec("test-secret", 0).VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)

	assert.Equal(t, []string{bus.IdentityCreatedKey, bus.IdentityVerifiedKey}, pub.Keys())
}

func TestVerifyEmailMismatchChargesAttempts(t *testing.T) {
	svc, repo, mailer, _ := newTestService(t)
	ctx := context.Background()
	id := register(t, svc, "alice@example.com")

	code := mailer.LastCode(t)

	// Four wrong submissions each fail and each charge the counter.
	for i := 0; i < 4; i++ {
		err := svc.VerifyEmail(ctx, "alice@example.com", wrongCode(code))
		assert.ErrorIs(t, err, ErrOTPMismatch)
	}
	stored, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.OTPAttempts)

	// The fifth submission with the right code still succeeds.
	require.NoError(t, svc.VerifyEmail(ctx, "alice@example.com", code))

	// The code is spent; a replay reports the identity as verified.
	err = svc.VerifyEmail(ctx, "alice@example.com", code)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestVerifyEmailTooManyAttempts(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, "alice@example.com")
	code := mailer.LastCode(t)

	for i := 0; i < 5; i++ {
		err := svc.VerifyEmail(ctx, "alice@example.com", wrongCode(code))
		assert.ErrorIs(t, err, ErrOTPMismatch)
	}

	// Even the right code is refused once the attempts are used up.
	err := svc.VerifyEmail(ctx, "alice@example.com", code)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestVerifyEmailExpiredCode(t *testing.T) {
	svc, repo, mailer, _ := newTestService(t)
	ctx := context.Background()
	id := register(t, svc, "alice@example.com")
	code := mailer.LastCode(t)

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, repo.SetOTPState(ctx, id, token.HashOpaque(code), past, past.Add(-5*time.Minute)))

	err := svc.VerifyEmail(ctx, "alice@example.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestVerifyEmailUnknownEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	err := svc.VerifyEmail(context.Background(), "nobody@example.com", "123456")
	assert.ErrorIs(t, err, ErrOTPExpired)
}

func TestResendOTP(t *testing.T) {
	svc, repo, mailer, _ := newTestService(t)
	ctx := context.Background()
	id := register(t, svc, "alice@example.com")

	// Immediately after registration the cooldown is still running.
	err := svc.ResendOTP(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ErrCooldownActive)

	// Age the last-sent timestamp past the cooldown.
	stored, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	sentAt := time.Now().UTC().Add(-2 * time.Minute)
	require.NoError(t, repo.SetOTPState(ctx, id, *stored.OTPHash, *stored.OTPExpiresAt, sentAt))

	require.NoError(t, svc.ResendOTP(ctx, "alice@example.com"))
	second := mailer.LastCode(t)
	require.NoError(t, svc.VerifyEmail(ctx, "alice@example.com", second))

	// Verified identities cannot request further codes.
	err = svc.ResendOTP(ctx, "alice@example.com")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestResendOTPUnknownEmailAccepted(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)

	// An unknown address reports success without sending anything, so the
	// endpoint cannot confirm which emails are registered.
	err := svc.ResendOTP(context.Background(), "nobody@example.com")
	assert.NoError(t, err)
	assert.Empty(t, mailer.Codes)
}

func TestResendDeliveryFailureKeepsCurrentCode(t *testing.T) {
	svc, repo, mailer, _ := newTestService(t)
	ctx := context.Background()
	id := register(t, svc, "alice@example.com")
	first := mailer.LastCode(t)

	stored, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	sentAt := time.Now().UTC().Add(-2 * time.Minute)
	require.NoError(t, repo.SetOTPState(ctx, id, *stored.OTPHash, *stored.OTPExpiresAt, sentAt))

	mailer.Err = errors.New("smtp unavailable")
	err = svc.ResendOTP(ctx, "alice@example.com")
	require.Error(t, err)

	// The undelivered code must not replace the one the user holds, and the
	// cooldown clock must not restart.
	stored, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, token.HashOpaque(first), *stored.OTPHash)
	require.NotNil(t, stored.OTPSentAt)
	assert.WithinDuration(t, sentAt, *stored.OTPSentAt, time.Second)

	mailer.Err = nil
	require.NoError(t, svc.VerifyEmail(ctx, "alice@example.com", first))
}

func TestResendResetsAttemptCounter(t *testing.T) {
	svc, repo, mailer, _ := newTestService(t)
	ctx := context.Background()
	id := register(t, svc, "alice@example.com")
	code := mailer.LastCode(t)

	for i := 0; i < 3; i++ {
		_ = svc.VerifyEmail(ctx, "alice@example.com", wrongCode(code))
	}

	stored, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	sentAt := time.Now().UTC().Add(-2 * time.Minute)
	require.NoError(t, repo.SetOTPState(ctx, id, *stored.OTPHash, *stored.OTPExpiresAt, sentAt))
	require.NoError(t, svc.ResendOTP(ctx, "alice@example.com"))

	stored, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.OTPAttempts)
}

func loginVerified(t *testing.T, svc *Service, mailer *testutil.FakeMailer) *TokenPair {
	t.Helper()
	ctx := context.Background()
	register(t, svc, "alice@example.com")
	require.NoError(t, svc.VerifyEmail(ctx, "alice@example.com", mailer.LastCode(t)))
	pair, err := svc.Login(ctx, "alice@example.com", "correct horse battery staple")
	require.NoError(t, err)
	return pair
}

func TestRefreshRotationInvalidatesPredecessor(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()
	pair := loginVerified(t, svc, mailer)

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The consumed token is dead; only the rotated one works.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = svc.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshExpiredSession(t *testing.T) {
	svc, repo, mailer, _ := newTestService(t)
	ctx := context.Background()
	pair := loginVerified(t, svc, mailer)

	stored, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	hash := token.HashOpaque(pair.RefreshToken)
	require.NoError(t, repo.SetRefreshSession(ctx, stored.ID, hash, time.Now().UTC().Add(-time.Hour)))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenExpired)
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()
	pair := loginVerified(t, svc, mailer)

	revoked, err := svc.Logout(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = svc.Logout(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLoginOverwritesRefreshSession(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	ctx := context.Background()
	first := loginVerified(t, svc, mailer)

	second, err := svc.Login(ctx, "alice@example.com", "correct horse battery staple")
	require.NoError(t, err)

	// Exactly one refresh session is live per identity.
	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, err = svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestPublishFailureDoesNotFailRegistration(t *testing.T) {
	svc, repo, _, pub := newTestService(t)
	pub.Err = errors.New("broker unreachable")

	id := register(t, svc, "alice@example.com")

	stored, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", stored.Email)
}
