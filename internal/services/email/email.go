// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/notefleet/notefleet/internal/config"
	"github.com/notefleet/notefleet/internal/i18n"
)

// Sender delivers one-time verification codes to identity owners.
type Sender interface {
	SendOTP(ctx context.Context, to, name, code string, ttl time.Duration) error
}

// Service sends verification code emails over SMTP using go-mail.
type Service struct {
	cfg *config.SMTPConfig
}

// NewService creates a new email service. In production incomplete SMTP
// settings are a startup error; in development they are tolerated and
// codes are logged instead of sent.
func NewService(cfg *config.SMTPConfig) (*Service, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}
	if cfg.Production && (cfg.Host == "" || cfg.Username == "" || cfg.Password == "") {
		return nil, fmt.Errorf("SMTP host and credentials are required in production")
	}

	return &Service{cfg: cfg}, nil
}

// SendOTP emails a verification code valid for ttl. Without configured
// SMTP credentials outside production the code is written to the log so
// local flows stay testable without a mail server.
func (s *Service) SendOTP(ctx context.Context, to, name, code string, ttl time.Duration) error {
	if !s.configured() {
		slog.Warn("smtp not configured, logging verification code instead",
			"to", to, "code", code, "expires_in", ttl)
		return nil
	}

	subject := i18n.T(ctx, "otp_email_subject")
	body := i18n.TData(ctx, "otp_email_body", map[string]any{
		"Name":    name,
		"Code":    code,
		"Minutes": int(ttl.Minutes()),
	})

	return s.send(ctx, to, subject, body)
}

func (s *Service) configured() bool {
	return s.cfg.Host != "" && s.cfg.Username != "" && s.cfg.Password != ""
}

// send sends an email via SMTP using go-mail.
func (s *Service) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Implicit TLS (SSL) for port 465, STARTTLS for others.
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	opts = append(opts,
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
	)

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}
