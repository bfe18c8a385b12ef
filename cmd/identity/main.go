// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/notefleet/notefleet/internal/bus"
	"github.com/notefleet/notefleet/internal/config"
	"github.com/notefleet/notefleet/internal/database"
	"github.com/notefleet/notefleet/internal/handlers"
	"github.com/notefleet/notefleet/internal/i18n"
	"github.com/notefleet/notefleet/internal/logging"
	"github.com/notefleet/notefleet/internal/otp"
	"github.com/notefleet/notefleet/internal/repository"
	"github.com/notefleet/notefleet/internal/server"
	"github.com/notefleet/notefleet/internal/services/email"
	"github.com/notefleet/notefleet/internal/services/identity"
	"github.com/notefleet/notefleet/internal/token"
)

func main() {
	cmd := &cli.Command{
		Name:  "identity",
		Usage: "Notefleet identity service",
		Flags: slices.Concat(
			config.CommonFlags(8081),
			config.DatabaseFlags("identity"),
			config.TokenFlags(),
			config.OTPFlags(),
			config.SMTPFlags(),
			config.BusFlags(),
		),
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.DSN, "identity")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	if err := i18n.Init(); err != nil {
		return fmt.Errorf("failed to init i18n: %w", err)
	}

	mailer, err := email.NewService(&cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to set up email: %w", err)
	}

	conn := bus.NewConn(cfg.Bus.URL)
	defer conn.Close()
	publisher := bus.NewPublisher(conn, bus.IdentityExchange, cfg.Bus.PublishTimeout)

	svc := identity.NewService(
		repository.NewIdentityRepository(db),
		token.NewCodec(cfg.Token.AccessSecret, cfg.Token.AccessTTL),
		otp.NewEngine(cfg.OTP.TTL, cfg.OTP.MaxAttempts, cfg.OTP.ResendCooldown),
		mailer,
		publisher,
		cfg.Token.RefreshTTL,
	)

	e := server.NewEcho()
	e.Use(server.Locale())
	handlers.NewIdentity(svc).Register(e)

	return server.Start(ctx, e, cfg.Server.Host, cfg.Server.Port)
}
