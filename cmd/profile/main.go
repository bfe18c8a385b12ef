// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"errors"
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
	"github.com/notefleet/notefleet/internal/logging"
	"github.com/notefleet/notefleet/internal/repository"
	"github.com/notefleet/notefleet/internal/server"
	"github.com/notefleet/notefleet/internal/services/profile"
)

func main() {
	cmd := &cli.Command{
		Name:  "profile",
		Usage: "Notefleet profile service",
		Flags: slices.Concat(
			config.CommonFlags(8082),
			config.DatabaseFlags("profile"),
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

	db, err := database.Open(cfg.Database.DSN, "profile")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	svc := profile.NewService(repository.NewProfileRepository(db))

	conn := bus.NewConn(cfg.Bus.URL)
	defer conn.Close()
	consumer := bus.NewConsumer(conn, bus.IdentityExchange, "profile.identity.events", bus.IdentityAllPattern)
	consumer.Handle(bus.IdentityCreatedKey, svc.OnIdentityCreated)
	consumer.Handle(bus.IdentityVerifiedKey, svc.OnIdentityEmailVerified)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("consumer stopped", "error", err)
		}
	}()

	e := server.NewEcho()
	handlers.NewProfile(svc).Register(e)

	return server.Start(ctx, e, cfg.Server.Host, cfg.Server.Port)
}
