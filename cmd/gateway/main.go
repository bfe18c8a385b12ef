// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/notefleet/notefleet/internal/config"
	"github.com/notefleet/notefleet/internal/gateway"
	"github.com/notefleet/notefleet/internal/logging"
	"github.com/notefleet/notefleet/internal/server"
	"github.com/notefleet/notefleet/internal/token"
)

func main() {
	cmd := &cli.Command{
		Name:  "gateway",
		Usage: "Notefleet API gateway",
		Flags: slices.Concat(
			config.CommonFlags(8080),
			config.TokenFlags(),
			config.GatewayFlags(),
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

	gw := gateway.New(
		token.NewCodec(cfg.Token.AccessSecret, cfg.Token.AccessTTL),
		&cfg.Gateway,
	)
	e, err := gw.Router()
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	e.Use(server.RequestLogger())

	return server.Start(ctx, e, cfg.Server.Host, cfg.Server.Port)
}
