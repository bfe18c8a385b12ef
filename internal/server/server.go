// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package server provides the shared echo setup and graceful shutdown
// used by every service binary.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// NewEcho builds an echo app with the common middleware stack and the
// Prometheus scrape endpoint.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(RequestLogger())
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

// Start runs e until a SIGINT/SIGTERM arrives, ctx is cancelled or the
// listener fails, then shuts down gracefully.
func Start(ctx context.Context, e *echo.Echo, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)

	errChan := make(chan error, 1)
	go func() {
		slog.Info("server running", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		slog.Info("shutting down server", "reason", "context cancelled")
	case <-quit:
		slog.Info("shutting down server", "reason", "signal")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
