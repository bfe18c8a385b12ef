// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package gateway is the single public entry point. It verifies bearer
// tokens for everything outside a small public allowlist and proxies to
// the identity, profile and note services.
package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/notefleet/notefleet/internal/config"
	"github.com/notefleet/notefleet/internal/handlers"
	"github.com/notefleet/notefleet/internal/token"
)

// IdentityEmailHeader carries the verified email alongside
// handlers.IdentityIDHeader.
const IdentityEmailHeader = "X-Identity-Email"

// publicRoutes are exempt from token verification. Matching is on the
// exact method and path, never on prefixes.
var publicRoutes = map[string]struct{}{
	"POST /auth/register":     {},
	"POST /auth/login":        {},
	"POST /auth/refresh":      {},
	"POST /auth/logout":       {},
	"POST /auth/verify-email": {},
	"POST /auth/resend-otp":   {},
	"GET /health":             {},
	"GET /metrics":            {},
}

type Gateway struct {
	codec *token.Codec
	cfg   *config.GatewayConfig
}

func New(codec *token.Codec, cfg *config.GatewayConfig) *Gateway {
	return &Gateway{codec: codec, cfg: cfg}
}

// Router builds the echo app: rate limiting, authentication, then
// per-route reverse proxies to the three upstreams.
func (g *Gateway) Router() (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	if g.cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(g.cfg.RateLimit),
				Burst:     int(g.cfg.RateLimit) * 2,
				ExpiresIn: 3 * time.Minute,
			},
		)))
	}
	e.Use(g.Authenticate)

	identityProxy, err := proxyTo(g.cfg.IdentityURL)
	if err != nil {
		return nil, fmt.Errorf("identity upstream: %w", err)
	}
	profileProxy, err := proxyTo(g.cfg.ProfileURL)
	if err != nil {
		return nil, fmt.Errorf("profile upstream: %w", err)
	}
	noteProxy, err := proxyTo(g.cfg.NoteURL)
	if err != nil {
		return nil, fmt.Errorf("note upstream: %w", err)
	}

	e.GET("/health", handlers.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.Any("/auth/*", echo.NotFoundHandler, identityProxy)
	e.Any("/identities", echo.NotFoundHandler, identityProxy)
	e.Any("/identities/:id", echo.NotFoundHandler, identityProxy)
	e.Any("/identities/:id/notes", echo.NotFoundHandler, noteProxy)
	e.Any("/profiles", echo.NotFoundHandler, profileProxy)
	e.Any("/profiles/:id", echo.NotFoundHandler, profileProxy)
	e.Any("/notes", echo.NotFoundHandler, noteProxy)
	e.Any("/notes/:id", echo.NotFoundHandler, noteProxy)

	return e, nil
}

// Authenticate enforces the bearer-token contract. The identity headers
// are stripped from every inbound request first, so a client can never
// impersonate by setting them directly. No store lookup happens here; the
// token is self-contained.
func (g *Gateway) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		req.Header.Del(handlers.IdentityIDHeader)
		req.Header.Del(IdentityEmailHeader)

		if _, ok := publicRoutes[req.Method+" "+req.URL.Path]; ok {
			return next(c)
		}

		authz := req.Header.Get(echo.HeaderAuthorization)
		const prefix = "Bearer "
		if !strings.HasPrefix(authz, prefix) || authz == prefix {
			return c.JSON(http.StatusUnauthorized, handlers.ErrorResponse{
				Code:  "MissingToken",
				Error: "missing bearer token",
			})
		}

		claims, err := g.codec.VerifyAccessToken(strings.TrimPrefix(authz, prefix))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, handlers.ErrorResponse{
				Code:  "InvalidOrExpiredToken",
				Error: "invalid or expired token",
			})
		}

		req.Header.Set(handlers.IdentityIDHeader, claims.Subject)
		req.Header.Set(IdentityEmailHeader, claims.Email)
		return next(c)
	}
}

func proxyTo(raw string) (echo.MiddlewareFunc, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return middleware.Proxy(middleware.NewRoundRobinBalancer(
		[]*middleware.ProxyTarget{{URL: u}},
	)), nil
}
