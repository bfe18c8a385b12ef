// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package server

import (
	"github.com/labstack/echo/v4"

	"github.com/notefleet/notefleet/internal/i18n"
)

// Locale detects the caller's preferred language from Accept-Language and
// attaches it to the request context, so verification emails triggered by
// the request are localized.
func Locale() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			lang := i18n.MatchLanguage(req.Header.Get("Accept-Language"))
			ctx := i18n.WithLocale(req.Context(), lang)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
