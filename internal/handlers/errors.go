// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorResponse is the JSON error body of every non-2xx response. Code is
// a stable machine-readable name; Error is for humans. Internal failures
// always surface as a generic 500 so nothing leaks across the boundary.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func fail(c echo.Context, status int, code, message string) error {
	return c.JSON(status, ErrorResponse{Code: code, Error: message})
}

func invalidRequest(c echo.Context) error {
	return fail(c, http.StatusBadRequest, "InvalidRequest", "invalid request body")
}

func validationFailed(c echo.Context, err error) error {
	return fail(c, http.StatusBadRequest, "ValidationFailed", err.Error())
}

func notFound(c echo.Context) error {
	return fail(c, http.StatusNotFound, "NotFound", "resource not found")
}

func internalError(c echo.Context) error {
	return fail(c, http.StatusInternalServerError, "InternalError", "internal server error")
}
