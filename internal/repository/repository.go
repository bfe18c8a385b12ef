// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

// Package repository provides per-service storage over sqlx. Each service
// owns its own database and its own repository type.
package repository

import (
	"database/sql"
	"errors"
	"strings"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique constraint is violated.
var ErrDuplicate = errors.New("record already exists")

// ErrConflict is returned when a conditional update matched no row, meaning
// another writer changed the record first.
var ErrConflict = errors.New("concurrent update conflict")

// wrapError converts driver errors to repository errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
