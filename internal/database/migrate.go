// Copyright 2026 The Notefleet Authors
// Licensed under the EUPL-1.2

package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/identity/*.sql migrations/profile/*.sql migrations/note/*.sql
var embedMigrations embed.FS

// RunMigrations runs all pending goose migrations for a service.
func RunMigrations(db *sql.DB, service string) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.Up(db, fmt.Sprintf("migrations/%s", service))
}

// MigrateDown rolls back the last migration for a service.
func MigrateDown(db *sql.DB, service string) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.Down(db, fmt.Sprintf("migrations/%s", service))
}
