// Package migrate applies embedded SQL migrations once per file.
//
// Migration files are applied in lexical order. Only the section after
// "-- +migrate Up" (and before "-- +migrate Down", if present) runs.
// Applied files are recorded in the schema_migrations table. Queries are
// written with "?" placeholders and rebound for the connection's driver.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Table is the bookkeeping table name.
const Table = "schema_migrations"

const (
	upMarker   = "-- +migrate Up"
	downMarker = "-- +migrate Down"
)

// Apply runs every *.sql file in fsys that is not yet recorded.
func Apply(ctx context.Context, db *sqlx.DB, fsys fs.FS) error {
	if db == nil {
		return errors.New("migrate: db is required")
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("migrate: read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	createSQL := `CREATE TABLE IF NOT EXISTS ` + Table + ` (
    name TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("migrate: ensure %s: %w", Table, err)
	}

	names, err := Applied(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: list applied: %w", err)
	}
	done := make(map[string]bool, len(names))
	for _, name := range names {
		done[name] = true
	}

	for _, name := range files {
		if done[name] {
			continue
		}
		if err := applyFile(ctx, db, fsys, name); err != nil {
			return err
		}
	}
	return nil
}

func applyFile(ctx context.Context, db *sqlx.DB, fsys fs.FS, name string) error {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("migrate: read %s: %w", name, err)
	}
	up := ExtractUp(string(content))
	if strings.TrimSpace(up) == "" {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, up); err != nil && !IsAlreadyExists(err) {
		_ = tx.Rollback()
		return fmt.Errorf("migrate: exec %s: %w", name, err)
	}
	record := db.Rebind(`INSERT INTO ` + Table + ` (name, applied_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`)
	if _, err := tx.ExecContext(ctx, record, name, time.Now().UTC().UnixMilli()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migrate: record %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", name, err)
	}
	return nil
}

// Applied returns the recorded migration names in order.
func Applied(ctx context.Context, db *sqlx.DB) ([]string, error) {
	var names []string
	if err := db.SelectContext(ctx, &names, `SELECT name FROM `+Table+` ORDER BY name`); err != nil {
		return nil, err
	}
	return names, nil
}

// ExtractUp returns the SQL in the "-- +migrate Up" section. Content
// without the marker is returned whole.
func ExtractUp(content string) string {
	upIdx := strings.Index(content, upMarker)
	if upIdx == -1 {
		return content
	}
	body := content[upIdx+len(upMarker):]
	if downIdx := strings.Index(body, downMarker); downIdx != -1 {
		body = body[:downIdx]
	}
	return body
}

// IsAlreadyExists reports whether err is idempotent DDL reporting an
// object that already exists.
func IsAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name")
}
