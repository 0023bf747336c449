package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// migrationLockID is an arbitrary key for pg_advisory_lock so two deploys
// never apply the same migration concurrently.
const migrationLockID = 72_011_501

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`

// Migrate applies (up) or reverts (down) the versioned SQL files found in
// fsys. Files are named NNNNNN_name.up.sql / NNNNNN_name.down.sql; each one
// runs in its own transaction together with its schema_migrations record.
// It returns the versions that were applied or reverted.
func Migrate(ctx context.Context, db *sql.DB, fsys fs.FS, dir Direction) ([]string, error) {
	if dir != Up && dir != Down {
		return nil, fmt.Errorf("unknown migration direction %q", dir)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID)

	if _, err := conn.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	files, err := migrationFiles(fsys, dir)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, name := range files {
		version := migrationVersion(name)
		_, isApplied := applied[version]
		if (dir == Up && isApplied) || (dir == Down && !isApplied) {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return done, fmt.Errorf("read migration %s: %w", name, err)
		}

		if err := applyMigration(ctx, conn, dir, version, string(content)); err != nil {
			return done, fmt.Errorf("execute migration %s: %w", name, err)
		}
		done = append(done, version)
	}

	return done, nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, dir Direction, version, content string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return err
	}

	if dir == Up {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version)
	}
	if err != nil {
		return fmt.Errorf("record version: %w", err)
	}

	return tx.Commit()
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[string]struct{}, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = struct{}{}
	}

	return applied, rows.Err()
}

func migrationFiles(fsys fs.FS, dir Direction) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration directory: %w", err)
	}

	suffix := fmt.Sprintf(".%s.sql", dir)
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}

	sort.Strings(files)
	if dir == Down {
		for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
			files[i], files[j] = files[j], files[i]
		}
	}

	return files, nil
}

// migrationVersion returns "000001_init" for "000001_init.up.sql".
func migrationVersion(name string) string {
	name = strings.TrimSuffix(name, ".sql")
	name = strings.TrimSuffix(name, "."+string(Up))
	return strings.TrimSuffix(name, "."+string(Down))
}
