// Package db owns the workspace database file. Open creates the .oneloop
// directory on demand, opens the embedded SQLite file with foreign keys on,
// and brings the schema up to date. Schema steps live in sql/ as numbered
// files; the last applied step is recorded in SQLite's user_version pragma,
// so the database carries its own version and needs no bookkeeping table.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"
)

const dbFileName = "oneloop.db"

//go:embed sql/*.sql
var schemaFS embed.FS

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the .oneloop directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspace, ".oneloop")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	return dir, nil
}

// Path returns the database file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".oneloop", dbFileName)
}

// Open opens the workspace database and applies any schema steps newer than
// the version recorded in the file. Safe to call on every process start.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", Path(cfg.Workspace))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := applySchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// SchemaVersion reads the schema version recorded in the database file.
func SchemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

type schemaStep struct {
	version int
	name    string
	ddl     string
}

func schemaSteps() ([]schemaStep, error) {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, err
	}
	steps := make([]schemaStep, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(e.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("schema file %s has no version prefix: %w", e.Name(), err)
		}
		ddl, err := schemaFS.ReadFile("sql/" + e.Name())
		if err != nil {
			return nil, err
		}
		steps = append(steps, schemaStep{version: v, name: e.Name(), ddl: string(ddl)})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// applySchema runs each pending step in its own transaction, bumping
// user_version together with the DDL so a failed step leaves the version
// untouched.
func applySchema(conn *sql.DB) error {
	steps, err := schemaSteps()
	if err != nil {
		return err
	}
	current, err := SchemaVersion(conn)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if step.version <= current {
			continue
		}
		tx, err := conn.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(step.ddl); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply schema step %s: %w", step.name, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", step.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record schema version %d: %w", step.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		current = step.version
	}
	return nil
}
