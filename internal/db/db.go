package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	workspaceDir  = ".formdeck"
	defaultDBName = "formdeck.db"
)

type Config struct {
	Workspace string
	// DSN overrides the workspace SQLite file.
	DSN string
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Driver picks the database/sql driver for a DSN.
func Driver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// Open opens the configured database. SQLite connections have foreign keys on.
func Open(cfg Config) (*sqlx.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
		dsn = dbPath(cfg.Workspace)
	}
	driver := Driver(dsn)
	if driver == "sqlite" {
		dsn = sqliteDSN(dsn)
	}
	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return conn, nil
}

func sqliteDSN(path string) string {
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.Contains(path, "foreign_keys") {
		path += sep + "_pragma=foreign_keys(1)"
		sep = "&"
	}
	if !strings.Contains(path, "busy_timeout") {
		path += sep + "_pragma=busy_timeout(5000)"
	}
	return path
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}
