// Package app wires config, storage and the engine for the CLI and server.
package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"formdeck/internal/config"
	"formdeck/internal/db"
	"formdeck/internal/engine"
	"formdeck/internal/gelf"
	"formdeck/internal/migrate"
)

// Open connects to the configured database, applies migrations and returns an engine.
// The caller closes eng.DB.
func Open(workspace string, cfg *config.Config) (engine.Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Workspace: workspace, DSN: cfg.Database.DSN})
	if err != nil {
		return engine.Engine{}, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, fmt.Errorf("migrate: %w", err)
	}
	return engine.New(conn, cfg), nil
}

// SetupLogging tees the standard logger to GELF when logging.gelf_addr is set.
// The returned func restores the previous output.
func SetupLogging(cfg *config.Config) (func(), error) {
	noop := func() {}
	if cfg == nil || strings.TrimSpace(cfg.Logging.GELFAddr) == "" {
		return noop, nil
	}
	w, err := gelf.New(cfg.Logging.GELFAddr, "formdeck")
	if err != nil {
		return noop, fmt.Errorf("gelf: %w", err)
	}
	prev := log.Writer()
	log.SetOutput(io.MultiWriter(os.Stderr, w))
	log.Printf("logging to gelf %s", cfg.Logging.GELFAddr)
	return func() {
		log.SetOutput(prev)
		_ = w.Close()
	}, nil
}
