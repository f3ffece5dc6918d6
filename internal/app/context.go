package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"fieldops/internal/config"
	"fieldops/internal/db"
	"fieldops/internal/domain"
	"fieldops/internal/engine"
	"fieldops/internal/migrate"
	"fieldops/internal/repo"
)

// Workspace is an opened and migrated workspace with its configuration.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
}

// OpenWorkspace opens the workspace database, applies pending migrations and
// loads fieldops.yml, falling back to defaults when the file is absent.
func OpenWorkspace(dir string) (*Workspace, error) {
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	conn, err := openMigrated(dir)
	if err != nil {
		return nil, err
	}
	return &Workspace{Dir: dir, DB: conn, Config: cfg}, nil
}

// openMigrated opens the workspace database and brings its schema up to date.
// A database written by a newer binary is refused.
func openMigrated(dir string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	current, err := migrate.Current(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	latest, err := migrate.Latest()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if current > latest {
		conn.Close()
		return nil, fmt.Errorf("workspace schema version %d is newer than supported version %d", current, latest)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// Engine returns an engine bound to the workspace.
func (w *Workspace) Engine(logger *slog.Logger) engine.Engine {
	e := engine.New(w.DB, w.Config)
	if logger != nil {
		e.Logger = logger
	}
	return e
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

type InitResult struct {
	DBPath        string `json:"db_path"`
	SchemaVersion int    `json:"schema_version"`
	ConfigPath    string `json:"config_path"`
	ConfigWritten bool   `json:"config_written"`
}

// InitWorkspace creates the state directory, the database and a default
// fieldops.yml. An existing config file is kept unless force is set.
func InitWorkspace(dir string, force bool) (InitResult, error) {
	res := InitResult{DBPath: db.Path(dir), ConfigPath: config.Path(dir)}
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return res, err
	}
	conn, err := openMigrated(dir)
	if err != nil {
		return res, err
	}
	defer conn.Close()
	if res.SchemaVersion, err = migrate.Current(conn); err != nil {
		return res, err
	}
	if _, err := os.Stat(res.ConfigPath); err == nil && !force {
		return res, nil
	} else if err != nil && !os.IsNotExist(err) {
		return res, err
	}
	if err := os.WriteFile(res.ConfigPath, []byte(config.GenerateDefault()), 0o644); err != nil {
		return res, fmt.Errorf("write %s: %w", res.ConfigPath, err)
	}
	res.ConfigWritten = true
	return res, nil
}

// ResolveOperation picks the operation a command works on: the override when
// given, otherwise the only operation of the workspace.
func ResolveOperation(ctx context.Context, r repo.Repo, override string) (domain.Operation, error) {
	if override != "" {
		op, err := r.GetOperation(ctx, nil, override)
		if errors.Is(err, repo.ErrNotFound) {
			return op, fmt.Errorf("operation %s not found", override)
		}
		return op, err
	}
	ops, err := r.ListOperations(ctx)
	if err != nil {
		return domain.Operation{}, err
	}
	switch len(ops) {
	case 0:
		return domain.Operation{}, errors.New("no operation in workspace; import a scenario first")
	case 1:
		return ops[0], nil
	}
	return domain.Operation{}, errors.New("several operations in workspace; use --operation")
}
