package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migration is one versioned schema change with its revert script
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationsRunner applies the embedded sql/NNNNNN_name.{up,down}.sql files in version order
type MigrationsRunner struct {
	db         *sql.DB
	logger     *log.Logger
	migrations []Migration
}

// NewMigrationsRunner loads the embedded migrations. db may be nil when only
// the migration list is needed.
func NewMigrationsRunner(db *sql.DB) (*MigrationsRunner, error) {
	migrations, err := loadMigrations(migrationFiles, "sql")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}

	return &MigrationsRunner{
		db:         db,
		logger:     log.New(os.Stderr, "", log.LstdFlags),
		migrations: migrations,
	}, nil
}

// DisableLogging silences progress output
func (r *MigrationsRunner) DisableLogging() {
	r.logger.SetOutput(io.Discard)
}

// EnableLogging restores progress output to stderr
func (r *MigrationsRunner) EnableLogging() {
	r.logger.SetOutput(os.Stderr)
}

// Migrations returns the loaded migrations in version order
func (r *MigrationsRunner) Migrations() []Migration {
	return append([]Migration{}, r.migrations...)
}

// loadMigrations pairs up and down scripts by version. An up script without
// a down script is an error.
func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		var direction string
		switch {
		case strings.HasSuffix(filename, ".up.sql"):
			direction = "up"
		case strings.HasSuffix(filename, ".down.sql"):
			direction = "down"
		default:
			continue
		}

		prefix, rest, ok := strings.Cut(filename, "_")
		version, err := strconv.Atoi(prefix)
		if !ok || err != nil {
			log.Printf("⚠ Skipping invalid migration file: %s", filename)
			continue
		}

		content, err := fs.ReadFile(fsys, dir+"/"+filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		m, exists := byVersion[version]
		if !exists {
			m = &Migration{Version: version, Name: strings.TrimSuffix(rest, "."+direction+".sql")}
			byVersion[version] = m
		}
		if direction == "up" {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %d (%s) has no up script", m.Version, m.Name)
		}
		if m.Down == "" {
			return nil, fmt.Errorf("migration %d (%s) has no down script", m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (r *MigrationsRunner) createMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS schema_migrations (
            version INTEGER PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            applied_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
        )
    `)
	return err
}

// getAppliedMigrations returns the set of applied versions
func (r *MigrationsRunner) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// Pending returns the migrations not yet applied, oldest first
func (r *MigrationsRunner) Pending() ([]Migration, error) {
	return r.pending(context.Background())
}

func (r *MigrationsRunner) pending(ctx context.Context) ([]Migration, error) {
	if err := r.createMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var pending []Migration
	for _, m := range r.migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Run applies every pending migration, each in its own transaction
func (r *MigrationsRunner) Run() error {
	return r.RunContext(context.Background())
}

// RunContext is Run with a context
func (r *MigrationsRunner) RunContext(ctx context.Context) error {
	pending, err := r.pending(ctx)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		r.logger.Println("No pending migrations")
		return nil
	}
	r.logger.Printf("Found %d pending migration(s)", len(pending))

	for _, m := range pending {
		r.logger.Printf("Applying migration %d: %s", m.Version, m.Name)

		err := r.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
				m.Version, m.Name,
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		r.logger.Printf("✓ Successfully applied migration %d: %s", m.Version, m.Name)
	}

	r.logger.Println("All migrations completed successfully")
	return nil
}

// Rollback reverts the most recently applied migration. It returns false when
// nothing was applied.
func (r *MigrationsRunner) Rollback(ctx context.Context) (bool, error) {
	if err := r.createMigrationsTable(ctx); err != nil {
		return false, fmt.Errorf("failed to create migrations table: %w", err)
	}
	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for i := len(r.migrations) - 1; i >= 0; i-- {
		m := r.migrations[i]
		if !applied[m.Version] {
			continue
		}

		r.logger.Printf("Reverting migration %d: %s", m.Version, m.Name)
		err := r.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Down); err != nil {
				return fmt.Errorf("failed to revert migration %d (%s): %w", m.Version, m.Name, err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", m.Version); err != nil {
				return fmt.Errorf("failed to unrecord migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return false, err
		}
		r.logger.Printf("✓ Reverted migration %d: %s", m.Version, m.Name)
		return true, nil
	}
	return false, nil
}

func (r *MigrationsRunner) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
