package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// DatabaseManager owns the Postgres connection used by the dataset store
type DatabaseManager struct {
	healthChecker *HealthChecker
}

// ManagerOption configures a DatabaseManager
type ManagerOption func(*managerSettings)

type managerSettings struct {
	maxOpen        int
	maxIdle        int
	healthInterval time.Duration
}

// WithPool sets the connection pool limits
func WithPool(maxOpen, maxIdle int) ManagerOption {
	return func(s *managerSettings) {
		if maxOpen > 0 {
			s.maxOpen = maxOpen
		}
		if maxIdle >= 0 {
			s.maxIdle = maxIdle
		}
	}
}

// WithHealthInterval sets how often the connection is pinged
func WithHealthInterval(d time.Duration) ManagerOption {
	return func(s *managerSettings) {
		if d > 0 {
			s.healthInterval = d
		}
	}
}

// NewDatabaseManager connects to dsn and starts health checking. A failed
// ping triggers a reconnect with the same settings.
func NewDatabaseManager(dsn string, opts ...ManagerOption) (*DatabaseManager, error) {
	settings := managerSettings{maxOpen: 25, maxIdle: 5, healthInterval: 30 * time.Second}
	for _, opt := range opts {
		opt(&settings)
	}

	connect := func() (*sql.DB, error) { return openPool(dsn, settings) }
	db, err := connect()
	if err != nil {
		return nil, err
	}

	hc := NewHealthChecker(db, settings.healthInterval, WithReconnect(connect))
	hc.Start()

	return &DatabaseManager{healthChecker: hc}, nil
}

// GetDB returns the current database connection. It changes after a reconnect.
func (dm *DatabaseManager) GetDB() *sql.DB {
	return dm.healthChecker.DB()
}

// Close closes the database connection and stops health checking
func (dm *DatabaseManager) Close() error {
	dm.healthChecker.Stop()
	if db := dm.healthChecker.DB(); db != nil {
		return db.Close()
	}
	return nil
}

// QueryWithHealthCheck executes a query with connection health verification
func (dm *DatabaseManager) QueryWithHealthCheck(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	return dm.GetDB().QueryContext(ctx, query, args...)
}

// QueryRowWithHealthCheck executes a query that returns a single row with health check
func (dm *DatabaseManager) QueryRowWithHealthCheck(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		// empty row; Scan reports sql.ErrNoRows
		return dm.GetDB().QueryRowContext(context.Background(), "SELECT NULL WHERE FALSE")
	}

	return dm.GetDB().QueryRowContext(ctx, query, args...)
}

// ExecWithHealthCheck executes a statement with connection health verification
func (dm *DatabaseManager) ExecWithHealthCheck(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := dm.healthChecker.EnsureConnection(ctx); err != nil {
		return nil, err
	}

	return dm.GetDB().ExecContext(ctx, query, args...)
}

// IsConnectionHealthy returns the current health status
func (dm *DatabaseManager) IsConnectionHealthy() bool {
	return dm.healthChecker.IsHealthy()
}

// ConnectionStatus returns the health checker state
func (dm *DatabaseManager) ConnectionStatus() ConnectionStatus {
	return dm.healthChecker.Status()
}

// Init applies pending readings/alerts migrations
func (dm *DatabaseManager) Init() error {
	log.Println("Applying readings store migrations...")

	runner, err := NewMigrationsRunner(dm.GetDB())
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}

	if err := runner.Run(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("✓ Readings store schema is current")
	return nil
}

// openPool opens and pings a pool for the readings store
func openPool(dsn string, settings managerSettings) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(settings.maxOpen)
	db.SetMaxIdleConns(settings.maxIdle)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach readings store: %w", err)
	}

	return db, nil
}
