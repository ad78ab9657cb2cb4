package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrUnhealthy is returned while the last health check failed
var ErrUnhealthy = errors.New("database connection is not healthy")

// ReconnectFunc opens a replacement connection after a failed check
type ReconnectFunc func() (*sql.DB, error)

// HealthOption configures a HealthChecker
type HealthOption func(*HealthChecker)

// WithReconnect sets the function used to replace a broken connection
func WithReconnect(fn ReconnectFunc) HealthOption {
	return func(hc *HealthChecker) {
		hc.reconnect = fn
	}
}

// WithPingTimeout bounds each periodic ping
func WithPingTimeout(d time.Duration) HealthOption {
	return func(hc *HealthChecker) {
		if d > 0 {
			hc.pingTimeout = d
		}
	}
}

// ConnectionStatus is a point-in-time view of the checker
type ConnectionStatus struct {
	Healthy   bool
	Failures  int
	LastCheck time.Time
}

// HealthChecker pings the connection on an interval and swaps in a new one
// when a ping fails. Queries read the current connection through DB.
type HealthChecker struct {
	mu          sync.RWMutex
	db          *sql.DB
	healthy     bool
	failures    int
	lastCheck   time.Time
	reconnect   ReconnectFunc
	interval    time.Duration
	pingTimeout time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  bool
}

// NewHealthChecker creates a checker for db. The connection starts out healthy.
func NewHealthChecker(db *sql.DB, interval time.Duration, opts ...HealthOption) *HealthChecker {
	hc := &HealthChecker{
		db:          db,
		healthy:     true,
		interval:    interval,
		pingTimeout: 5 * time.Second,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(hc)
	}
	return hc
}

// Start runs Check on every tick until Stop
func (hc *HealthChecker) Start() {
	hc.mu.Lock()
	if hc.started {
		hc.mu.Unlock()
		return
	}
	hc.started = true
	hc.mu.Unlock()

	go func() {
		defer close(hc.done)
		ticker := time.NewTicker(hc.interval)
		defer ticker.Stop()

		for {
			select {
			case <-hc.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), hc.pingTimeout)
				hc.Check(ctx)
				cancel()
			}
		}
	}()
}

// Stop ends the check loop and waits for it to exit. It is safe to call
// more than once and without Start.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stop) })

	hc.mu.RLock()
	started := hc.started
	hc.mu.RUnlock()
	if started {
		<-hc.done
	}
}

// Check pings the connection and records the outcome. A failed ping
// triggers a reconnect when one is configured.
func (hc *HealthChecker) Check(ctx context.Context) error {
	err := hc.DB().PingContext(ctx)

	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.lastCheck = time.Now()

	if err == nil {
		if !hc.healthy {
			log.Println("✓ Database connection restored")
		}
		hc.healthy = true
		hc.failures = 0
		return nil
	}

	log.Printf("❌ Database connection health check failed: %v", err)
	hc.healthy = false
	hc.failures++

	if rerr := hc.replaceLocked(); rerr != nil {
		log.Printf("❌ Failed to reconnect to database: %v", rerr)
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (hc *HealthChecker) replaceLocked() error {
	if hc.reconnect == nil {
		return fmt.Errorf("no reconnect function configured")
	}

	db, err := hc.reconnect()
	if err != nil {
		return err
	}

	if hc.db != nil {
		hc.db.Close()
	}
	hc.db = db
	hc.healthy = true
	hc.failures = 0
	log.Println("✓ Database connection re-established")
	return nil
}

// DB returns the connection currently in use
func (hc *HealthChecker) DB() *sql.DB {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.db
}

// IsHealthy reports the outcome of the last check
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.healthy
}

// Status returns the checker state
func (hc *HealthChecker) Status() ConnectionStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return ConnectionStatus{
		Healthy:   hc.healthy,
		Failures:  hc.failures,
		LastCheck: hc.lastCheck,
	}
}

// EnsureConnection fails fast while unhealthy, otherwise pings before a query
func (hc *HealthChecker) EnsureConnection(ctx context.Context) error {
	hc.mu.RLock()
	healthy, db := hc.healthy, hc.db
	hc.mu.RUnlock()

	if !healthy {
		return ErrUnhealthy
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		hc.mu.Lock()
		hc.healthy = false
		hc.mu.Unlock()
		return fmt.Errorf("database connection check failed: %w", err)
	}
	return nil
}
