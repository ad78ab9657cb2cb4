package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/manslikestiffler/smart-granary/pkg/analytics"
	"github.com/manslikestiffler/smart-granary/pkg/broker"
	"github.com/manslikestiffler/smart-granary/pkg/config"
	"github.com/manslikestiffler/smart-granary/pkg/dashboard"
	"github.com/manslikestiffler/smart-granary/pkg/database"
	"github.com/manslikestiffler/smart-granary/pkg/hub"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Smart Granary server",
	Long:  `Start the reading sources, the realtime pipeline and the dashboard API.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := configFrom(cmd)

	var dbManager *database.DatabaseManager
	if cfg.Database.Enabled {
		dm, err := database.NewDatabaseManager(cfg.Database.DSN(),
			database.WithPool(cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns),
			database.WithHealthInterval(cfg.Database.HealthInterval),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dm.Close()

		if err := dm.Init(); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		dbManager = dm
	}

	var publisher *broker.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := broker.NewPublisher(kafkaConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		defer p.Close()
		publisher = p
	}

	h := hub.NewHub()
	go h.Run()
	defer h.Close()

	service, err := newDashboardService(cfg, h, dbManager, publisher)
	if err != nil {
		return err
	}

	if dbManager != nil {
		restoreReadings(cmd.Context(), service, dbManager, cfg.Pipeline.Retention)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	sources, err := InitSourceRegistry(cfg, registry)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sourcesDone := make(chan struct{})
	go func() {
		sources.RunAll(ctx, service)
		close(sourcesDone)
	}()

	if dbManager != nil && cfg.Database.Keep > 0 {
		go pruneStore(ctx, dbManager, cfg.Database.Keep, time.Hour)
	}

	routeManager := NewRouteManager(service, h, dbManager, cfg.Server)
	routeManager.Setup()

	addr := ":" + cfg.Server.Port
	server := &http.Server{
		Handler:      handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handlers.LoggingHandler(os.Stdout, routeManager.Router)),
		Addr:         addr,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received")

		cancel()
		<-sourcesDone

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Starting Smart Granary server on %s...", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func newDashboardService(cfg *config.Config, h *hub.Hub, dbManager *database.DatabaseManager, publisher *broker.Publisher) (*dashboard.Service, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	bands, err := cfg.AlertBands()
	if err != nil {
		return nil, err
	}

	opts := []dashboard.Option{
		dashboard.WithWindow(cfg.Pipeline.Window),
		dashboard.WithRetention(cfg.Pipeline.Retention),
		dashboard.WithInterval(cfg.AggregateInterval()),
		dashboard.WithSeverityFactor(cfg.Pipeline.SeverityFactor),
		dashboard.WithAggregateOptions(cfg.AggregateOptions()...),
		dashboard.WithBroadcaster(h),
	}
	if cfg.Pipeline.TruthyFilter {
		opts = append(opts, dashboard.WithAnalyticsOptions(analytics.WithTruthyFilter()))
	}
	// Typed nil pointers must not reach the interface fields.
	if dbManager != nil {
		opts = append(opts, dashboard.WithStore(dbManager))
	}
	if publisher != nil {
		opts = append(opts, dashboard.WithPublisher(publisher))
	}

	service, err := dashboard.NewService(registry, bands, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create dashboard service: %w", err)
	}
	return service, nil
}

// restoreReadings refills the buffer from the store so a restart keeps the recent history
func restoreReadings(ctx context.Context, service *dashboard.Service, dbManager *database.DatabaseManager, retention time.Duration) {
	since := time.Time{}
	if retention > 0 {
		since = time.Now().Add(-retention)
	}

	readings, err := dbManager.LoadReadings(ctx, since)
	if err != nil {
		log.Printf("⚠ Failed to restore readings: %v", err)
		return
	}

	service.Restore(readings)
	log.Printf("✓ Restored %d readings from the database", len(readings))
}

// pruneStore deletes stored readings older than keep on every tick
func pruneStore(ctx context.Context, dbManager *database.DatabaseManager, keep, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		deleted, err := dbManager.DeleteReadingsBefore(ctx, time.Now().Add(-keep))
		if err != nil {
			log.Printf("⚠ Failed to prune stored readings: %v", err)
		} else if deleted > 0 {
			log.Printf("✓ Pruned %d stored readings older than %s", deleted, keep)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
