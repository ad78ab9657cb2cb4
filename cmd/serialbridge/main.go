package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/manslikestiffler/smart-granary/pkg/api"
	"github.com/manslikestiffler/smart-granary/pkg/config"
	"github.com/manslikestiffler/smart-granary/pkg/hub"
)

func main() {
	cfg, err := config.Load(getEnv("SMARTGRAIN_CONFIG", "."))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	input, err := openInput(cfg.Serial.Device)
	if err != nil {
		log.Fatalf("Failed to open serial device: %v", err)
	}
	defer input.Close()

	h := hub.NewHub()
	go h.Run()
	defer h.Close()

	var forwarder Forwarder
	if cfg.Serial.Ingest {
		forwarder = api.NewClient(cfg.Source.BaseURL,
			api.WithAPIKey(cfg.Server.APIKey),
			api.WithRetries(3, 500*time.Millisecond),
		)
		log.Printf("✓ Forwarding readings to %s", cfg.Source.BaseURL)
	}
	bridge := NewBridge(h, forwarder)

	// Setup router
	r := mux.NewRouter()
	setupRoutes(r, h, bridge)

	addr := ":" + cfg.Serial.Port
	server := &http.Server{
		Handler:     r,
		Addr:        addr,
		ReadTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := bridge.Run(ctx, input); err != nil {
			log.Printf("❌ Serial bridge stopped: %v", err)
		}
		lines, forwarded := bridge.Stats()
		log.Printf("Serial input closed after %d lines (%d readings forwarded)", lines, forwarded)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting serial bridge on %s...", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Failed to start server:", err)
	}
}

// openInput opens the controller device, or stdin when none is configured
func openInput(device string) (io.ReadCloser, error) {
	if device == "" || device == "-" {
		log.Println("⚠ No serial device configured, reading from stdin")
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(device)
}
