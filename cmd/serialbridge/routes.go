package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/manslikestiffler/smart-granary/pkg/hub"
)

// setupRoutes configures the bridge routes
func setupRoutes(r *mux.Router, h *hub.Hub, bridge *Bridge) {
	r.HandleFunc("/health", healthHandler(h, bridge)).Methods("GET")
	r.HandleFunc("/ws", h.ServeWS)
}

// healthHandler returns bridge health status
func healthHandler(h *hub.Hub, bridge *Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lines, forwarded := bridge.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"service":   "serialbridge",
			"clients":   h.ClientCount(),
			"lines":     lines,
			"forwarded": forwarded,
		})
	}
}
