// Package health exposes liveness and status endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Status is the body of GET /status.
type Status struct {
	MainAddress     string `json:"main_address"`
	MainBalance     string `json:"main_balance"`
	ActiveWallets   int    `json:"active_wallets"`
	ArchivedWallets int    `json:"archived_wallets"`
	BatchRunning    bool   `json:"batch_running"`
}

// StatusFunc gathers the current status.
type StatusFunc func(ctx context.Context) (*Status, error)

// Server serves /health and /status
type Server struct {
	status StatusFunc
	log    *slog.Logger

	server *http.Server
}

// NewServer creates a new health server
func NewServer(status StatusFunc, log *slog.Logger) *Server {
	return &Server{
		status: status,
		log:    log,
	}
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start serves until ctx is done
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting health server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	st, err := s.status(r.Context())
	if err != nil {
		s.log.Warn("status", "error", err)
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.log.Warn("encode status", "error", err)
	}
}
