package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"ekf-go/fusion"
)

// StateSource supplies the most recent fused estimate.
type StateSource interface {
	Latest() (fusion.Estimate, bool)
}

type Server struct {
	Hub *Hub

	src     StateSource
	distDir string
}

// NewServer serves estimates from src. distDir, when set, is served as a
// static frontend at "/".
func NewServer(src StateSource, distDir string) *Server {
	return &Server{
		Hub:     NewHub(),
		src:     src,
		distDir: distDir,
	}
}

// Handler returns the HTTP routes. The hub must be running for /ws to
// accept clients.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(s.Hub, w, r)
	})
	mux.HandleFunc("/api/state", s.handleState)

	if s.distDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.distDir)))
	}
	return mux
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	est, ok := s.src.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(est); err != nil {
		log.WithError(err).Warn("encode state")
	}
}

// Start runs the hub and the HTTP server on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.Hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
