package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mblakley/soccer-cam/internal/api"
	"github.com/mblakley/soccer-cam/internal/config"
	"github.com/mblakley/soccer-cam/internal/logging"
)

const defaultHistoryLimit = 100

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(cfg *config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(s.logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics.Enabled && s.daemon.metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			s.daemon.metrics.Handler(s.daemon.workflow.RefreshMetrics).ServeHTTP(w, r)
		})
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(cfg.Paths.APIToken))
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleAllHistory)
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleGroups)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGroup)
				r.Get("/history", s.handleGroupHistory)
				r.Post("/reset", s.handleReset)
			})
		})
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.APIStatus(r.Context()))
}

func (s *apiServer) handleGroups(w http.ResponseWriter, r *http.Request) {
	stages, err := api.ParseStages(r.URL.Query()["stage"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	groups, err := s.daemon.Groups(r.Context(), stages)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if groups == nil {
		groups = []api.Group{}
	}
	s.writeJSON(w, http.StatusOK, api.GroupListResponse{Groups: groups})
}

func (s *apiServer) handleGroup(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.Group(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeGroupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleReset(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeGroupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleGroupHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.daemon.Group(r.Context(), id); err != nil {
		s.writeGroupError(w, err)
		return
	}
	s.writeHistory(w, r, id)
}

func (s *apiServer) handleAllHistory(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, "")
}

func (s *apiServer) writeHistory(w http.ResponseWriter, r *http.Request, id string) {
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	resp, err := s.daemon.History(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Entries == nil {
		resp.Entries = []api.HistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) writeGroupError(w http.ResponseWriter, err error) {
	if errors.Is(err, api.ErrGroupNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("api request",
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", rec.status),
				logging.Int64("duration_ms", time.Since(started).Milliseconds()),
				logging.Int("size", rec.size),
			)
		})
	}
}
