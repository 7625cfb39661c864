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
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"trashcan/internal/api"
	"trashcan/internal/config"
	"trashcan/internal/expiry"
	"trashcan/internal/journal"
	"trashcan/internal/logging"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000

	// Manual sweep rate: a short burst, then one per second.
	sweepBurst    = 3
	sweepInterval = time.Second
)

// controller is the daemon surface the control API drives.
type controller interface {
	Status(ctx context.Context) api.DaemonStatus
	Sweep(ctx context.Context) (expiry.Result, error)
	History(ctx context.Context, filter journal.Filter) ([]journal.Event, error)
	RequestShutdown()
	MetricsHandler() http.Handler
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	ctrl   controller
	sweeps *rate.Limiter

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, ctrl controller, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || ctrl == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Daemon.APIBind)
	if bind == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		ctrl:   ctrl,
		sweeps: rate.NewLimiter(rate.Every(sweepInterval), sweepBurst),
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Daemon.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(s.recovery)
	r.Use(s.requestLogging)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.ctrl.MetricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(token))
		r.Get("/status", s.handleStatus)
		r.With(s.throttle(s.sweeps)).Post("/sweep", s.handleSweep)
		r.Get("/history", s.handleHistory)
		r.Post("/stop", s.handleStop)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
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
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "status, sweep, and stop commands cannot reach the daemon"),
				logging.String(logging.FieldErrorHint, "restart the daemon"),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Status(r.Context()))
}

func (s *apiServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	result, err := s.ctrl.Sweep(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.SweepResponse{Result: api.FromSweepResult(result, nil)})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := journal.Filter{Limit: defaultHistoryLimit}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(limit, maxHistoryLimit)
	}
	for _, raw := range query["kind"] {
		kind, ok := journal.ParseKind(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event kind %q", raw))
			return
		}
		filter.Kinds = append(filter.Kinds, kind)
	}

	events, err := s.ctrl.History(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Events: api.FromEvents(events)})
}

func (s *apiServer) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.logger.Info("shutdown requested via API", logging.String(logging.FieldEventType, "daemon_stop_requested"))
	s.writeJSON(w, http.StatusAccepted, api.StopResponse{Stopping: true})
	// Let the response flush before the server starts shutting down.
	go s.ctrl.RequestShutdown()
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
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
