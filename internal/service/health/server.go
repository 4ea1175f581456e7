package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/rpc"
	"github.com/vietddude/regionrouter/internal/infra/storage"
)

const maxInvokeBody = 4 << 20

// Router runs logical inference requests.
type Router interface {
	Call(ctx context.Context, payload any) (*domain.Outcome, error)
	Prompt(ctx context.Context, prompt, system string) (*domain.Outcome, error)
}

// EndpointAdmin clears cool-downs on operator request.
type EndpointAdmin interface {
	ResetCooldowns(ctx context.Context) (int, error)
}

// InvokeRequest is the body of POST /v1/invoke. Payload, when set, is
// forwarded verbatim; otherwise Prompt is shaped for the configured API.
type InvokeRequest struct {
	Prompt  string          `json:"prompt,omitempty"`
	System  string          `json:"system,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InvokeResponse is returned by POST /v1/invoke.
type InvokeResponse struct {
	RequestID     string                 `json:"request_id,omitempty"`
	Kind          domain.OutcomeKind     `json:"kind,omitempty"`
	Region        string                 `json:"region,omitempty"`
	FailedRegions []string               `json:"failed_regions"`
	Attempts      []domain.AttemptRecord `json:"attempts,omitempty"`
	Content       string                 `json:"content,omitempty"`
	Response      any                    `json:"response,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// Server provides HTTP endpoints for health monitoring and invocation.
type Server struct {
	monitor *Monitor
	router  Router
	journal storage.JournalRepository
	admin   EndpointAdmin
	logger  *slog.Logger
	mux     *http.ServeMux
	server  *http.Server
}

// NewServer creates a new server. router and journal may be nil, which
// disables the corresponding routes.
func NewServer(monitor *Monitor, router Router, journal storage.JournalRepository, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		router:  router,
		journal: journal,
		logger:  logger,
		mux:     mux,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	if router != nil {
		mux.HandleFunc("POST /v1/invoke", s.handleInvoke)
	}
	if journal != nil {
		mux.HandleFunc("GET /v1/outcomes", s.handleRecent)
		mux.HandleFunc("GET /v1/outcomes/{id}", s.handleOutcome)
	}

	return s
}

// SetAdmin enables POST /v1/endpoints/reset.
func (s *Server) SetAdmin(admin EndpointAdmin) {
	s.admin = admin
	s.mux.HandleFunc("POST /v1/endpoints/reset", s.handleReset)
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInvokeBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, InvokeResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if len(req.Payload) == 0 && req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, InvokeResponse{Error: "prompt or payload is required"})
		return
	}

	var (
		out *domain.Outcome
		err error
	)
	if len(req.Payload) > 0 {
		out, err = s.router.Call(r.Context(), req.Payload)
	} else {
		out, err = s.router.Prompt(r.Context(), req.Prompt, req.System)
	}

	resp := InvokeResponse{FailedRegions: []string{}}
	if out != nil {
		resp.RequestID = out.RequestID
		resp.Kind = out.Kind
		resp.Region = out.Region
		resp.FailedRegions = append(resp.FailedRegions, out.FailedRegions...)
		for _, a := range out.Attempts {
			resp.Attempts = append(resp.Attempts, a.Record())
		}
		resp.Response = out.Response
		resp.Content = rpc.ContentOf(out)
	}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Warn("Invoke failed", "request_id", resp.RequestID, "failed_regions", resp.FailedRegions, "error", err)
	}

	writeJSON(w, invokeStatus(err), resp)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	outcomes, err := s.journal.RecentOutcomes(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	summary, err := s.journal.GetOutcome(r.Context(), id)
	if errors.Is(err, storage.ErrOutcomeNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	attempts, err := s.journal.GetAttempts(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		*domain.OutcomeSummary
		Attempts []domain.AttemptRecord `json:"attempts"`
	}{summary, attempts})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	n, err := s.admin.ResetCooldowns(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"reset": n, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset": n})
}

func invokeStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, rpc.ErrNonRetryable):
		return http.StatusBadGateway
	case errors.Is(err, rpc.ErrExhausted), errors.Is(err, rpc.ErrNoEndpoints):
		return http.StatusServiceUnavailable
	case errors.Is(err, rpc.ErrCanceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
