// Package api serves projections, charts and history over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/nwcai/pm-rul/internal/chart"
	"github.com/nwcai/pm-rul/internal/machine"
	"github.com/nwcai/pm-rul/internal/observability"
	"github.com/nwcai/pm-rul/internal/policy"
	"github.com/nwcai/pm-rul/internal/projector"
	"github.com/nwcai/pm-rul/internal/rul"
	"github.com/nwcai/pm-rul/internal/scheduler"
	"github.com/nwcai/pm-rul/internal/storage"
)

// maxRequestBody bounds POST payloads
const maxRequestBody = 1 << 20

// Server is the HTTP API server
type Server struct {
	scheduler *scheduler.Scheduler
	metrics   *observability.Metrics
	router    *mux.Router
	server    *http.Server
}

// NewServer creates a new API server. metrics may be nil. An empty origins
// list disables CORS headers.
func NewServer(sched *scheduler.Scheduler, metrics *observability.Metrics, addr string, origins []string) *Server {
	s := &Server{
		scheduler: sched,
		metrics:   metrics,
		router:    mux.NewRouter(),
	}

	// Health endpoints
	s.route("/healthz", s.handleHealth, http.MethodGet)
	s.route("/readyz", s.handleReady, http.MethodGet)

	// Machine endpoints
	s.route("/v1/machines", s.handleMachineList, http.MethodGet)
	s.route("/v1/machines/{id}/projection", s.handleProjection, http.MethodGet)
	s.route("/v1/machines/{id}/chart", s.handleChart, http.MethodGet)

	// Ad hoc projection endpoint
	s.route("/v1/projections", s.handleAdHoc, http.MethodPost)

	// History endpoint
	s.route("/v1/history", s.handleHistory, http.MethodGet)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var handler http.Handler = s.router
	if len(origins) > 0 {
		handler = handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(handler)
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) route(path string, h http.HandlerFunc, methods ...string) {
	s.router.Handle(path, s.metrics.WrapHandler(path, h)).Methods(methods...)
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("api: listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("api: shutting down")
	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady handles GET /readyz
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	cacheSize := s.scheduler.GetCache().Size()
	reasons := []string{}

	machines, err := s.scheduler.Projector().Source().ListMachines(r.Context())
	if err != nil {
		reasons = append(reasons, fmt.Sprintf("data source unavailable: %v", err))
	} else if len(machines) == 0 {
		reasons = append(reasons, "no machines loaded")
	}

	if cacheSize == 0 {
		reasons = append(reasons, "no projections cached yet")
	}

	ready := err == nil && len(machines) > 0
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:          ready,
		MachinesLoaded: len(machines),
		ReportsCached:  cacheSize,
		Reasons:        reasons,
	})
}

// handleMachineList handles GET /v1/machines
func (s *Server) handleMachineList(w http.ResponseWriter, r *http.Request) {
	machines, err := s.scheduler.Projector().Source().ListMachines(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("failed to list machines: %v", err))
		return
	}

	states := s.scheduler.GetCache().GetAll()
	summaries := make([]MachineSummary, 0, len(machines))
	for _, m := range machines {
		summary := MachineSummary{
			ID:         m.ID,
			Name:       m.Name,
			Type:       m.Type,
			LifeTime:   m.LifeTime,
			CreateDate: m.CreateDate,
		}
		if state, ok := states[m.ID]; ok && state.Report != nil {
			health := state.Report.Assessment.Health
			updated := state.UpdatedAt
			summary.Status = string(state.Report.Status())
			summary.Health = &health
			summary.UpdatedAt = &updated
		}
		summaries = append(summaries, summary)
	}

	respondJSON(w, http.StatusOK, MachineListResponse{Machines: summaries})
}

// handleProjection handles GET /v1/machines/{id}/projection
func (s *Server) handleProjection(w http.ResponseWriter, r *http.Request) {
	report, ok := s.report(w, r)
	if !ok {
		return
	}

	ttl := 0
	if state, found := s.scheduler.GetCache().Get(report.Machine.ID); found {
		ttl = int(state.TTL.Seconds())
	}

	respondJSON(w, http.StatusOK, ProjectionResponse{Report: report, TTL: ttl})
}

// handleChart handles GET /v1/machines/{id}/chart
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	report, ok := s.report(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, chartFor(report))
}

// report resolves the machine report for projection and chart requests
func (s *Server) report(w http.ResponseWriter, r *http.Request) (*projector.Report, bool) {
	id := mux.Vars(r)["id"]
	if id == "" {
		respondError(w, http.StatusBadRequest, "machine ID required")
		return nil, false
	}

	fresh, _ := strconv.ParseBool(r.URL.Query().Get("fresh"))

	report, err := s.scheduler.Report(r.Context(), id, fresh)
	if err != nil {
		switch {
		case errors.Is(err, machine.ErrNotFound):
			respondError(w, http.StatusNotFound, fmt.Sprintf("machine not found: %s", id))
		case isModelError(err):
			respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("machine %s cannot be projected: %v", id, err))
		default:
			respondError(w, http.StatusBadGateway, fmt.Sprintf("projection failed: %v", err))
		}
		return nil, false
	}

	return report, true
}

// handleAdHoc handles POST /v1/projections
func (s *Server) handleAdHoc(w http.ResponseWriter, r *http.Request) {
	var req projector.AdHocRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	report, err := s.scheduler.Projector().ProjectAdHoc(req, time.Now())
	if err != nil {
		if isModelError(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("projection failed: %v", err))
		return
	}

	respondJSON(w, http.StatusOK, AdHocResponse{Report: report, Chart: chartFor(report)})
}

// handleHistory handles GET /v1/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.scheduler.GetHistoryStorage()
	if history == nil {
		respondError(w, http.StatusServiceUnavailable, "history storage not configured")
		return
	}

	query := r.URL.Query()
	filter := storage.HistoryFilter{
		MachineID: query.Get("machineID"),
	}

	if statusStr := query.Get("status"); statusStr != "" {
		status, err := policy.ParseStatus(statusStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = string(status)
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	if startTimeStr := query.Get("startTime"); startTimeStr != "" {
		if startTime, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			filter.StartTime = &startTime
		}
	}

	if endTimeStr := query.Get("endTime"); endTimeStr != "" {
		if endTime, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			filter.EndTime = &endTime
		}
	}

	records, err := history.QueryHistory(filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to query history: %v", err))
		return
	}
	if records == nil {
		records = []storage.HistoryRecord{}
	}

	respondJSON(w, http.StatusOK, HistoryResponse{Records: records, Total: len(records)})
}

func chartFor(report *projector.Report) chart.Chart {
	return chart.Build(chart.Input{
		Projection: report.Projection,
		EventCount: report.EventCount,
		Current:    report.Current,
		Thresholds: report.Thresholds,
	})
}

func isModelError(err error) bool {
	return errors.Is(err, rul.ErrInvalidLifetime) ||
		errors.Is(err, rul.ErrInvalidStep) ||
		errors.Is(err, rul.ErrTooManySamples) ||
		errors.Is(err, rul.ErrMalformedEvent)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("api: request",
			"method", r.Method, "path", r.URL.Path, "status", sw.status, "duration", time.Since(start))
	})
}
