package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/perimeter"
)

// RunHistory returns the latest run report of each disaster.
type RunHistory interface {
	LastReports() []perimeter.RunReport
}

// Server exposes health, readiness, metrics and run status HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /runs routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runs RunHistory, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /runs", handleRuns(runs))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type runView struct {
	RunID           string    `json:"run_id"`
	DisasterID      string    `json:"disaster_id"`
	Source          string    `json:"source"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Files           int       `json:"files"`
	FailedFiles     int       `json:"failed_files"`
	Incidents       int       `json:"incidents"`
	FailedIncidents int       `json:"failed_incidents"`
	Outputs         []string  `json:"outputs"`
}

func handleRuns(runs RunHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		reports := runs.LastReports()
		views := make([]runView, len(reports))
		for i, r := range reports {
			views[i] = runView{
				RunID:           r.RunID.String(),
				DisasterID:      r.DisasterID,
				Source:          string(r.Source),
				Status:          r.Status,
				StartedAt:       r.StartedAt,
				FinishedAt:      r.FinishedAt,
				Files:           len(r.Files),
				FailedFiles:     r.FailedFiles(),
				Incidents:       len(r.Incidents),
				FailedIncidents: r.FailedIncidents(),
				Outputs:         r.Outputs,
			}
		}
		sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"runs": views})
	}
}
