// Package api exposes the engine over HTTP. Every response is wrapped in
// a {code, msg, data} envelope; business refusals come back as code 500
// inside an HTTP 200, schema violations as HTTP 400 with field details.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crestline/taskflow/plan"
	"github.com/crestline/taskflow/query"
)

// Flows is the write surface, satisfied by *workflow.Service.
type Flows interface {
	SaveProject(ctx context.Context, p *plan.Payload, user string, generate bool) (*plan.SaveResult, error)
	Generate(ctx context.Context, projectID int64) error
	Submit(ctx context.Context, taskID int64, caller string, text *string, images []string) (string, error)
	Approve(ctx context.Context, applyID, caller string, comment *string, images []string) (bool, error)
	Reject(ctx context.Context, applyID, caller, comment string, images []string) error
	Resubmit(ctx context.Context, taskID int64, caller string) error
}

// Queries is the read surface, satisfied by *query.Service.
type Queries interface {
	ProjectSummaries(ctx context.Context) ([]query.ProjectSummary, error)
	Project(ctx context.Context, projectID int64) (*query.ProjectView, error)
	MyTasks(ctx context.Context, jobNumber string, f query.TaskFilter) (*query.Page, error)
	MyTaskCategories(ctx context.Context, jobNumber string) (*query.Categories, error)
	HistoryTasks(ctx context.Context, jobNumber string, f query.TaskFilter) (*query.Page, error)
	TeamTasks(ctx context.Context, jobNumber string, f query.TaskFilter) (*query.Page, error)
	HistoryCategories(ctx context.Context, jobNumber string) (*query.Categories, error)
	TaskDetail(ctx context.Context, taskID int64) (*query.TaskDetail, error)
	WorkbenchStats(ctx context.Context, jobNumber string) (*query.WorkbenchStats, error)
}

// Server holds the handlers over the write and read services.
type Server struct {
	flows    Flows
	queries  Queries
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewServer creates the HTTP surface. gatherer may be nil to disable the
// metrics endpoint.
func NewServer(flows Flows, queries Queries, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{flows: flows, queries: queries, gatherer: gatherer, logger: logger}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/task", func(r chi.Router) {
		r.Post("/save", s.handleSave(false))
		r.Post("/save-and-generate", s.handleSave(true))
		r.Get("/project/list", s.handleProjectList)
		r.Get("/project/{projectId}", s.handleProject)
	})

	r.Route("/todo", func(r chi.Router) {
		r.Post("/generate/{projectId}", s.handleGenerate)
		r.Post("/submit/{taskId}", s.handleSubmit)
		r.Post("/approve/{applyId}", s.handleApprove)
		r.Post("/reject/{applyId}", s.handleReject)
		r.Post("/resubmit/{taskId}", s.handleResubmit)
		r.Get("/my/tasks/list", s.handleMyTasks)
		r.Get("/my/tasks/categories", s.handleMyTaskCategories)
		r.Get("/history/tasks/list", s.handleHistoryTasks)
		r.Get("/team/tasks/list", s.handleTeamTasks)
		r.Get("/history/tasks/categories", s.handleHistoryCategories)
		r.Get("/task/{taskId}/detail", s.handleTaskDetail)
		r.Get("/workbench/stats", s.handleWorkbenchStats)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// requestLogger logs one line per request with status and latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
