package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sensorpipe/internal/auth"
	"sensorpipe/internal/db"
	"sensorpipe/internal/model"
	"sensorpipe/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Ingestor interface {
	RunCycle(ctx context.Context) (service.CycleResult, error)
}

type ReadingQuerier interface {
	LatestPerSensor(ctx context.Context) ([]model.Reading, error)
	Range(ctx context.Context, q db.RangeQuery) ([]model.Reading, error)
}

type ErrorLogReader interface {
	Recent(ctx context.Context, limit int) ([]model.ErrorLogEntry, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Ingest     Ingestor
	Readings   ReadingQuerier
	Errors     ErrorLogReader
	DB         Pinger
	Sessions   *auth.Sessions
	WebhookKey string
	// SensorOrder is the default chart series order.
	SensorOrder []string
	Location    *time.Location
	Gatherer    prometheus.Gatherer
	Logger      *zap.SugaredLogger
	Now         func() time.Time
}

// Server exposes the ingestion trigger, the query API and operational endpoints.
type Server struct {
	handler http.Handler
}

func NewServer(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	h := &handler{Deps: deps}
	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer, h.logRequests)
	registerRoutes(router, h)

	return &Server{handler: router}
}

func registerRoutes(router chi.Router, h *handler) {
	router.Get("/health", h.handleHealth)
	router.Get("/ready", h.handleReady)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))

	router.Route("/api", func(r chi.Router) {
		r.Post("/webhook", h.handleWebhook)
		r.Post("/auth", h.handleLogin)
		r.Get("/verify-auth", h.handleVerifyAuth)
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.Sessions.Require(h.unauthorized))
			r.Get("/data", h.handleData)
			r.Get("/chart", h.handleChart)
			r.Get("/errors", h.handleErrors)
		})
	})
}

// Router returns the configured HTTP handler.
func (s *Server) Router() http.Handler {
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type handler struct {
	Deps
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		h.Logger.Debugw("http request",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: status})
}

func (h *handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusUnauthorized, "unauthorized")
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Warnw("failed to encode response", "error", err)
	}
}
