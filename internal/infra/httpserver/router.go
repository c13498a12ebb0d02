package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appanalysis "github.com/bryanwahyu/maestro-analyzer/internal/application/analysis"
	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/layers"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/presets"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/runerrors"
	"github.com/bryanwahyu/maestro-analyzer/internal/middleware"
)

const (
	maxBodyBytes  = 64 << 10
	maxImageBytes = 10 << 20
)

// Options carries the optional pieces of the HTTP surface.
type Options struct {
	APIKeys        map[string]string // tenant -> key, empty disables auth
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
	Metrics        *middleware.Metrics
	Health         map[string]middleware.HealthChecker
	Logger         *slog.Logger
}

type Router struct {
	svc     *appanalysis.Service
	logger  *slog.Logger
	origins []string
}

func NewRouter(svc *appanalysis.Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Router{svc: svc, logger: opts.Logger, origins: opts.AllowedOrigins}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID, chimw.RealIP)
	mux.Use(middleware.Recoverer(opts.Logger))
	mux.Use(middleware.Logging(opts.Logger))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	if len(opts.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			ExposedHeaders: []string{"Content-Disposition", "Retry-After"},
			MaxAge:         300,
		}))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/health/live", middleware.LivenessHandler)
	mux.Get("/health/ready", middleware.ReadinessHandler)
	if opts.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	mux.Get("/v1/layers", r.wrap(r.handleLayers))
	mux.Get("/v1/presets", r.wrap(r.handlePresets))

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(middleware.APIKeyAuth(opts.APIKeys), middleware.RequireValidTenant)
		if opts.RateLimiter != nil {
			rt.Use(middleware.RateLimitMiddleware(opts.RateLimiter))
		}

		rt.Post("/runs", r.wrap(r.handleStart))
		rt.Get("/runs", r.wrap(r.handleList))
		rt.Route("/runs/{id}", func(rt chi.Router) {
			rt.Get("/", r.wrap(r.handleGet))
			rt.Post("/stop", r.wrap(r.handleStop))
			rt.Get("/events", r.wrap(r.handleEvents))
			rt.Post("/diagram", r.wrap(r.handleDiagram))
			rt.Put("/diagram/image", r.wrap(r.handleDiagramImage))
			rt.Get("/report", r.wrap(r.handleReport))
			rt.Post("/report", r.wrap(r.handlePublishReport))
			rt.Get("/errors", r.wrap(r.handleErrors))
		})
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status, fe := classify(err)
			if status >= 500 {
				r.logger.Error("request failed", "path", req.URL.Path, "status", status, "err", err)
			}
			middleware.WriteError(w, status, fe)
		}
	}
}

// classify maps service errors to a status and a classified body.
func classify(err error) (int, *failure.Error) {
	switch {
	case errors.Is(err, domain.ErrRunActive):
		return http.StatusConflict, failure.New(failure.Spec{
			Code:            failure.CodeValidationError,
			Severity:        failure.SeverityLow,
			Message:         err.Error(),
			UserMessage:     "An analysis is already running. Stop it or wait until it finishes.",
			RecoveryActions: []failure.RecoveryAction{{Type: failure.ActionRetry, Label: "Try Again"}},
		})
	case errors.Is(err, domain.ErrRunNotFound):
		return http.StatusNotFound, failure.Validation(err.Error())
	case errors.Is(err, domain.ErrNoRepository), errors.Is(err, domain.ErrNoReportStore):
		return http.StatusNotImplemented, failure.Validation(err.Error())
	case errors.Is(err, appanalysis.ErrClosed):
		return http.StatusServiceUnavailable, failure.New(failure.Spec{
			Code:            failure.CodeUnknownError,
			Severity:        failure.SeverityMedium,
			Message:         err.Error(),
			UserMessage:     "The server is shutting down. Try again in a moment.",
			RecoveryActions: []failure.RecoveryAction{{Type: failure.ActionRetry, Label: "Try Again"}},
		})
	}

	fe, ok := failure.As(err)
	if !ok {
		return http.StatusInternalServerError, failure.Unhandled(err.Error())
	}
	switch fe.Code {
	case failure.CodeValidationError, failure.CodeAnalysisInvalidInput:
		return http.StatusBadRequest, fe
	case failure.CodeAIRateLimitExceeded:
		return http.StatusTooManyRequests, fe
	case failure.CodeAIServiceUnavailable, failure.CodeNetworkError:
		return http.StatusBadGateway, fe
	case failure.CodeAITimeout, failure.CodeTimeoutError:
		return http.StatusGatewayTimeout, fe
	default:
		return http.StatusInternalServerError, fe
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func runID(req *http.Request) (domain.RunID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRunID(id); err != nil {
		return "", failure.Validation(err.Error())
	}
	return domain.RunID(id), nil
}

func queryInt(req *http.Request, key string) int {
	n, _ := strconv.Atoi(req.URL.Query().Get(key))
	return n
}

// GET /v1/layers
func (r *Router) handleLayers(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, layers.All())
}

// GET /v1/presets
func (r *Router) handlePresets(w http.ResponseWriter, req *http.Request) error {
	list, err := presets.All()
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/{tenant}/runs
// Body: {"architecture_description": "...", "preset": "...", "with_diagram": false}
func (r *Router) handleStart(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		ArchitectureDescription string `json:"architecture_description"`
		Preset                  string `json:"preset"`
		WithDiagram             bool   `json:"with_diagram"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(&body); err != nil {
		return failure.InvalidInput("request body", err)
	}

	run, err := r.svc.Start(appanalysis.StartRunCommand{
		TenantID:     chi.URLParam(req, "tenant"),
		Architecture: middleware.SanitizeString(body.ArchitectureDescription),
		Preset:       body.Preset,
		WithDiagram:  body.WithDiagram,
	})
	if err != nil {
		return err
	}
	w.Header().Set("Location", fmt.Sprintf("%s/%s", req.URL.Path, run.ID))
	return writeJSON(w, http.StatusAccepted, run)
}

// GET /v1/{tenant}/runs?page=&page_size=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	page := middleware.ValidatePage(queryInt(req, "page"))
	size := middleware.ValidateLimit(queryInt(req, "page_size"))

	list, err := r.svc.List(req.Context(), chi.URLParam(req, "tenant"), page, size)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{tenant}/runs/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := runID(req)
	if err != nil {
		return err
	}
	run, err := r.svc.Get(req.Context(), chi.URLParam(req, "tenant"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, run)
}

// POST /v1/{tenant}/runs/{id}/stop
func (r *Router) handleStop(w http.ResponseWriter, req *http.Request) error {
	id, err := runID(req)
	if err != nil {
		return err
	}
	run, err := r.svc.Stop(chi.URLParam(req, "tenant"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, run)
}

// POST /v1/{tenant}/runs/{id}/diagram
func (r *Router) handleDiagram(w http.ResponseWriter, req *http.Request) error {
	id, err := runID(req)
	if err != nil {
		return err
	}
	d, err := r.svc.GenerateDiagram(req.Context(), chi.URLParam(req, "tenant"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, d)
}

// PUT /v1/{tenant}/runs/{id}/diagram/image
// Body: raw PNG or JPEG bytes.
func (r *Router) handleDiagramImage(w http.ResponseWriter, req *http.Request) error {
	id, err := runID(req)
	if err != nil {
		return err
	}
	img, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxImageBytes))
	if err != nil {
		return failure.InvalidInput("diagram image", err)
	}
	d, err := r.svc.SetDiagramImage(req.Context(), chi.URLParam(req, "tenant"), id, img)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, d)
}

// GET /v1/{tenant}/runs/{id}/report
func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) error {
	id, err := runID(req)
	if err != nil {
		return err
	}
	// render dulu ke buffer supaya error masih bisa jadi JSON
	var buf bytes.Buffer
	if err := r.svc.Report(req.Context(), chi.URLParam(req, "tenant"), id, &buf); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", appanalysis.ReportFileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, err = buf.WriteTo(w)
	return err
}

// POST /v1/{tenant}/runs/{id}/report
func (r *Router) handlePublishReport(w http.ResponseWriter, req *http.Request) error {
	id, err := runID(req)
	if err != nil {
		return err
	}
	url, err := r.svc.PublishReport(req.Context(), chi.URLParam(req, "tenant"), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, map[string]string{"report_url": url})
}

// GET /v1/{tenant}/runs/{id}/errors?limit=20
func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) error {
	id, err := runID(req)
	if err != nil {
		return err
	}
	list, err := r.svc.RunErrors(req.Context(), chi.URLParam(req, "tenant"), id, middleware.ValidateLimit(queryInt(req, "limit")))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*runerrors.RunError{}
	}
	return writeJSON(w, http.StatusOK, list)
}
