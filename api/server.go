// Package api serves the Taskhub REST API.
//
// Every response uses the same envelope: success, message, timestamp and
// optionally data, pagination and errors.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/c360studio/taskhub/assistant"
	"github.com/c360studio/taskhub/auth"
	"github.com/c360studio/taskhub/events"
	"github.com/c360studio/taskhub/storage"
	"github.com/c360studio/taskhub/upload"
	"github.com/c360studio/taskhub/workflow"
)

// Deps are the collaborators a Server needs. Events and Registry are
// optional.
type Deps struct {
	Store     *storage.Store
	Issuer    *auth.Issuer
	Hasher    auth.Hasher
	Assistant *assistant.Service
	Uploads   *upload.Store
	Events    events.Publisher
	Logger    *slog.Logger

	// Registry receives the HTTP metrics and backs GET /metrics.
	Registry *prometheus.Registry
}

// Options tune request handling.
type Options struct {
	// Environment is reported by GET /health.
	Environment string

	// ClientOrigins are the CORS origins allowed to call the API.
	ClientOrigins []string

	// RateLimitMax requests per RateLimitWindow are allowed per client IP
	// under /api. Zero disables rate limiting.
	RateLimitMax    int
	RateLimitWindow time.Duration

	// EnforceTransitions checks the current state's allowedTransitions on
	// task and project status changes.
	EnforceTransitions bool
}

// Server handles HTTP requests.
type Server struct {
	store     *storage.Store
	issuer    *auth.Issuer
	hasher    auth.Hasher
	assistant *assistant.Service
	uploads   *upload.Store
	events    events.Publisher
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics
	authMW    *auth.Middleware
	opts      Options
	now       func() time.Time
}

// New creates a Server.
func New(deps Deps, opts Options) *Server {
	s := &Server{
		store:     deps.Store,
		issuer:    deps.Issuer,
		hasher:    deps.Hasher,
		assistant: deps.Assistant,
		uploads:   deps.Uploads,
		events:    deps.Events,
		logger:    deps.Logger,
		registry:  deps.Registry,
		opts:      opts,
		now:       time.Now,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.assistant == nil {
		s.assistant = assistant.New(nil, assistant.WithLogger(s.logger))
	}
	s.metrics = newMetrics(s.registry)
	s.authMW = &auth.Middleware{Issuer: deps.Issuer, Users: deps.Store, Roles: deps.Store, Deny: deny}
	return s
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(s.recoverer)
	r.Use(securityHeaders)
	r.Use(corsHandler(s.opts.ClientOrigins))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	if s.uploads != nil {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploads.Dir()))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(s.opts.RateLimitMax, s.opts.RateLimitWindow))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Group(func(r chi.Router) {
				r.Use(s.authMW.Authenticate)
				r.Post("/refresh", s.handleRefresh)
				r.Get("/me", s.handleMe)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(s.authMW.Authenticate)
			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleUpdateProfile)
			r.Group(func(r chi.Router) {
				r.Use(s.authMW.RequireRole(workflow.RoleAdmin))
				r.Get("/", s.handleListUsers)
				r.Delete("/{id}", s.handleDeleteUser)
				r.Put("/{id}/role", s.handleChangeRole)
			})
		})

		r.Route("/roles", func(r chi.Router) {
			r.Use(s.authMW.Authenticate)
			r.Get("/", s.handleListRoles)
			r.Group(func(r chi.Router) {
				r.Use(s.authMW.RequireRole(workflow.RoleAdmin))
				r.Post("/", s.handleCreateRole)
				r.Put("/{id}", s.handleUpdateRole)
				r.Delete("/{id}", s.handleDeleteRole)
			})
		})

		r.Route("/states", func(r chi.Router) {
			r.Get("/projects", s.handleListStates(workflow.StateTypeProject))
			r.Get("/tasks", s.handleListStates(workflow.StateTypeTask))
			r.Group(func(r chi.Router) {
				r.Use(s.authMW.Authenticate, s.authMW.RequireRole(workflow.RoleAdmin))
				r.Post("/", s.handleCreateState)
				r.Put("/{id}", s.handleUpdateState)
				r.Delete("/{id}", s.handleDeleteState)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Get("/{id}", s.handleGetCategory)
			r.Group(func(r chi.Router) {
				r.Use(s.authMW.Authenticate)
				r.Post("/", s.handleCreateCategory)
				r.Put("/{id}", s.handleUpdateCategory)
				r.Delete("/{id}", s.handleDeleteCategory)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMW.Authenticate)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.handleListProjects)
				r.Post("/", s.handleCreateProject)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetProject)
					r.Put("/", s.handleUpdateProject)
					r.Delete("/", s.handleDeleteProject)
					r.Post("/members", s.handleAddMember)
					r.Delete("/members/{userId}", s.handleRemoveMember)
					r.Put("/members/{userId}/permissions", s.handleUpdateMemberPermissions)
					r.Put("/status", s.handleChangeProjectStatus)
					r.Put("/settings", s.handleUpdateSettings)
					r.Get("/tasks", s.handleListProjectTasks)
					r.Post("/tasks", s.handleCreateTask)
					r.Get("/comments", s.handleListProjectComments)
					r.Post("/comments", s.handleCreateComment)
				})
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/my-tasks", s.handleMyTasks)
				r.Get("/{id}", s.handleGetTask)
				r.Put("/{id}", s.handleUpdateTask)
				r.Delete("/{id}", s.handleDeleteTask)
				r.Put("/{id}/status", s.handleChangeTaskStatus)
				r.Put("/{id}/assign", s.handleAssignTask)
				r.Get("/{id}/comments", s.handleListTaskComments)
			})

			r.Route("/comments", func(r chi.Router) {
				r.Put("/{id}", s.handleUpdateComment)
				r.Delete("/{id}", s.handleDeleteComment)
				r.Post("/{id}/reactions", s.handleReactToComment)
			})

			r.Route("/ai", func(r chi.Router) {
				r.Post("/generate-tasks", s.handleGenerateTasks)
				r.Post("/analyze-project", s.handleAnalyzeProject)
				r.Post("/estimate-time", s.handleEstimateTime)
				r.Post("/generate-summary", s.handleGenerateSummary)
				r.Post("/suggest-improvements", s.handleSuggestImprovements)
			})

			r.Route("/upload", func(r chi.Router) {
				r.Post("/avatar", s.handleUpload(upload.Avatar))
				r.Post("/document", s.handleUpload(upload.Document))
				r.Delete("/{filename}", s.handleDeleteUpload)
			})
		})
	})

	r.NotFound(s.handleNotFound)

	return otelhttp.NewHandler(r, "taskhub",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/health" }))
}

// ----------------------------------------------------------------------------
// GET /health, 404
// ----------------------------------------------------------------------------

type healthResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
	Database    string    `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Success:     true,
		Message:     "Server running",
		Timestamp:   s.now().UTC(),
		Environment: s.opts.Environment,
		Database:    "ok",
	}
	status := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("Health check: database unreachable", "error", err)
		resp.Success = false
		resp.Database = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type notFoundResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, notFoundResponse{Message: msgEndpointNotFound, Path: r.URL.Path})
}

// principal returns the authenticated user. Handlers behind Authenticate
// always have one.
func principal(r *http.Request) *auth.Principal {
	return auth.FromContext(r.Context())
}
