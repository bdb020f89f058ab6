package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	liftmcp "github.com/claude/liftlog/internal/mcp"
	"github.com/claude/liftlog/internal/metrics"
	"github.com/claude/liftlog/internal/session"
	"github.com/claude/liftlog/internal/storage"
	"github.com/claude/liftlog/internal/suggest"
	"github.com/claude/liftlog/internal/workout"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PresetStore lists and loads a user's presets.
type PresetStore interface {
	GetPreset(ctx context.Context, userID int, id uuid.UUID) (*workout.Preset, error)
	ListPresets(ctx context.Context, userID int) ([]*workout.Preset, error)
}

// TrainingStore reads aggregates from the set log.
type TrainingStore interface {
	GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]storage.StrengthVolumeSummary, error)
	GetExerciseProgression(ctx context.Context, start, end time.Time, userID int, exerciseID string) ([]storage.ExerciseProgression, error)
}

// Deps are the components behind the HTTP surface. Presets, Training and
// Users may be nil when running without a database.
type Deps struct {
	Sessions *session.Service
	Presets  PresetStore
	Training TrainingStore
	Users    UserResolver
	Gate     *suggest.Gate
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	sessions *session.Service
	presets  PresetStore
	training TrainingStore
	users    UserResolver
	gate     *suggest.Gate
	whois    WhoIser
	metrics  *metrics.Metrics
	log      *slog.Logger
	router   chi.Router
}

var (
	_ PresetStore   = (*storage.DB)(nil)
	_ TrainingStore = (*storage.DB)(nil)
	_ UserResolver  = (*storage.DB)(nil)
)

// New creates a new Server with all routes configured.
func New(deps Deps, log *slog.Logger) *Server {
	s := &Server{
		sessions: deps.Sessions,
		presets:  deps.Presets,
		training: deps.Training,
		users:    deps.Users,
		gate:     deps.Gate,
		log:      log,
		router:   chi.NewRouter(),
	}
	if s.gate == nil {
		s.gate = suggest.NewGate(suggest.DefaultMinConfidence, log)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(s.requestMetrics)
	s.router.Use(CORS)

	// Session API (identity from tailnet, login header, or dev user)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identify)

		r.Get("/me", s.handleMe)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleListSessions)
			r.Get("/active", s.handleActiveSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Patch("/sets/{setID}", s.handleUpdateSet)
				r.Post("/exercises", s.handleAddExercise)
				r.Post("/suggestions", s.handleApplySuggestion)
				r.Post("/finish", s.handleFinishSession)
				r.Post("/resume", s.handleResumeSession)
			})
		})

		r.Get("/presets", s.handleListPresets)
		r.Get("/presets/{id}", s.handleGetPreset)

		r.Get("/training/summary", s.handleTrainingSummary)
		r.Get("/training/exercises/{exerciseID}", s.handleExerciseProgression)
	})
}

// SetTailscale enables tailnet identity: each request is attributed to the
// tailnet user that sent it.
func (s *Server) SetTailscale(w WhoIser) {
	s.whois = w
}

// SetMetrics enables request counters and mounts /metrics for g.
func (s *Server) SetMetrics(m *metrics.Metrics, g prometheus.Gatherer) {
	s.metrics = m
	s.router.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// SetMCP mounts the MCP streamable HTTP endpoint at /mcp. Requests carry the
// caller's identity into tool handlers; a non-empty apiKey is also required.
func (s *Server) SetMCP(m *mcpserver.MCPServer, apiKey string) {
	h := mcpserver.NewStreamableHTTPServer(m,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return liftmcp.WithUserID(ctx, userIDFromContext(r))
		}),
	)

	r := s.router.With(s.identify)
	if apiKey != "" {
		r = r.With(APIKeyAuth(apiKey))
	}
	r.Handle("/mcp", h)
}
