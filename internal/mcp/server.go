package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/claude/liftlog/internal/session"
	"github.com/claude/liftlog/internal/storage"
	"github.com/claude/liftlog/internal/suggest"
	"github.com/claude/liftlog/internal/workout"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Sessions is the session repository as seen by MCP tools.
type Sessions interface {
	Start(ctx context.Context, userID int, presetID *uuid.UUID) (*workout.Session, error)
	Active(ctx context.Context, userID int) (*workout.Session, error)
	Get(ctx context.Context, userID int, id uuid.UUID) (*workout.Session, error)
	List(ctx context.Context, userID int, limit int) ([]*workout.Session, error)
	UpdateSet(ctx context.Context, userID int, sessionID, setID uuid.UUID, p workout.Patch) (*workout.Session, error)
	AddExercise(ctx context.Context, userID int, sessionID uuid.UUID, plans ...workout.PlannedExercise) (*workout.Session, error)
	FinishByID(ctx context.Context, userID int, id uuid.UUID) (*workout.Session, error)
	Resume(ctx context.Context, userID int, id uuid.UUID) (*workout.Session, error)
	Delete(ctx context.Context, userID int, id uuid.UUID) error
}

// Training reads aggregates from the set log. It is optional.
type Training interface {
	GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]storage.StrengthVolumeSummary, error)
	GetExerciseProgression(ctx context.Context, start, end time.Time, userID int, exerciseID string) ([]storage.ExerciseProgression, error)
}

var (
	_ Sessions = (*session.Service)(nil)
	_ Training = (*storage.DB)(nil)
)

// New creates an MCP server with all tools and resources registered.
// training may be nil, in which case the training tools are not offered.
func New(sessions Sessions, training Training, gate *suggest.Gate, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("liftlog", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("liftlog strength training log. Start, edit, finish, resume and delete workout sessions and query logged training volume. All data is scoped to the authenticated user. A user has at most one active session."),
	)

	h := &handlers{sessions: sessions, training: training, gate: gate, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolStartSession, Handler: h.startSession},
		server.ServerTool{Tool: toolGetActiveSession, Handler: h.getActiveSession},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
		server.ServerTool{Tool: toolListSessions, Handler: h.listSessions},
		server.ServerTool{Tool: toolUpdateSet, Handler: h.updateSet},
		server.ServerTool{Tool: toolAddExercise, Handler: h.addExercise},
		server.ServerTool{Tool: toolApplySuggestion, Handler: h.applySuggestion},
		server.ServerTool{Tool: toolFinishSession, Handler: h.finishSession},
		server.ServerTool{Tool: toolResumeSession, Handler: h.resumeSession},
		server.ServerTool{Tool: toolDeleteSession, Handler: h.deleteSession},
	)
	if training != nil {
		s.AddTools(
			server.ServerTool{Tool: toolGetTrainingSummary, Handler: h.getTrainingSummary},
			server.ServerTool{Tool: toolGetExerciseProgression, Handler: h.getExerciseProgression},
		)
	}

	s.AddResources(
		server.ServerResource{Resource: resActiveSession, Handler: h.activeSessionResource},
		server.ServerResource{Resource: resRecentSessions, Handler: h.recentSessionsResource},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	sessions Sessions
	training Training
	gate     *suggest.Gate
	log      *slog.Logger
}

// --- Resource definitions ---

var resActiveSession = mcp.NewResource(
	"liftlog://active_session",
	"Active Session",
	mcp.WithResourceDescription("The session currently being logged, with per-exercise progress, or null"),
	mcp.WithMIMEType("application/json"),
)

var resRecentSessions = mcp.NewResource(
	"liftlog://recent_sessions",
	"Recent Sessions",
	mcp.WithResourceDescription("The 10 most recent sessions, newest first"),
	mcp.WithMIMEType("application/json"),
)
