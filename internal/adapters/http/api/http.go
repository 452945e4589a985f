// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/okian/sentinel/internal/adapters/gamestate"
	"github.com/okian/sentinel/internal/domain/model"
	"github.com/okian/sentinel/internal/domain/session"
	"github.com/okian/sentinel/internal/domain/token"
	"github.com/okian/sentinel/internal/scheduler"
	"github.com/okian/sentinel/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Engine is what the handlers drive. Implementations serialize every call
// onto the engine's loop.
type Engine interface {
	Connect(ctx context.Context, playerID int) (model.Token, error)
	Disconnect(ctx context.Context, playerID int) (model.SessionSummary, error)
	Session(ctx context.Context, playerID int) (SessionView, error)
	ResetTrust(ctx context.Context, playerID int) error
	IssueToken(ctx context.Context, playerID int) (model.Token, error)
	TrackEvent(ctx context.Context, playerID int, tok model.Token, event, source string) (bool, error)
	Report(ctx context.Context, playerID int, tok model.Token, r ClientReport) (bool, error)
	PushState(ctx context.Context, states map[int]model.Observation) error
}

// Server wires HTTP routes for the engine.
type Server struct {
	engine     Engine
	stats      *StatsHandler
	health     *HealthHandler
	alerts     http.Handler
	serverAuth ServerAuthorizer
	validate   *validator.Validate
	log        logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAlertFeed mounts h at /v1/alerts/ws.
func WithAlertFeed(h http.Handler) Option {
	return func(s *Server) {
		s.alerts = h
	}
}

// WithStats sets the /stats provider.
func WithStats(p StatsProvider) Option {
	return func(s *Server) {
		if p != nil {
			s.stats = NewStatsHandler(p)
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		health:   NewHealthHandler(),
		stats:    NewStatsHandler(emptyStats{}),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux. Session, token and game-state
// routes belong to the game server and require its credential; events and
// reports authenticate with a per-player token instead.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.health.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.stats.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/sessions", MetricsMiddleware(s.serverOnly(s.handleConnect), "sessions_connect"))
	mux.HandleFunc("GET /v1/sessions/{id}", MetricsMiddleware(s.serverOnly(s.handleGetSession), "sessions_get"))
	mux.HandleFunc("DELETE /v1/sessions/{id}", MetricsMiddleware(s.serverOnly(s.handleDisconnect), "sessions_disconnect"))
	mux.HandleFunc("POST /v1/sessions/{id}/reset", MetricsMiddleware(s.serverOnly(s.handleReset), "sessions_reset"))
	mux.HandleFunc("POST /v1/tokens", MetricsMiddleware(s.serverOnly(s.handleIssueToken), "tokens"))
	mux.HandleFunc("POST /v1/events", MetricsMiddleware(s.handlePostEvent, "events"))
	mux.HandleFunc("POST /v1/reports", MetricsMiddleware(s.handlePostReport, "reports"))
	mux.HandleFunc("POST /v1/gamestate", MetricsMiddleware(s.serverOnly(s.handlePushState), "gamestate"))
	if s.alerts != nil {
		mux.HandleFunc("GET /v1/alerts/ws", MetricsMiddleware(s.alerts.ServeHTTP, "alerts_ws"))
	}
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := s.validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return err
	}
	fe := ves[0]
	if fe.Param() != "" {
		return fmt.Errorf("field %s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("field %s failed %s", fe.Namespace(), fe.Tag())
}

func pathPlayerID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid player id %q", r.PathValue("id"))
	}
	return id, nil
}

// fail maps an engine error onto a status and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, token.ErrAuthFailure):
		writeError(w, http.StatusUnauthorized, "unauthorized", WrapKind(op, ErrUnauthorized, err))
	case errors.Is(err, session.ErrBanned):
		writeError(w, http.StatusForbidden, "banned", WrapKind(op, ErrForbidden, err))
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, session.ErrSessionExists):
		writeError(w, http.StatusConflict, "conflict", WrapKind(op, ErrConflict, err))
	case errors.Is(err, session.ErrInvalidPlayerID):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, scheduler.ErrClosed), errors.Is(err, token.ErrNoSigningKey),
		errors.Is(err, gamestate.ErrEntityUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		s.log.Error(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, errors.New("internal error"), err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
