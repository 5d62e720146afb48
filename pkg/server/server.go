package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	quotaerrors "github.com/sjkd23/raidquota/pkg/errors"
	"github.com/sjkd23/raidquota/pkg/quota"
	"github.com/sjkd23/raidquota/pkg/repository"
)

// Server exposes the quota engine over the internal HTTP+JSON boundary
// consumed by the bot's command and run-lifecycle handlers.
type Server struct {
	ledger      *quota.Ledger
	resolver    *quota.Resolver
	roleConfigs *quota.RoleConfigService
	awards      *quota.AwardEngine
	aggregator  *quota.Aggregator
	configs     repository.ConfigRepository
	logger      *slog.Logger
}

// New creates a server around the engine services.
func New(
	ledger *quota.Ledger,
	resolver *quota.Resolver,
	roleConfigs *quota.RoleConfigService,
	awards *quota.AwardEngine,
	aggregator *quota.Aggregator,
	configs repository.ConfigRepository,
	logger *slog.Logger,
) *Server {
	return &Server{
		ledger:      ledger,
		resolver:    resolver,
		roleConfigs: roleConfigs,
		awards:      awards,
		aggregator:  aggregator,
		configs:     configs,
		logger:      logger,
	}
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", s.handleLogEvent)
		r.Post("/leaderboard", s.handleLeaderboard)
		r.Post("/keypops", s.handleRecordKeyPop)

		r.Route("/guilds/{guildID}", func(r chi.Router) {
			r.Get("/runs/{runID}/logged", s.handleIsAlreadyLogged)
			r.Get("/users/{userID}/stats", s.handleUserStats)

			r.Route("/roles/{roleID}", func(r chi.Router) {
				r.Get("/quota", s.handleGetRoleConfig)
				r.Put("/quota", s.handlePutRoleConfig)
				r.Put("/overrides/{dungeonKey}", s.handlePutOverride)
				r.Post("/leaderboard", s.handleRoleLeaderboard)
			})

			r.Route("/dungeons/{dungeonKey}", func(r chi.Router) {
				r.Get("/points", s.handleResolvePoints)
				r.Get("/raider-points", s.handleGetRaiderPoints)
				r.Put("/raider-points", s.handlePutRaiderPoints)
				r.Get("/key-pop-points", s.handleGetKeyPopPoints)
				r.Put("/key-pop-points", s.handlePutKeyPopPoints)
			})
		})

		r.Route("/runs/{runID}", func(r chi.Router) {
			r.Post("/keypops/{keyPop}/snapshot", s.handleSnapshot)
			r.Post("/keypops/{keyPop}/close", s.handleCloseCheckpoint)
			r.Post("/complete", s.handleCompleteRun)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// errorResponse is the JSON error envelope, carrying the engine's error
// code when one exists.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := quotaerrors.ErrCodeDatabaseError
	message := err.Error()

	var qerr *quotaerrors.QuotaError
	if errors.As(err, &qerr) {
		code = qerr.Code
		message = qerr.Message
	}

	var resp errorResponse
	resp.Error.Code = code
	resp.Error.Message = message

	s.writeJSON(w, statusForCode(code), resp)
}

func (s *Server) writeBadRequest(w http.ResponseWriter, message string) {
	var resp errorResponse
	resp.Error.Code = quotaerrors.ErrCodeInvalidInput
	resp.Error.Message = message
	s.writeJSON(w, http.StatusBadRequest, resp)
}

func statusForCode(code string) int {
	switch code {
	case quotaerrors.ErrCodeValidationFailed, quotaerrors.ErrCodeInvalidInput, quotaerrors.ErrCodeConfigInvalid:
		return http.StatusBadRequest
	case quotaerrors.ErrCodeDungeonNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
