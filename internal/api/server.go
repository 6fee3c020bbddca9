// Package api exposes the enqueue and status surface. It writes only the
// shared job columns with status pending; everything after that belongs to
// the workers.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"media-jobs/internal/config"
	"media-jobs/internal/firehose"
	"media-jobs/internal/models"
	"media-jobs/internal/ratelimit"
	"media-jobs/internal/store"
	"media-jobs/internal/telemetry"
	"media-jobs/internal/tokens"
)

// Server wires HTTP handlers for the enqueue/status API.
type Server struct {
	cfg      config.Config
	store    *store.Store
	firehose *firehose.Publisher
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
}

// New constructs the API server. The limiter may be nil to disable rate
// limiting (tests, local development).
func New(cfg config.Config, st *store.Store, fh *firehose.Publisher, limiter *ratelimit.Limiter, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		firehose: fh,
		limiter:  limiter,
		logger:   logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	if s.limiter != nil {
		r.With(s.limiter.Middleware(s.logger)).Post("/jobs", s.handleEnqueue)
	} else {
		r.Post("/jobs", s.handleEnqueue)
	}
	r.Get("/jobs/{token}", s.handleGetJob)
	r.Get("/media/{token}", s.handleGetMediaFile)
	return r
}

type enqueueRequest struct {
	Type                 string         `json:"job_type"`
	Payload              map[string]any `json:"payload"`
	UUIDIdempotencyToken string         `json:"uuid_idempotency_token"`
	MaxAttempts          int            `json:"max_attempts"`
}

type enqueueResponse struct {
	Job        models.Job `json:"job"`
	Idempotent bool       `json:"idempotent"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "job_type is required", http.StatusBadRequest)
		return
	}
	if req.UUIDIdempotencyToken == "" {
		// Callers that don't supply a token get a fresh one, which makes the
		// request non-idempotent but keeps the column uniformly populated.
		req.UUIDIdempotencyToken = uuid.NewString()
	} else if _, err := uuid.Parse(req.UUIDIdempotencyToken); err != nil {
		http.Error(w, "uuid_idempotency_token must be a uuid", http.StatusBadRequest)
		return
	}
	if req.MaxAttempts == 0 {
		req.MaxAttempts = s.cfg.MaxAttempts
	}

	job, idempotent, err := s.store.CreateJob(r.Context(), store.CreateJobParams{
		Token:                tokenForType(req.Type),
		Type:                 req.Type,
		Payload:              req.Payload,
		MaxAttempts:          req.MaxAttempts,
		UUIDIdempotencyToken: req.UUIDIdempotencyToken,
	})
	if err != nil {
		s.logger.Error("enqueue failed", zap.String("job_type", req.Type), zap.Error(err))
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}

	if !idempotent {
		telemetry.JobsEnqueued.Inc()
		s.firehose.Publish(r.Context(), firehose.Event{
			Kind:     firehose.JobEnqueued,
			JobToken: job.Token,
			JobType:  job.Type,
		})
	}

	writeJSON(w, http.StatusAccepted, enqueueResponse{Job: job, Idempotent: idempotent})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	job, found, err := s.store.GetJobByToken(r.Context(), token)
	if err != nil {
		s.logger.Error("job lookup failed", zap.String("token", token), zap.Error(err))
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetMediaFile(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	mf, found, err := s.store.GetMediaFileByToken(r.Context(), token)
	if err != nil {
		s.logger.Error("media file lookup failed", zap.String("token", token), zap.Error(err))
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "media file not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, mf)
}

// tokenForType mints a client-facing token with the prefix conventional for
// the job type.
func tokenForType(jobType string) string {
	switch {
	case jobType == "media_download":
		return tokens.NewDownloadJob()
	case strings.HasPrefix(jobType, "inference"):
		return tokens.NewInferenceJob()
	case strings.HasPrefix(jobType, "email"):
		return tokens.NewEmailJob()
	default:
		return tokens.NewJob()
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
