// Package handlers exposes the job API over HTTP: submit a short, poll its
// status, download the finished video, or cancel it.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	apperrors "shortgen/errors"
	"shortgen/pipeline"
	"shortgen/types"
)

type Handler struct {
	orchestrator *pipeline.Orchestrator
	limiter      *rate.Limiter
	logger       *logrus.Logger
}

// NewRouter wires the API routes and middleware stack.
func NewRouter(orchestrator *pipeline.Orchestrator, rateLimit float64, rateBurst int, logger *logrus.Logger) http.Handler {
	h := &Handler{
		orchestrator: orchestrator,
		limiter:      rate.NewLimiter(rate.Limit(rateLimit), rateBurst),
		logger:       logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/shorts", func(r chi.Router) {
		r.With(h.rateLimit).Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Get("/{id}/video", h.handleGetVideo)
		r.Post("/{id}/cancel", h.handleCancel)
	})
	r.Get("/health", h.handleHealth)

	return r
}

type createShortRequest struct {
	Topic             string `json:"topic"`
	TargetDurationSec int    `json:"target_duration_sec,omitempty"`
	AddCaptions       *bool  `json:"add_captions,omitempty"`
	VoicePreference   string `json:"voice_preference,omitempty"`
}

// handleCreate handles POST /api/v1/shorts
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "Handler.handleCreate"
	logger := h.logger.WithContext(r.Context())

	var req createShortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, apperrors.InvalidInput(op, err, "Invalid JSON body"))
		return
	}

	job, err := h.orchestrator.Submit(r.Context(), pipeline.SubmitRequest{
		Topic:             req.Topic,
		TargetDurationSec: req.TargetDurationSec,
		AddCaptions:       req.AddCaptions,
		VoicePreference:   req.VoicePreference,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to submit job")
		h.respondError(w, r, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"topic":  job.Topic,
	}).Info("Short generation job created")

	respondJSON(w, http.StatusAccepted, types.NewJobResponse(job))
}

// handleList handles GET /api/v1/shorts
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.orchestrator.ListJobs(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	responses := make([]*types.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, types.NewJobResponse(job))
	}
	respondJSON(w, http.StatusOK, responses)
}

// handleGet handles GET /api/v1/shorts/{id}
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	const op = "Handler.handleGet"

	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, r, apperrors.InvalidInput(op, nil, "ID is required"))
		return
	}

	job, err := h.orchestrator.GetStatus(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, types.NewJobResponse(job))
}

// handleGetVideo handles GET /api/v1/shorts/{id}/video
func (h *Handler) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	const op = "Handler.handleGetVideo"

	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, r, apperrors.InvalidInput(op, nil, "ID is required"))
		return
	}

	path, err := h.orchestrator.FetchFinalArtifact(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, path)
}

// handleCancel handles POST /api/v1/shorts/{id}/cancel
func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	const op = "Handler.handleCancel"
	logger := h.logger.WithContext(r.Context())

	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, r, apperrors.InvalidInput(op, nil, "ID is required"))
		return
	}

	if err := h.orchestrator.Cancel(r.Context(), id); err != nil {
		logger.WithError(err).Error("Failed to cancel job")
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			respondJSON(w, http.StatusTooManyRequests,
				map[string]string{"error": "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	msg := "Internal server error"
	if appErr, ok := err.(*apperrors.AppError); ok {
		code = appErr.Code
		msg = appErr.Message
	}

	h.logger.WithFields(logrus.Fields{
		"error":  err,
		"status": code,
		"path":   r.URL.Path,
		"method": r.Method,
	}).Error("Request error")

	respondJSON(w, code, map[string]string{"error": msg})
}

// requestLogger logs one line per request after it completes.
func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Info("Request completed")
		})
	}
}
