// Package api exposes the HTTP gateway for the analysis pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagescope/pagescope/internal/analysis"
	"github.com/pagescope/pagescope/internal/metrics"

	"go.uber.org/zap"
)

// Server wires HTTP handlers to the store, cache and parse queue.
type Server struct {
	router     chi.Router
	store      analysis.ResultStore
	cache      analysis.Cache
	parseQueue analysis.Publisher
	idGen      analysis.IDGenerator
	clock      analysis.Clock
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store analysis.ResultStore,
	cache analysis.Cache,
	parseQueue analysis.Publisher,
	idGen analysis.IDGenerator,
	clock analysis.Clock,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:      store,
		cache:      cache,
		parseQueue: parseQueue,
		idGen:      idGen,
		clock:      clock,
		logger:     logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.submitAnalysis)
			r.Get("/{correlation_id}", s.getAnalysis)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The gateway cannot accept work it cannot persist.
	if _, err := s.store.Get(r.Context(), "readiness-probe"); err != nil && !errors.Is(err, analysis.ErrNotFound) {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	URL string `json:"url"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateURL(req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	correlationID, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "generate correlation id")
		return
	}

	// The record exists before the job is queued, so a client can poll
	// immediately and the results stage always finds a row to update.
	now := s.clock.Now()
	if err := s.store.Create(r.Context(), correlationID, req.URL, now); err != nil {
		s.logger.Error("create record failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "create analysis record")
		return
	}

	job, err := json.Marshal(analysis.ParseJob{CorrelationID: correlationID, URL: req.URL})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "encode parse job")
		return
	}

	publishCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.parseQueue.Publish(publishCtx, job); err != nil {
		s.logger.Error("publish parse job failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		if failErr := s.store.Fail(r.Context(), correlationID, "queue publish failed"); failErr != nil {
			s.logger.Error("mark record failed after publish error",
				zap.String("correlation_id", correlationID),
				zap.Error(failErr))
		}
		s.writeError(w, http.StatusInternalServerError, "queue analysis job")
		return
	}

	metrics.IncSubmitted()
	s.logger.Info("analysis submitted",
		zap.String("correlation_id", correlationID),
		zap.String("url", req.URL))
	s.writeJSON(w, http.StatusAccepted, map[string]string{"correlation_id": correlationID})
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlation_id")

	if cached, err := s.cache.Get(r.Context(), correlationID); err == nil {
		metrics.IncCache("hit")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(cached); err != nil {
			s.logger.Error("write cached view failed", zap.Error(err))
		}
		return
	} else if !errors.Is(err, analysis.ErrNotFound) {
		// A degraded cache must not take down the read path.
		s.logger.Warn("cache read failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err))
	}
	metrics.IncCache("miss")

	rec, err := s.store.Get(r.Context(), correlationID)
	if errors.Is(err, analysis.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		s.logger.Error("store read failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "fetch analysis record")
		return
	}

	view := analysis.NewView(rec)

	// Cache-aside backfill for completed records. Processing records
	// stay uncached so clients see the transition promptly.
	if rec.Status == analysis.StatusCompleted {
		if payload, err := json.Marshal(view); err == nil {
			if err := s.cache.Set(r.Context(), correlationID, payload); err != nil {
				s.logger.Warn("cache backfill failed",
					zap.String("correlation_id", correlationID),
					zap.Error(err))
			}
		}
	}

	s.writeJSON(w, http.StatusOK, view)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("url must use http or https")
	}
	if parsed.Host == "" {
		return errors.New("url must include a host")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
