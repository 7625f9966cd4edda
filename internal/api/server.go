// Package api exposes the warehouse output tables over HTTP. The server is
// read-only: runs happen through the CLI, the API only serves their results.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/denirokp/dialogs-rag-v3/internal/store"
)

// Server serves batch results from the store.
type Server struct {
	store store.Store
	http  *http.Server
}

// New builds a Server listening on the given port.
func New(st store.Store, port int) *Server {
	s := &Server{store: st}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/batches", func(r chi.Router) {
		r.Get("/", s.handleListBatches)
		r.Route("/{batchID}", func(r chi.Router) {
			r.Get("/", s.handleGetBatch)
			r.Get("/themes", s.handleThemes)
			r.Get("/subthemes", s.handleSubthemes)
			r.Get("/problems", s.handleProblems)
			r.Get("/cooccurrence", s.handleCooccurrence)
			r.Get("/clusters", s.handleClusters)
			r.Get("/quality", s.handleQuality)
			r.Get("/mentions", s.handleMentions)
		})
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the context is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("api listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Handler returns the underlying router, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.store.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.store.GetBatch(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ThemeSummaries(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSubthemes(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.SubthemeSummaries(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleProblems(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ProblemCards(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCooccurrence(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.Cooccurrence(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.Clusters(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.QualityReport(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no quality report for batch"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleMentions(w http.ResponseWriter, r *http.Request) {
	filter := store.MentionFilter{
		Theme:     r.URL.Query().Get("theme"),
		ProblemID: r.URL.Query().Get("problem_id"),
	}
	if r.URL.Query().Get("include_duplicates") == "true" {
		filter.IncludeDuplicates = true
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}

	rows, err := s.store.Mentions(r.Context(), chi.URLParam(r, "batchID"), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
