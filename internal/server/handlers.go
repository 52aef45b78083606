package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/nrcae/ai-s3-search/internal/ingest"
	"github.com/nrcae/ai-s3-search/internal/models"
	"github.com/nrcae/ai-s3-search/internal/search"
	"github.com/nrcae/ai-s3-search/internal/storage"
)

type searchResponse struct {
	Query   string       `json:"query"`
	Count   int          `json:"count"`
	TookMs  int64        `json:"took_ms"`
	Results []models.Hit `json:"results"`
}

type statusResponse struct {
	models.Status
	DiskUsageBytes *int64         `json:"disk_usage_bytes,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
}

func (s *Server) handleSearchGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.SearchQuery{
		Query:    q.Get("q"),
		SourceID: q.Get("source"),
	}
	if raw := q.Get("top_k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "top_k must be an integer")
			return
		}
		query.TopK = k
	}
	s.search(w, r, query)
}

func (s *Server) handleSearchPost(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.search(w, r, query)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, query models.SearchQuery) {
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("top_k", query.TopK))
	start := time.Now()
	hits, err := s.service.Search(r.Context(), query)
	switch {
	case err == nil:
	case errors.Is(err, search.ErrBadRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, search.ErrNotReady):
		w.Header().Set("Retry-After", "5")
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if hits == nil {
		hits = []models.Hit{}
	}
	s.respondJSON(w, http.StatusOK, searchResponse{
		Query:   query.Query,
		Count:   len(hits),
		TookMs:  time.Since(start).Milliseconds(),
		Results: hits,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.service.Status(), Config: s.info}
	if len(s.diskPaths) > 0 {
		if n, err := storage.DiskUsageBytes(s.diskPaths...); err == nil {
			resp.DiskUsageBytes = &n
		} else {
			s.logger.Debug("status: disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	err := s.service.TriggerIngestion()
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	case errors.Is(err, ingest.ErrAlreadyRunning):
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("trigger ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
