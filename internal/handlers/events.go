package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sshwatch/sshwatch/internal/logging"
	"github.com/sshwatch/sshwatch/internal/models"
	"github.com/sshwatch/sshwatch/internal/ratelimit"
	"github.com/sshwatch/sshwatch/internal/search"
)

const (
	defaultLimit = 50
	maxLimit     = 500

	defaultMaxBatchBytes = 1 << 20
)

// BatchIngestor accepts one shipper batch.
type BatchIngestor interface {
	IngestBatch(ctx context.Context, records []models.VectorRecord) error
}

// EventReader is the read side of the event store.
type EventReader interface {
	ListEvents(ctx context.Context, limit, offset int) ([]models.Event, int64, error)
	EventsByIDs(ctx context.Context, ids []int64) ([]models.Event, error)
	Stats(ctx context.Context) (*models.StatsResponse, error)
}

// Searcher runs full-text queries against the search index.
type Searcher interface {
	Search(ctx context.Context, query string, limit, offset int) ([]search.Hit, error)
}

type EventsHandler struct {
	ingestor      BatchIngestor
	reader        EventReader
	searcher      Searcher
	limiter       ratelimit.RateLimiter
	maxBatchBytes int64
	logger        *logging.Logger
}

func NewEventsHandler(ingestor BatchIngestor, reader EventReader, searcher Searcher, limiter ratelimit.RateLimiter, maxBatchBytes int64, logger *logging.Logger) *EventsHandler {
	if maxBatchBytes <= 0 {
		maxBatchBytes = defaultMaxBatchBytes
	}
	return &EventsHandler{
		ingestor:      ingestor,
		reader:        reader,
		searcher:      searcher,
		limiter:       limiter,
		maxBatchBytes: maxBatchBytes,
		logger:        logger,
	}
}

// Ingest accepts a batch of shipper records. The response is an
// acknowledgment only; per-record outcomes are not echoed.
func (h *EventsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	clientIP := getClientIP(r)

	allowed, err := h.limiter.Allow(r.Context(), clientIP)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Rate limiter unavailable", logging.Error(err))
		allowed = true
	}
	if !allowed {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	// The ingestion endpoint takes unauthenticated input, so the body is
	// capped before any of it is buffered.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBatchBytes)

	var records []models.VectorRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.ingestor.IngestBatch(r.Context(), records); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to process log event batch", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to process log event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// List returns events ordered by timestamp descending with the total count.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	events, total, err := h.reader.ListEvents(r.Context(), limit, offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to retrieve log events", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve log events")
		return
	}

	writeJSON(w, http.StatusOK, models.EventListResponse{
		Events: events,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// Stats returns aggregate success/failure totals and the top-10 per-user
// breakdown.
func (h *EventsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.reader.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to retrieve stats", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve statistics")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Search runs a full-text query and hydrates matching rows from the store,
// preserving the index's timestamp-descending order.
func (h *EventsHandler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Missing query parameter 'q'")
		return
	}
	limit, offset := pagination(r)

	hits, err := h.searcher.Search(r.Context(), query, limit, offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to search events",
			logging.Query(query), logging.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to search events")
		return
	}

	ids := make([]int64, len(hits))
	matchByID := make(map[int64]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.EventID
		matchByID[hit.EventID] = hit.MatchField
	}

	events, err := h.reader.EventsByIDs(r.Context(), ids)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to load search results", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to search events")
		return
	}

	results := make([]models.SearchResult, 0, len(events))
	for _, e := range events {
		results = append(results, models.SearchResult{
			Event:      e,
			MatchField: matchByID[e.ID],
		})
	}

	writeJSON(w, http.StatusOK, models.SearchResponse{
		Results: results,
		Query:   query,
		Limit:   limit,
		Offset:  offset,
	})
}

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
