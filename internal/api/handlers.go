package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/pricewatch/internal/database"
	"github.com/maltedev/pricewatch/internal/jobs"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/reconcile"
)

const defaultLimit = 10

// Store is the read side of the database. *database.DB satisfies it.
type Store interface {
	Comparisons(ctx context.Context, filter database.ComparisonFilter) ([]models.ComparisonRecord, error)
	BestSupplierProducts(ctx context.Context) ([]models.BestPriceEntry, error)
	BestCompetitorPrices(ctx context.Context) ([]models.BestPriceEntry, error)
}

// JobRunner runs a job synchronously. *jobs.Service satisfies it.
type JobRunner interface {
	Run(ctx context.Context, job string) (jobs.Result, error)
}

// ProxyStats reports pool size. *proxy.Pool satisfies it.
type ProxyStats interface {
	Count() int
	Available() int
}

// OutboxStats reports relay backlog. *database.Relay satisfies it.
type OutboxStats interface {
	Backlog(ctx context.Context) (database.Backlog, error)
}

type Handlers struct {
	store   Store
	runner  JobRunner
	proxies ProxyStats
	outbox  OutboxStats
	logger  *slog.Logger
}

// NewHandlers builds the handlers. proxies and outbox may be nil.
func NewHandlers(store Store, runner JobRunner, proxies ProxyStats, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:   store,
		runner:  runner,
		proxies: proxies,
		outbox:  outbox,
		logger:  logger.With("component", "api"),
	}
}

// Health reports outbox backlog. A large dead-letter count marks the
// service unavailable.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.outbox != nil {
		backlog, err := h.outbox.Backlog(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox backlog", "error", err)
		}
		health["outbox"] = backlog

		if backlog.Pending > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if backlog.DeadLetter > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

// GetStats aggregates the current comparison table.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Comparisons(r.Context(), database.ComparisonFilter{})
	if err != nil {
		h.logger.Error("failed to load comparisons", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, reconcile.ComputeStatistics(records))
}

// ListComparisons returns comparison records, optionally narrowed by
// ?competitive=true|false.
func (h *Handlers) ListComparisons(w http.ResponseWriter, r *http.Request) {
	var filter database.ComparisonFilter
	if raw := r.URL.Query().Get("competitive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "competitive must be true or false")
			return
		}
		filter.Competitive = &v
	}

	records, err := h.store.Comparisons(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to load comparisons", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get comparisons")
		return
	}

	h.respondJSON(w, http.StatusOK, nonNil(records))
}

func (h *Handlers) TopCompetitive(w http.ResponseWriter, r *http.Request) {
	h.rankComparisons(w, r, reconcile.TopCompetitive)
}

func (h *Handlers) NeedsAdjustment(w http.ResponseWriter, r *http.Request) {
	h.rankComparisons(w, r, reconcile.NeedsAdjustment)
}

func (h *Handlers) rankComparisons(w http.ResponseWriter, r *http.Request, rank func([]models.ComparisonRecord, int) []models.ComparisonRecord) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.store.Comparisons(r.Context(), database.ComparisonFilter{})
	if err != nil {
		h.logger.Error("failed to load comparisons", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get comparisons")
		return
	}

	h.respondJSON(w, http.StatusOK, nonNil(rank(records, limit)))
}

// BestPriceResponse lists one best-price table with its statistics.
type BestPriceResponse struct {
	Stats models.PriceStats       `json:"stats"`
	Items []models.BestPriceEntry `json:"items"`
}

func (h *Handlers) BestSuppliers(w http.ResponseWriter, r *http.Request) {
	h.bestPrices(w, r, h.store.BestSupplierProducts)
}

func (h *Handlers) BestCompetitors(w http.ResponseWriter, r *http.Request) {
	h.bestPrices(w, r, h.store.BestCompetitorPrices)
}

func (h *Handlers) bestPrices(w http.ResponseWriter, r *http.Request, load func(context.Context) ([]models.BestPriceEntry, error)) {
	entries, err := load(r.Context())
	if err != nil {
		h.logger.Error("failed to load best prices", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get best prices")
		return
	}

	if entries == nil {
		entries = []models.BestPriceEntry{}
	}
	h.respondJSON(w, http.StatusOK, BestPriceResponse{
		Stats: reconcile.BestPriceStatistics(entries),
		Items: entries,
	})
}

// RunJob runs one job synchronously and returns its result.
func (h *Handlers) RunJob(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	if !slices.Contains(jobs.Names, job) {
		h.respondError(w, http.StatusNotFound, "unknown job")
		return
	}

	res, err := h.runner.Run(r.Context(), job)
	switch {
	case errors.Is(err, jobs.ErrAlreadyRunning):
		h.respondError(w, http.StatusConflict, "job is already running")
	case err != nil:
		h.logger.Error("job failed", "job", job, "error", err)
		h.respondError(w, http.StatusInternalServerError, "job failed: "+err.Error())
	default:
		h.respondJSON(w, http.StatusOK, res)
	}
}

// ProxiesResponse describes the rotation pool.
type ProxiesResponse struct {
	Count     int `json:"count"`
	Available int `json:"available"`
}

func (h *Handlers) Proxies(w http.ResponseWriter, r *http.Request) {
	var resp ProxiesResponse
	if h.proxies != nil {
		resp.Count = h.proxies.Count()
		resp.Available = h.proxies.Available()
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func nonNil(records []models.ComparisonRecord) []models.ComparisonRecord {
	if records == nil {
		return []models.ComparisonRecord{}
	}
	return records
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
