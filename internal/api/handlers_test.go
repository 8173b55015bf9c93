package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/pricewatch/internal/database"
	"github.com/maltedev/pricewatch/internal/jobs"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/reconcile"
)

type fakeStore struct {
	comparisons []models.ComparisonRecord
	suppliers   []models.BestPriceEntry
	competitors []models.BestPriceEntry
	err         error

	lastFilter database.ComparisonFilter
}

func (s *fakeStore) Comparisons(_ context.Context, filter database.ComparisonFilter) ([]models.ComparisonRecord, error) {
	s.lastFilter = filter
	if s.err != nil {
		return nil, s.err
	}
	if filter.Competitive == nil {
		return s.comparisons, nil
	}
	var out []models.ComparisonRecord
	for _, r := range s.comparisons {
		if r.IsCompetitive == *filter.Competitive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) BestSupplierProducts(context.Context) ([]models.BestPriceEntry, error) {
	return s.suppliers, s.err
}

func (s *fakeStore) BestCompetitorPrices(context.Context) ([]models.BestPriceEntry, error) {
	return s.competitors, s.err
}

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, job string) (jobs.Result, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(jobs.Result), args.Error(1)
}

type fakeOutbox struct {
	pending, dead int64
}

func (o fakeOutbox) Backlog(context.Context) (database.Backlog, error) {
	return database.Backlog{Pending: o.pending, DeadLetter: o.dead}, nil
}

type fakeProxies struct{}

func (fakeProxies) Count() int     { return 12 }
func (fakeProxies) Available() int { return 9 }

func entry(id, price, source string) models.BestPriceEntry {
	return models.BestPriceEntry{
		NormalizedIdentifier: id,
		RawIdentifier:        strings.ToUpper(id),
		Title:                "Product " + id,
		Price:                decimal.RequireFromString(price),
		Source:               source,
	}
}

func sampleStore() *fakeStore {
	suppliers := []models.BestPriceEntry{
		entry("yamp45", "450", "acme"),
		entry("fen01", "1299", "acme"),
		entry("rol10", "80", "bolt"),
		entry("giblp", "2499", "bolt"),
	}
	competitors := []models.BestPriceEntry{
		entry("yamp45", "500", "musicstore"),
		entry("fen01", "1199", "justmusic"),
		entry("rol10", "100", "musicstore"),
		entry("giblp", "2299", "musicstore"),
	}
	return &fakeStore{
		comparisons: reconcile.CompareAll(suppliers, competitors),
		suppliers:   suppliers,
		competitors: competitors,
	}
}

func newTestServer(store Store, runner JobRunner, outbox OutboxStats) http.Handler {
	h := NewHandlers(store, runner, fakeProxies{}, outbox, slog.Default())
	return NewRouter(h, time.Second)
}

func do(t *testing.T, srv http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		outbox     OutboxStats
		wantStatus int
		wantState  string
	}{
		{"no relay", nil, http.StatusOK, "ok"},
		{"healthy", fakeOutbox{pending: 3}, http.StatusOK, "ok"},
		{"backlog", fakeOutbox{pending: 5000}, http.StatusOK, "warning"},
		{"dead letters", fakeOutbox{dead: 101}, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(sampleStore(), nil, tt.outbox), http.MethodGet, "/health")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantState, body["status"])
			if tt.outbox != nil {
				o := tt.outbox.(fakeOutbox)
				assert.Equal(t, map[string]interface{}{
					"pending":     float64(o.pending),
					"dead_letter": float64(o.dead),
				}, body["outbox"])
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	rec := do(t, newTestServer(sampleStore(), nil, nil), http.MethodGet, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Competitive)
	assert.Equal(t, 2, stats.NonCompetitive)
	assert.Equal(t, "50", stats.CompetitivePercentage.String())
}

func TestGetStats_StoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("connection reset")}
	rec := do(t, newTestServer(store, nil, nil), http.MethodGet, "/api/v1/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestListComparisons(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{"all", "", http.StatusOK, 4},
		{"competitive", "?competitive=true", http.StatusOK, 2},
		{"not competitive", "?competitive=false", http.StatusOK, 2},
		{"bad filter", "?competitive=maybe", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(sampleStore(), nil, nil), http.MethodGet, "/api/v1/comparisons"+tt.query)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var records []models.ComparisonRecord
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
			assert.Len(t, records, tt.wantCount)
		})
	}
}

func TestListComparisons_EmptyIsArray(t *testing.T) {
	rec := do(t, newTestServer(&fakeStore{}, nil, nil), http.MethodGet, "/api/v1/comparisons")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRankedComparisons(t *testing.T) {
	srv := newTestServer(sampleStore(), nil, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/comparisons/top-competitive?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var top []models.ComparisonRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &top))
	require.Len(t, top, 1)
	assert.Equal(t, "rol10", top[0].NormalizedIdentifier)

	rec = do(t, srv, http.MethodGet, "/api/v1/comparisons/needs-adjustment")
	require.Equal(t, http.StatusOK, rec.Code)
	var adjust []models.ComparisonRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &adjust))
	require.Len(t, adjust, 2)
	assert.Equal(t, "giblp", adjust[0].NormalizedIdentifier)
	assert.Equal(t, "fen01", adjust[1].NormalizedIdentifier)

	rec = do(t, srv, http.MethodGet, "/api/v1/comparisons/needs-adjustment?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBestPrices(t *testing.T) {
	srv := newTestServer(sampleStore(), nil, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/best/suppliers")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BestPriceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 4)
	assert.Equal(t, 4, resp.Stats.Total)
	assert.Equal(t, "80", resp.Stats.MinPrice.String())
	assert.Equal(t, "2499", resp.Stats.MaxPrice.String())
	assert.Equal(t, "1082", resp.Stats.AvgPrice.String())

	rec = do(t, newTestServer(&fakeStore{}, nil, nil), http.MethodGet, "/api/v1/best/competitors")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestRunJob(t *testing.T) {
	tests := []struct {
		name       string
		job        string
		result     jobs.Result
		err        error
		wantStatus int
	}{
		{
			name:       "success",
			job:        jobs.JobImportSuppliers,
			result:     jobs.Result{Job: jobs.JobImportSuppliers, Count: 42, Summary: models.Summary{"acme": {OK: true, Count: 42}}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "already running",
			job:        jobs.JobCrawlCompetitors,
			err:        jobs.ErrAlreadyRunning,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "failure",
			job:        jobs.JobRecomputeComparisons,
			err:        errors.New("failed to load supplier best prices: timeout"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(MockRunner)
			runner.On("Run", mock.Anything, tt.job).Return(tt.result, tt.err)

			rec := do(t, newTestServer(sampleStore(), runner, nil), http.MethodPost, "/api/v1/jobs/"+tt.job)
			assert.Equal(t, tt.wantStatus, rec.Code)
			runner.AssertExpectations(t)

			if tt.wantStatus == http.StatusOK {
				var got jobs.Result
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				assert.Equal(t, 42, got.Count)
				assert.True(t, got.Summary["acme"].OK)
			}
		})
	}
}

func TestRunJob_Unknown(t *testing.T) {
	runner := new(MockRunner)
	rec := do(t, newTestServer(sampleStore(), runner, nil), http.MethodPost, "/api/v1/jobs/defragment")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestProxies(t *testing.T) {
	rec := do(t, newTestServer(sampleStore(), nil, nil), http.MethodGet, "/api/v1/proxies")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":12,"available":9}`, rec.Body.String())
}
