package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/crawler"
	"github.com/maltedev/pricewatch/internal/database"
	"github.com/maltedev/pricewatch/internal/models"
	"github.com/maltedev/pricewatch/internal/proxy"
	"github.com/maltedev/pricewatch/internal/reconcile"
)

const (
	JobUpdateProxies        = "update-proxies"
	JobImportSuppliers      = "import-suppliers"
	JobCrawlCompetitors     = "crawl-competitors"
	JobRecomputeComparisons = "recompute-comparisons"
)

// Names lists every job in the order a full refresh runs them.
var Names = []string{JobUpdateProxies, JobImportSuppliers, JobCrawlCompetitors, JobRecomputeComparisons}

// Store is the persistence the jobs need. *database.DB satisfies it.
type Store interface {
	ActiveSuppliers(ctx context.Context) ([]models.Supplier, error)
	GetSupplier(ctx context.Context, id int64) (models.Supplier, error)
	ActiveCompetitors(ctx context.Context) ([]models.Competitor, error)
	GetCompetitor(ctx context.Context, id int64) (models.Competitor, error)

	ReplaceSupplierProducts(ctx context.Context, supplierID int64, rows []models.RawProductRow) error
	InsertCompetitorPrices(ctx context.Context, competitorID int64, rows []models.RawProductRow) error
	SupplierRows(ctx context.Context) ([]models.RawProductRow, error)
	CompetitorRows(ctx context.Context) ([]models.RawProductRow, error)

	ReplaceBestSupplierProducts(ctx context.Context, entries []models.BestPriceEntry, event *database.OutboxEvent) error
	ReplaceBestCompetitorPrices(ctx context.Context, entries []models.BestPriceEntry, event *database.OutboxEvent) error
	BestSupplierProducts(ctx context.Context) ([]models.BestPriceEntry, error)
	BestCompetitorPrices(ctx context.Context) ([]models.BestPriceEntry, error)
	ReplaceComparisons(ctx context.Context, records []models.ComparisonRecord, event *database.OutboxEvent) error
	InsertEvent(ctx context.Context, event *database.OutboxEvent) error
}

// SupplierReader reads one supplier feed. *csvsource.Registry satisfies it.
type SupplierReader interface {
	Read(ctx context.Context, cfg models.SupplierSourceConfig) ([]models.RawProductRow, error)
}

// CompetitorCrawler crawls a batch of competitors. *crawler.Crawler satisfies it.
type CompetitorCrawler interface {
	CrawlAll(ctx context.Context, competitors []models.Competitor, handle crawler.ResultHandler) models.Summary
}

// ProxyPool is the rotation pool refreshed before crawls. *proxy.Pool satisfies it.
type ProxyPool interface {
	Load(ctx context.Context) int
	Providers() []proxy.Provider
}

// Result describes one finished job run.
type Result struct {
	Job      string         `json:"job"`
	RunID    uuid.UUID      `json:"run_id"`
	Summary  models.Summary `json:"summary,omitempty"`
	Count    int            `json:"count"`
	Duration time.Duration  `json:"duration"`
}

type Service struct {
	store   Store
	sources SupplierReader
	crawler CompetitorCrawler
	pool    ProxyPool
	lock    *RunLock
	logger  *slog.Logger
}

// NewService wires the jobs. pool and lock may be nil.
func NewService(store Store, sources SupplierReader, c CompetitorCrawler, pool ProxyPool, lock *RunLock, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		sources: sources,
		crawler: c,
		pool:    pool,
		lock:    lock,
		logger:  logger.With("component", "jobs"),
	}
}

// Run executes one job by name under its run-lock.
func (s *Service) Run(ctx context.Context, job string) (Result, error) {
	var run func(ctx context.Context, runID uuid.UUID) (models.Summary, int, error)

	switch job {
	case JobUpdateProxies:
		run = s.updateProxies
	case JobImportSuppliers:
		run = s.importAllSuppliers
	case JobCrawlCompetitors:
		run = s.crawlAllCompetitors
	case JobRecomputeComparisons:
		run = func(ctx context.Context, runID uuid.UUID) (models.Summary, int, error) {
			n, err := s.recomputeComparisons(ctx, runID)
			return nil, n, err
		}
	default:
		return Result{}, fmt.Errorf("unknown job %q", job)
	}

	return s.locked(ctx, job, run)
}

func (s *Service) locked(ctx context.Context, job string, run func(context.Context, uuid.UUID) (models.Summary, int, error)) (Result, error) {
	if s.lock != nil {
		release, err := s.lock.Acquire(ctx, job)
		if err != nil {
			return Result{Job: job}, err
		}
		defer release()
	}

	res := Result{Job: job, RunID: uuid.New()}
	start := time.Now()
	log := s.logger.With("job", job, "run_id", res.RunID)
	log.Info("job started")

	summary, count, err := run(ctx, res.RunID)
	res.Summary = summary
	res.Count = count
	res.Duration = time.Since(start)

	if err != nil {
		log.Error("job failed", "error", err, "duration", res.Duration)
		return res, err
	}

	log.Info("job finished", "count", count, "failed", summary.FailedCount(), "duration", res.Duration)
	return res, nil
}

// UpdateProxies refreshes every provider and reloads the pool.
func (s *Service) UpdateProxies(ctx context.Context) (Result, error) {
	return s.Run(ctx, JobUpdateProxies)
}

// ImportAllSuppliers re-imports every active supplier feed and rebuilds
// the supplier best prices.
func (s *Service) ImportAllSuppliers(ctx context.Context) (Result, error) {
	return s.Run(ctx, JobImportSuppliers)
}

// CrawlAllCompetitors crawls every active competitor and rebuilds the
// competitor best prices.
func (s *Service) CrawlAllCompetitors(ctx context.Context) (Result, error) {
	return s.Run(ctx, JobCrawlCompetitors)
}

// RecomputeComparisons rebuilds the comparison table from both best-price
// tables and returns the number of records.
func (s *Service) RecomputeComparisons(ctx context.Context) (int, error) {
	res, err := s.Run(ctx, JobRecomputeComparisons)
	return res.Count, err
}

// ImportSupplier re-imports a single supplier regardless of its active flag.
func (s *Service) ImportSupplier(ctx context.Context, id int64) (Result, error) {
	return s.locked(ctx, JobImportSuppliers, func(ctx context.Context, runID uuid.UUID) (models.Summary, int, error) {
		sup, err := s.store.GetSupplier(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		summary := models.Summary{}
		s.importSupplier(ctx, sup, summary)
		if err := s.rebuildSupplierBest(ctx, runID, summary); err != nil {
			return summary, 0, err
		}
		return summary, summary.Total(), nil
	})
}

// CrawlCompetitor crawls a single competitor regardless of its active flag.
func (s *Service) CrawlCompetitor(ctx context.Context, id int64) (Result, error) {
	return s.locked(ctx, JobCrawlCompetitors, func(ctx context.Context, runID uuid.UUID) (models.Summary, int, error) {
		comp, err := s.store.GetCompetitor(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		return s.crawl(ctx, runID, []models.Competitor{comp})
	})
}

func (s *Service) updateProxies(ctx context.Context, runID uuid.UUID) (models.Summary, int, error) {
	summary := models.Summary{}
	if s.pool == nil {
		return summary, 0, nil
	}

	for _, p := range s.pool.Providers() {
		entries := p.UpdateProxies(ctx)
		summary.Succeeded(p.Name(), len(entries))
	}
	loaded := s.pool.Load(ctx)

	event, err := database.NewJobCompletedEvent(JobUpdateProxies, runID, summary)
	if err != nil {
		return summary, loaded, err
	}
	if err := s.store.InsertEvent(ctx, event); err != nil {
		return summary, loaded, fmt.Errorf("failed to record job event: %w", err)
	}

	return summary, loaded, nil
}

func (s *Service) importAllSuppliers(ctx context.Context, runID uuid.UUID) (models.Summary, int, error) {
	suppliers, err := s.store.ActiveSuppliers(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load suppliers: %w", err)
	}

	summary := models.Summary{}
	for _, sup := range suppliers {
		if ctx.Err() != nil {
			return summary, 0, ctx.Err()
		}
		s.importSupplier(ctx, sup, summary)
	}

	if err := s.rebuildSupplierBest(ctx, runID, summary); err != nil {
		return summary, 0, err
	}
	return summary, summary.Total(), nil
}

// importSupplier replaces one supplier's rows. Failures land in summary
// and leave the previous import in place.
func (s *Service) importSupplier(ctx context.Context, sup models.Supplier, summary models.Summary) {
	log := s.logger.With("supplier", sup.Name)

	cfg, err := config.DecodeSupplierConfig(sup.Name, sup.Kind, sup.RawConfig)
	if err != nil {
		log.Error("invalid supplier configuration", "error", err)
		summary.Failed(sup.Name, err)
		return
	}

	rows, err := s.sources.Read(ctx, cfg)
	if err != nil {
		log.Error("failed to read supplier feed", "source", cfg.Kind, "error", err)
		summary.Failed(sup.Name, err)
		return
	}

	for i := range rows {
		rows[i].Source = sup.Name
	}

	if err := s.store.ReplaceSupplierProducts(ctx, sup.ID, rows); err != nil {
		log.Error("failed to store supplier rows", "error", err)
		summary.Failed(sup.Name, err)
		return
	}

	log.Info("supplier imported", "rows", len(rows))
	summary.Succeeded(sup.Name, len(rows))
}

func (s *Service) rebuildSupplierBest(ctx context.Context, runID uuid.UUID, summary models.Summary) error {
	rows, err := s.store.SupplierRows(ctx)
	if err != nil {
		return fmt.Errorf("failed to load supplier rows: %w", err)
	}

	best := reconcile.ComputeBestPrices(rows, reconcile.SideSupplier)

	event, err := database.NewJobCompletedEvent(JobImportSuppliers, runID, summary)
	if err != nil {
		return err
	}
	if err := s.store.ReplaceBestSupplierProducts(ctx, best, event); err != nil {
		return fmt.Errorf("failed to replace supplier best prices: %w", err)
	}

	s.logger.Info("supplier best prices rebuilt", "rows", len(rows), "products", len(best))
	return nil
}

func (s *Service) crawlAllCompetitors(ctx context.Context, runID uuid.UUID) (models.Summary, int, error) {
	competitors, err := s.store.ActiveCompetitors(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load competitors: %w", err)
	}
	return s.crawl(ctx, runID, competitors)
}

func (s *Service) crawl(ctx context.Context, runID uuid.UUID, competitors []models.Competitor) (models.Summary, int, error) {
	if s.pool != nil {
		n := s.pool.Load(ctx)
		s.logger.Info("proxy pool loaded", "proxies", n)
	}

	summary := s.crawler.CrawlAll(ctx, competitors, func(ctx context.Context, c models.Competitor, rows []models.RawProductRow) error {
		return s.store.InsertCompetitorPrices(ctx, c.ID, rows)
	})
	if ctx.Err() != nil {
		return summary, 0, ctx.Err()
	}

	rows, err := s.store.CompetitorRows(ctx)
	if err != nil {
		return summary, 0, fmt.Errorf("failed to load competitor rows: %w", err)
	}

	best := reconcile.ComputeBestPrices(rows, reconcile.SideCompetitor)

	event, err := database.NewJobCompletedEvent(JobCrawlCompetitors, runID, summary)
	if err != nil {
		return summary, 0, err
	}
	if err := s.store.ReplaceBestCompetitorPrices(ctx, best, event); err != nil {
		return summary, 0, fmt.Errorf("failed to replace competitor best prices: %w", err)
	}

	s.logger.Info("competitor best prices rebuilt", "rows", len(rows), "products", len(best))
	return summary, summary.Total(), nil
}

func (s *Service) recomputeComparisons(ctx context.Context, runID uuid.UUID) (int, error) {
	supplierBest, err := s.store.BestSupplierProducts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load supplier best prices: %w", err)
	}

	competitorBest, err := s.store.BestCompetitorPrices(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load competitor best prices: %w", err)
	}

	records := reconcile.CompareAll(supplierBest, competitorBest)
	stats := reconcile.ComputeStatistics(records)

	event, err := database.NewJobCompletedEvent(JobRecomputeComparisons, runID, stats)
	if err != nil {
		return 0, err
	}
	if err := s.store.ReplaceComparisons(ctx, records, event); err != nil {
		return 0, fmt.Errorf("failed to replace comparisons: %w", err)
	}

	return len(records), nil
}
