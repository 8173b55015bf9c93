package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maltedev/pricewatch/internal/jobs"
)

// CompareChain returns a handler that recomputes the comparisons whenever
// either best-price table has been rebuilt.
func CompareChain(runner jobs.Runner, logger *slog.Logger) Handler {
	logger = logger.With("component", "compare_chain")

	return func(ctx context.Context, ev JobCompleted) error {
		switch ev.Job {
		case jobs.JobImportSuppliers, jobs.JobCrawlCompetitors:
		default:
			return nil
		}

		res, err := runner.Run(ctx, jobs.JobRecomputeComparisons)
		if errors.Is(err, jobs.ErrAlreadyRunning) {
			logger.Info("comparison already running, skipping", "trigger", ev.Job, "run_id", ev.RunID)
			return nil
		}
		if err != nil {
			return err
		}

		logger.Info("comparisons recomputed", "trigger", ev.Job, "run_id", ev.RunID, "records", res.Count)
		return nil
	}
}
