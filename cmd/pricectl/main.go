package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/maltedev/pricewatch/internal/app"
	"github.com/maltedev/pricewatch/internal/config"
	"github.com/maltedev/pricewatch/internal/crawler"
	"github.com/maltedev/pricewatch/internal/jobs"
	"github.com/maltedev/pricewatch/internal/logger"
	"github.com/maltedev/pricewatch/internal/models"
)

// jobAliases maps the short CLI names to job names.
var jobAliases = map[string][]string{
	"proxies":   {jobs.JobUpdateProxies},
	"suppliers": {jobs.JobImportSuppliers},
	"crawl":     {jobs.JobCrawlCompetitors},
	"compare":   {jobs.JobRecomputeComparisons},
	"all":       jobs.Names,
}

func main() {
	var (
		job        = flag.String("job", "all", "Job: proxies, suppliers, crawl, compare or all")
		competitor = flag.Int64("competitor", 0, "Crawl only this competitor ID")
		supplier   = flag.Int64("supplier", 0, "Import only this supplier ID")
		quiet      = flag.Bool("quiet", false, "Do not print crawl progress")
	)
	flag.Parse()

	names, ok := jobAliases[*job]
	if !ok {
		fmt.Printf("Unknown job: %s\n", *job)
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	progress := make(chan crawler.Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range progress {
			if !*quiet {
				fmt.Println(ev.String())
			}
		}
	}()

	a, err := app.New(ctx, cfg, logger, crawler.WithEvents(progress))
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	failed := false
	for _, name := range names {
		res, err := run(ctx, a, name, *supplier, *competitor)
		if err != nil {
			fmt.Printf("✗ %s: %v\n", name, err)
			failed = true
			if ctx.Err() != nil {
				break
			}
			continue
		}
		printResult(os.Stdout, res)
	}

	close(progress)
	<-done
	a.Close()

	if failed {
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, job string, supplierID, competitorID int64) (jobs.Result, error) {
	switch {
	case job == jobs.JobImportSuppliers && supplierID > 0:
		return a.Jobs.ImportSupplier(ctx, supplierID)
	case job == jobs.JobCrawlCompetitors && competitorID > 0:
		return a.Jobs.CrawlCompetitor(ctx, competitorID)
	default:
		return a.Jobs.Run(ctx, job)
	}
}

func printResult(w io.Writer, res jobs.Result) {
	fmt.Fprintf(w, "\n== %s (%s, %s) ==\n", res.Job, res.RunID, res.Duration.Round(time.Millisecond))

	if len(res.Summary) == 0 {
		fmt.Fprintf(w, "count: %d\n", res.Count)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tCOUNT\tERROR")
	for _, name := range sortedNames(res.Summary) {
		r := res.Summary[name]
		status := "ok"
		if !r.OK {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, status, r.Count, r.Error)
	}
	tw.Flush()

	fmt.Fprintf(w, "total: %d, failed: %d\n", res.Summary.Total(), res.Summary.FailedCount())
}

func sortedNames(s models.Summary) []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
