// Package reconcile reduces raw price rows to one best price per product
// and compares the supplier side against the competitor side.
package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/maltedev/pricewatch/internal/models"
)

const (
	SideSupplier   = "supplier"
	SideCompetitor = "competitor"
)

var hundred = decimal.NewFromInt(100)

// ComputeBestPrices keeps the cheapest row per normalized identifier. Ties
// go to the row seen first, and groups are returned in order of first
// appearance. Invalid rows are ignored. side names the source of rows
// that carry none.
func ComputeBestPrices(rows []models.RawProductRow, side string) []models.BestPriceEntry {
	index := make(map[string]int, len(rows))
	best := make([]models.BestPriceEntry, 0, len(rows))

	for _, r := range rows {
		if !r.Valid() {
			continue
		}

		source := r.Source
		if source == "" {
			source = side
		}

		entry := models.BestPriceEntry{
			NormalizedIdentifier: r.NormalizedIdentifier,
			RawIdentifier:        r.RawIdentifier,
			Title:                r.Title,
			Price:                r.Price,
			Source:               source,
		}

		i, seen := index[r.NormalizedIdentifier]
		if !seen {
			index[r.NormalizedIdentifier] = len(best)
			best = append(best, entry)
			continue
		}
		if r.Price.LessThan(best[i].Price) {
			best[i] = entry
		}
	}

	return best
}

// CompareAll joins both best-price sets on the normalized identifier.
// Products missing on either side are left out. Output follows the
// supplier order.
func CompareAll(supplierBest, competitorBest []models.BestPriceEntry) []models.ComparisonRecord {
	competitor := make(map[string]models.BestPriceEntry, len(competitorBest))
	for _, c := range competitorBest {
		if _, ok := competitor[c.NormalizedIdentifier]; !ok {
			competitor[c.NormalizedIdentifier] = c
		}
	}

	records := make([]models.ComparisonRecord, 0)
	for _, s := range supplierBest {
		c, ok := competitor[s.NormalizedIdentifier]
		if !ok {
			continue
		}
		records = append(records, Compare(s, c))
	}
	return records
}

// Compare builds the comparison record for one matched product.
func Compare(supplier, competitor models.BestPriceEntry) models.ComparisonRecord {
	rec := models.ComparisonRecord{
		NormalizedIdentifier: supplier.NormalizedIdentifier,
		RawIdentifier:        supplier.RawIdentifier,
		Title:                supplier.Title,
		OurPrice:             supplier.Price,
		CompetitorPrice:      competitor.Price,
		Difference:           supplier.Price.Sub(competitor.Price),
		IsCompetitive:        supplier.Price.LessThanOrEqual(competitor.Price),
	}

	if competitor.Price.IsPositive() {
		pct := supplier.Price.Mul(hundred).DivRound(competitor.Price, 2)
		rec.CompetitivenessPercentage = &pct
	}

	return rec
}

// ComputeStatistics aggregates records. Averages and the competitive
// share are rounded to two places.
func ComputeStatistics(records []models.ComparisonRecord) models.Statistics {
	stats := models.Statistics{
		Total:                 len(records),
		CompetitivePercentage: decimal.Zero,
		AvgOurPrice:           decimal.Zero,
		AvgCompetitorPrice:    decimal.Zero,
		AvgDifference:         decimal.Zero,
	}
	if len(records) == 0 {
		return stats
	}

	var ours, theirs, diff decimal.Decimal
	for _, r := range records {
		if r.IsCompetitive {
			stats.Competitive++
		}
		ours = ours.Add(r.OurPrice)
		theirs = theirs.Add(r.CompetitorPrice)
		diff = diff.Add(r.Difference)
	}
	stats.NonCompetitive = stats.Total - stats.Competitive

	n := decimal.NewFromInt(int64(stats.Total))
	stats.CompetitivePercentage = decimal.NewFromInt(int64(stats.Competitive)).Mul(hundred).DivRound(n, 2)
	stats.AvgOurPrice = ours.DivRound(n, 2)
	stats.AvgCompetitorPrice = theirs.DivRound(n, 2)
	stats.AvgDifference = diff.DivRound(n, 2)

	return stats
}

// TopCompetitive returns up to n competitive records, lowest percentage
// first. n <= 0 returns all of them.
func TopCompetitive(records []models.ComparisonRecord, n int) []models.ComparisonRecord {
	out := filter(records, func(r models.ComparisonRecord) bool {
		return r.IsCompetitive && r.CompetitivenessPercentage != nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompetitivenessPercentage.LessThan(*out[j].CompetitivenessPercentage)
	})
	return limit(out, n)
}

// NeedsAdjustment returns up to n non-competitive records, largest
// difference first.
func NeedsAdjustment(records []models.ComparisonRecord, n int) []models.ComparisonRecord {
	out := filter(records, func(r models.ComparisonRecord) bool { return !r.IsCompetitive })
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Difference.GreaterThan(out[j].Difference)
	})
	return limit(out, n)
}

// BestPriceStatistics summarises one side's best-price table.
func BestPriceStatistics(entries []models.BestPriceEntry) models.PriceStats {
	stats := models.PriceStats{
		Total:    len(entries),
		AvgPrice: decimal.Zero,
		MinPrice: decimal.Zero,
		MaxPrice: decimal.Zero,
	}
	if len(entries) == 0 {
		return stats
	}

	sum := decimal.Zero
	stats.MinPrice = entries[0].Price
	stats.MaxPrice = entries[0].Price
	for _, e := range entries {
		sum = sum.Add(e.Price)
		stats.MinPrice = decimal.Min(stats.MinPrice, e.Price)
		stats.MaxPrice = decimal.Max(stats.MaxPrice, e.Price)
	}
	stats.AvgPrice = sum.DivRound(decimal.NewFromInt(int64(len(entries))), 2)

	return stats
}

func filter(records []models.ComparisonRecord, keep func(models.ComparisonRecord) bool) []models.ComparisonRecord {
	out := make([]models.ComparisonRecord, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func limit(records []models.ComparisonRecord, n int) []models.ComparisonRecord {
	if n > 0 && len(records) > n {
		return records[:n]
	}
	return records
}
