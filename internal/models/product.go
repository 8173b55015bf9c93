package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawProductRow is one priced product as read from a supplier feed or a
// competitor page.
type RawProductRow struct {
	RawIdentifier        string          `json:"raw_identifier"`
	NormalizedIdentifier string          `json:"normalized_identifier"`
	EAN                  string          `json:"ean,omitempty"`
	Title                string          `json:"title"`
	Price                decimal.Decimal `json:"price"`
	URL                  string          `json:"url,omitempty"`
	Source               string          `json:"source"`
	FetchedAt            time.Time       `json:"fetched_at"`
}

// Valid reports whether the row may reach the reconciler.
func (r RawProductRow) Valid() bool {
	return r.NormalizedIdentifier != "" && r.Price.IsPositive()
}

type BestPriceEntry struct {
	NormalizedIdentifier string          `json:"normalized_identifier"`
	RawIdentifier        string          `json:"raw_identifier"`
	Title                string          `json:"title"`
	Price                decimal.Decimal `json:"price"`
	Source               string          `json:"source"`
}

type ComparisonRecord struct {
	NormalizedIdentifier      string           `json:"normalized_identifier"`
	RawIdentifier             string           `json:"raw_identifier"`
	Title                     string           `json:"title"`
	OurPrice                  decimal.Decimal  `json:"our_price"`
	CompetitorPrice           decimal.Decimal  `json:"competitor_price"`
	Difference                decimal.Decimal  `json:"difference"`
	IsCompetitive             bool             `json:"is_competitive"`
	CompetitivenessPercentage *decimal.Decimal `json:"competitiveness_percentage"`
}

// Statistics aggregates a set of comparison records.
type Statistics struct {
	Total                 int             `json:"total"`
	Competitive           int             `json:"competitive"`
	NonCompetitive        int             `json:"non_competitive"`
	CompetitivePercentage decimal.Decimal `json:"competitive_percentage"`
	AvgOurPrice           decimal.Decimal `json:"avg_our_price"`
	AvgCompetitorPrice    decimal.Decimal `json:"avg_competitor_price"`
	AvgDifference         decimal.Decimal `json:"avg_difference"`
}

// PriceStats summarises one best-price table.
type PriceStats struct {
	Total    int             `json:"total"`
	AvgPrice decimal.Decimal `json:"avg_price"`
	MinPrice decimal.Decimal `json:"min_price"`
	MaxPrice decimal.Decimal `json:"max_price"`
}
