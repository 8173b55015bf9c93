package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/pricewatch/internal/models"
)

func TestNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "450", "450.00", "1299.99", "-50.5", "0.01", "123456789.12"} {
		t.Run(s, func(t *testing.T) {
			d := decimal.RequireFromString(s)
			assert.True(t, d.Equal(fromNumeric(toNumeric(d))))
		})
	}

	assert.True(t, fromNumeric(pgtype.Numeric{}).IsZero())
	assert.False(t, toNullableNumeric(nil).Valid)

	pct := decimal.RequireFromString("90.00")
	assert.True(t, toNullableNumeric(&pct).Valid)
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, pgtype.Text{String: "4006381333931", Valid: true}, nullString("4006381333931"))
}

func seedSources(t *testing.T, db *DB) (supplierID, competitorID int64) {
	t.Helper()
	ctx := context.Background()

	err := db.pool.QueryRow(ctx,
		`INSERT INTO suppliers (name, source_type, config) VALUES ('acme', 'local', '{"path":"acme.csv"}') RETURNING id`).Scan(&supplierID)
	require.NoError(t, err)

	_, err = db.Exec(ctx, `INSERT INTO suppliers (name, source_type, is_active) VALUES ('retired', 'http', FALSE)`)
	require.NoError(t, err)

	err = db.pool.QueryRow(ctx,
		`INSERT INTO competitors (name, website, crawl_config) VALUES ('musicstore', 'https://shop.test', '{}') RETURNING id`).Scan(&competitorID)
	require.NoError(t, err)

	return supplierID, competitorID
}

func TestDB_Sources(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	supplierID, competitorID := seedSources(t, db)

	suppliers, err := db.ActiveSuppliers(ctx)
	require.NoError(t, err)
	require.Len(t, suppliers, 1)
	assert.Equal(t, "acme", suppliers[0].Name)
	assert.Equal(t, "local", suppliers[0].Kind)
	assert.Equal(t, `{"path":"acme.csv"}`, suppliers[0].RawConfig)

	s, err := db.GetSupplier(ctx, supplierID)
	require.NoError(t, err)
	assert.Equal(t, "acme", s.Name)

	_, err = db.GetSupplier(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	competitors, err := db.ActiveCompetitors(ctx)
	require.NoError(t, err)
	require.Len(t, competitors, 1)

	c, err := db.GetCompetitor(ctx, competitorID)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test", c.Website)
}

func TestDB_ProductRows(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	supplierID, competitorID := seedSources(t, db)
	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := []models.RawProductRow{
		{RawIdentifier: "YAM-P45", NormalizedIdentifier: "yamp45", Title: "Yamaha P45", Price: decimal.RequireFromString("450.00")},
		{RawIdentifier: "FEN-01", NormalizedIdentifier: "fen01", Title: "Strat", Price: decimal.RequireFromString("1299.00")},
	}
	require.NoError(t, db.ReplaceSupplierProducts(ctx, supplierID, first))

	second := first[:1]
	require.NoError(t, db.ReplaceSupplierProducts(ctx, supplierID, second))

	rows, err := db.SupplierRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1, "replace drops the previous import")
	assert.Equal(t, "acme", rows[0].Source)
	assert.True(t, decimal.RequireFromString("450").Equal(rows[0].Price))

	observed := []models.RawProductRow{{
		RawIdentifier:        "4006381333931",
		NormalizedIdentifier: "4006381333931",
		EAN:                  "4006381333931",
		Title:                "Yamaha P45 88-Key",
		Price:                decimal.RequireFromString("500.00"),
		URL:                  "https://shop.test/p/1",
		FetchedAt:            fetched,
	}}
	require.NoError(t, db.InsertCompetitorPrices(ctx, competitorID, observed))
	require.NoError(t, db.InsertCompetitorPrices(ctx, competitorID, nil))

	crows, err := db.CompetitorRows(ctx)
	require.NoError(t, err)
	require.Len(t, crows, 1)
	assert.Equal(t, "musicstore", crows[0].Source)
	assert.Equal(t, "4006381333931", crows[0].EAN)
	assert.Equal(t, "https://shop.test/p/1", crows[0].URL)
	assert.True(t, fetched.Equal(crows[0].FetchedAt))
}

func TestDB_ReplaceBestAndComparisons(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	best := []models.BestPriceEntry{
		{NormalizedIdentifier: "yamp45", RawIdentifier: "YAM-P45", Title: "Yamaha P45", Price: decimal.RequireFromString("450"), Source: "acme"},
	}
	event, err := NewJobCompletedEvent("import-suppliers", uuid.New(), map[string]int{"acme": 1})
	require.NoError(t, err)

	require.NoError(t, db.ReplaceBestSupplierProducts(ctx, best, event))
	require.NoError(t, db.ReplaceBestSupplierProducts(ctx, best, nil))

	got, err := db.BestSupplierProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "acme", got[0].Source)

	require.NoError(t, db.ReplaceBestCompetitorPrices(ctx, nil, nil))
	empty, err := db.BestCompetitorPrices(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	pct := decimal.RequireFromString("90.00")
	records := []models.ComparisonRecord{
		{NormalizedIdentifier: "a", RawIdentifier: "A", OurPrice: decimal.NewFromInt(450), CompetitorPrice: decimal.NewFromInt(500),
			Difference: decimal.NewFromInt(-50), IsCompetitive: true, CompetitivenessPercentage: &pct},
		{NormalizedIdentifier: "b", RawIdentifier: "B", OurPrice: decimal.NewFromInt(10), CompetitorPrice: decimal.Zero,
			Difference: decimal.NewFromInt(10), IsCompetitive: false},
	}
	require.NoError(t, db.ReplaceComparisons(ctx, records, nil))

	all, err := db.Comparisons(ctx, ComparisonFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].CompetitivenessPercentage)
	assert.True(t, pct.Equal(*all[0].CompetitivenessPercentage))
	assert.Nil(t, all[1].CompetitivenessPercentage)

	yes := true
	competitive, err := db.Comparisons(ctx, ComparisonFilter{Competitive: &yes})
	require.NoError(t, err)
	require.Len(t, competitive, 1)
	assert.Equal(t, "a", competitive[0].NormalizedIdentifier)

	pending, err := NewOutboxRepository(db).GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "import-suppliers", pending[0].AggregateID)
}
