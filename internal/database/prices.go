package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/maltedev/pricewatch/internal/models"
)

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func toNullableNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return toNumeric(*d)
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func nullString(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// ReplaceSupplierProducts swaps one supplier's imported rows for rows.
// Other suppliers are untouched.
func (db *DB) ReplaceSupplierProducts(ctx context.Context, supplierID int64, rows []models.RawProductRow) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM supplier_products WHERE supplier_id = $1", supplierID); err != nil {
			return fmt.Errorf("failed to delete supplier products: %w", err)
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"supplier_products"},
			[]string{"supplier_id", "sku", "normalized_sku", "product_title", "price", "imported_at"},
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				r := rows[i]
				return []any{supplierID, r.RawIdentifier, r.NormalizedIdentifier, r.Title, toNumeric(r.Price), fetchedAt(r)}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy supplier products: %w", err)
		}
		return nil
	})
}

// InsertCompetitorPrices appends price observations for one competitor.
func (db *DB) InsertCompetitorPrices(ctx context.Context, competitorID int64, rows []models.RawProductRow) error {
	if len(rows) == 0 {
		return nil
	}

	_, err := db.pool.CopyFrom(ctx,
		pgx.Identifier{"competitor_prices"},
		[]string{"competitor_id", "sku", "normalized_sku", "ean", "product_title", "sale_price", "product_url", "scraped_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{competitorID, r.RawIdentifier, r.NormalizedIdentifier, nullString(r.EAN), r.Title, toNumeric(r.Price), nullString(r.URL), fetchedAt(r)}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy competitor prices: %w", err)
	}
	return nil
}

func fetchedAt(r models.RawProductRow) time.Time {
	if r.FetchedAt.IsZero() {
		return time.Now()
	}
	return r.FetchedAt
}

// SupplierRows returns every imported supplier row of active suppliers,
// tagged with the supplier name.
func (db *DB) SupplierRows(ctx context.Context) ([]models.RawProductRow, error) {
	query := `
		SELECT p.sku, p.normalized_sku, '', p.product_title, p.price, '', s.name, p.imported_at
		FROM supplier_products p
		JOIN suppliers s ON s.id = p.supplier_id
		WHERE s.is_active
		ORDER BY p.id`

	return db.queryRows(ctx, query)
}

// CompetitorRows returns the latest observation per competitor and
// product of active competitors.
func (db *DB) CompetitorRows(ctx context.Context) ([]models.RawProductRow, error) {
	query := `
		SELECT DISTINCT ON (p.competitor_id, p.normalized_sku)
			p.sku, p.normalized_sku, COALESCE(p.ean, ''), p.product_title, p.sale_price,
			COALESCE(p.product_url, ''), c.name, p.scraped_at
		FROM competitor_prices p
		JOIN competitors c ON c.id = p.competitor_id
		WHERE c.is_active
		ORDER BY p.competitor_id, p.normalized_sku, p.scraped_at DESC, p.id DESC`

	return db.queryRows(ctx, query)
}

func (db *DB) queryRows(ctx context.Context, query string) ([]models.RawProductRow, error) {
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RawProductRow, error) {
		var r models.RawProductRow
		var price pgtype.Numeric
		err := row.Scan(&r.RawIdentifier, &r.NormalizedIdentifier, &r.EAN, &r.Title, &price, &r.URL, &r.Source, &r.FetchedAt)
		r.Price = fromNumeric(price)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rows: %w", err)
	}
	return out, nil
}

// ReplaceBestSupplierProducts truncates and rebuilds the supplier best
// prices. event, when set, is stored in the same transaction.
func (db *DB) ReplaceBestSupplierProducts(ctx context.Context, entries []models.BestPriceEntry, event *OutboxEvent) error {
	return db.replaceBest(ctx, "best_supplier_products", "supplier_name", entries, event)
}

func (db *DB) ReplaceBestCompetitorPrices(ctx context.Context, entries []models.BestPriceEntry, event *OutboxEvent) error {
	return db.replaceBest(ctx, "best_competitor_prices", "competitor_name", entries, event)
}

func (db *DB) replaceBest(ctx context.Context, table, sourceColumn string, entries []models.BestPriceEntry, event *OutboxEvent) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "TRUNCATE "+table); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}

		now := time.Now()
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{table},
			[]string{"normalized_sku", "sku", "product_title", "price", sourceColumn, "updated_at"},
			pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
				e := entries[i]
				return []any{e.NormalizedIdentifier, e.RawIdentifier, e.Title, toNumeric(e.Price), e.Source, now}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy %s: %w", table, err)
		}

		return insertEvent(ctx, tx, event)
	})
}

func (db *DB) BestSupplierProducts(ctx context.Context) ([]models.BestPriceEntry, error) {
	return db.queryBest(ctx, `
		SELECT normalized_sku, sku, product_title, price, supplier_name
		FROM best_supplier_products
		ORDER BY normalized_sku`)
}

func (db *DB) BestCompetitorPrices(ctx context.Context) ([]models.BestPriceEntry, error) {
	return db.queryBest(ctx, `
		SELECT normalized_sku, sku, product_title, price, competitor_name
		FROM best_competitor_prices
		ORDER BY normalized_sku`)
}

func (db *DB) queryBest(ctx context.Context, query string) ([]models.BestPriceEntry, error) {
	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query best prices: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.BestPriceEntry, error) {
		var e models.BestPriceEntry
		var price pgtype.Numeric
		err := row.Scan(&e.NormalizedIdentifier, &e.RawIdentifier, &e.Title, &price, &e.Source)
		e.Price = fromNumeric(price)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan best prices: %w", err)
	}
	return out, nil
}

// ReplaceComparisons truncates and rebuilds the comparison table.
func (db *DB) ReplaceComparisons(ctx context.Context, records []models.ComparisonRecord, event *OutboxEvent) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "TRUNCATE price_comparisons"); err != nil {
			return fmt.Errorf("failed to truncate price_comparisons: %w", err)
		}

		now := time.Now()
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"price_comparisons"},
			[]string{"normalized_sku", "sku", "product_title", "our_price", "competitor_price",
				"price_difference", "is_competitive", "competitiveness_percentage", "compared_at"},
			pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
				r := records[i]
				return []any{
					r.NormalizedIdentifier, r.RawIdentifier, r.Title,
					toNumeric(r.OurPrice), toNumeric(r.CompetitorPrice), toNumeric(r.Difference),
					r.IsCompetitive, toNullableNumeric(r.CompetitivenessPercentage), now,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy price_comparisons: %w", err)
		}

		return insertEvent(ctx, tx, event)
	})
}

// ComparisonFilter narrows Comparisons. A nil Competitive returns all.
type ComparisonFilter struct {
	Competitive *bool
}

func (db *DB) Comparisons(ctx context.Context, filter ComparisonFilter) ([]models.ComparisonRecord, error) {
	query := `
		SELECT normalized_sku, sku, product_title, our_price, competitor_price,
			price_difference, is_competitive, competitiveness_percentage
		FROM price_comparisons
		WHERE ($1::boolean IS NULL OR is_competitive = $1)
		ORDER BY normalized_sku`

	var competitive pgtype.Bool
	if filter.Competitive != nil {
		competitive = pgtype.Bool{Bool: *filter.Competitive, Valid: true}
	}

	rows, err := db.pool.Query(ctx, query, competitive)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparisons: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ComparisonRecord, error) {
		var r models.ComparisonRecord
		var ours, theirs, diff, pct pgtype.Numeric
		err := row.Scan(&r.NormalizedIdentifier, &r.RawIdentifier, &r.Title, &ours, &theirs, &diff, &r.IsCompetitive, &pct)
		r.OurPrice = fromNumeric(ours)
		r.CompetitorPrice = fromNumeric(theirs)
		r.Difference = fromNumeric(diff)
		if pct.Valid {
			p := fromNumeric(pct)
			r.CompetitivenessPercentage = &p
		}
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan comparisons: %w", err)
	}
	return out, nil
}

// InsertEvent stores an outbox event on its own.
func (db *DB) InsertEvent(ctx context.Context, event *OutboxEvent) error {
	return NewOutboxRepository(db).Insert(ctx, event)
}

func insertEvent(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if event == nil {
		return nil
	}
	return (&OutboxRepository{}).InsertWithTx(ctx, tx, event)
}
