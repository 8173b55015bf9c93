package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/pricewatch/internal/models"
)

// ActiveSuppliers returns every supplier flagged active, oldest first.
func (db *DB) ActiveSuppliers(ctx context.Context) ([]models.Supplier, error) {
	query := `
		SELECT id, name, source_type, config, is_active, created_at
		FROM suppliers
		WHERE is_active
		ORDER BY id`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query suppliers: %w", err)
	}

	suppliers, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.Supplier, error) {
		return scanSupplier(r)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan suppliers: %w", err)
	}
	return suppliers, nil
}

func (db *DB) GetSupplier(ctx context.Context, id int64) (models.Supplier, error) {
	query := `
		SELECT id, name, source_type, config, is_active, created_at
		FROM suppliers
		WHERE id = $1`

	s, err := scanSupplier(db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return s, fmt.Errorf("supplier %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return s, fmt.Errorf("failed to get supplier: %w", err)
	}
	return s, nil
}

func scanSupplier(row pgx.Row) (models.Supplier, error) {
	var s models.Supplier
	err := row.Scan(&s.ID, &s.Name, &s.Kind, &s.RawConfig, &s.Active, &s.CreatedAt)
	return s, err
}

// ActiveCompetitors returns every competitor flagged active, oldest first.
func (db *DB) ActiveCompetitors(ctx context.Context) ([]models.Competitor, error) {
	query := `
		SELECT id, name, website, crawl_config, is_active, created_at
		FROM competitors
		WHERE is_active
		ORDER BY id`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query competitors: %w", err)
	}

	competitors, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.Competitor, error) {
		return scanCompetitor(r)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan competitors: %w", err)
	}
	return competitors, nil
}

func (db *DB) GetCompetitor(ctx context.Context, id int64) (models.Competitor, error) {
	query := `
		SELECT id, name, website, crawl_config, is_active, created_at
		FROM competitors
		WHERE id = $1`

	c, err := scanCompetitor(db.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return c, fmt.Errorf("competitor %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return c, fmt.Errorf("failed to get competitor: %w", err)
	}
	return c, nil
}

func scanCompetitor(row pgx.Row) (models.Competitor, error) {
	var c models.Competitor
	err := row.Scan(&c.ID, &c.Name, &c.Website, &c.RawConfig, &c.Active, &c.CreatedAt)
	return c, err
}
