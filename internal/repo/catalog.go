package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/decorluxe/backend-blinds/internal/catalog"
)

// CatalogRepo reads products, pricing matrices and options from Postgres.
type CatalogRepo struct {
	Q Querier
}

var _ catalog.Store = CatalogRepo{}

// Product fetches one product by id.
func (r CatalogRepo) Product(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	const query = `
SELECT id, vendor_id, category_id, brand_id, name, base_price_cents,
       min_width, max_width, min_height, max_height
FROM products
WHERE id = $1 AND deleted_at IS NULL`

	var p catalog.Product
	err := r.Q.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.VendorID, &p.CategoryID, &p.BrandID, &p.Name, &p.BasePriceCents,
		&p.MinWidth, &p.MaxWidth, &p.MinHeight, &p.MaxHeight,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

// MatrixEntries fetches the pricing matrix rows for a product, ordered for
// deterministic overlap reporting.
func (r CatalogRepo) MatrixEntries(ctx context.Context, productID uuid.UUID) ([]catalog.MatrixEntry, error) {
	const query = `
SELECT id, product_id, width_min, width_max, height_min, height_max,
       base_price_cents, price_per_area
FROM pricing_matrix
WHERE product_id = $1
ORDER BY width_min, height_min`

	rows, err := r.Q.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("query pricing matrix: %w", err)
	}
	defer rows.Close()

	var entries []catalog.MatrixEntry
	for rows.Next() {
		var e catalog.MatrixEntry
		var perArea decimal.NullDecimal
		if err := rows.Scan(
			&e.ID, &e.ProductID, &e.WidthMin, &e.WidthMax, &e.HeightMin, &e.HeightMax,
			&e.BasePriceCents, &perArea,
		); err != nil {
			return nil, fmt.Errorf("scan pricing matrix: %w", err)
		}
		if perArea.Valid {
			v := perArea.Decimal
			e.PricePerArea = &v
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Options fetches a product's fabric and control options.
func (r CatalogRepo) Options(ctx context.Context, productID uuid.UUID) ([]catalog.ProductOption, error) {
	const query = `
SELECT id, product_id, kind, name, surcharge_cents, per_area_rate,
       band_width_min, band_width_max
FROM product_options
WHERE product_id = $1
ORDER BY kind, name`

	rows, err := r.Q.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("query product options: %w", err)
	}
	defer rows.Close()

	var options []catalog.ProductOption
	for rows.Next() {
		var o catalog.ProductOption
		var perArea decimal.NullDecimal
		if err := rows.Scan(
			&o.ID, &o.ProductID, &o.Kind, &o.Name, &o.SurchargeCents, &perArea,
			&o.BandWidthMin, &o.BandWidthMax,
		); err != nil {
			return nil, fmt.Errorf("scan product option: %w", err)
		}
		if perArea.Valid {
			v := perArea.Decimal
			o.PerAreaRate = &v
		}
		options = append(options, o)
	}
	return options, rows.Err()
}
