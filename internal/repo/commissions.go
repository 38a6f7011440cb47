package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/decorluxe/backend-blinds/internal/commission"
)

// CommissionLedgerRepo persists settlement records. The UNIQUE constraint on
// (order_id, vendor_id) makes Append idempotent under concurrent settlement.
type CommissionLedgerRepo struct {
	Q Querier
}

var _ commission.Ledger = CommissionLedgerRepo{}

// Append inserts the record unless one already exists for the same order and
// vendor, in which case the stored record is returned and inserted is false.
func (r CommissionLedgerRepo) Append(ctx context.Context, rec commission.Record) (commission.Record, bool, error) {
	const insert = `
INSERT INTO commission_records (
	id, order_id, vendor_id, bucket_subtotal_cents, vendor_funded_cents,
	platform_funded_cents, commission_base_cents, commission_rate_bps,
	commission_cents, vendor_payable_cents, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (order_id, vendor_id) DO NOTHING`

	tag, err := r.Q.Exec(ctx, insert,
		rec.ID, rec.OrderID, rec.VendorID, rec.BucketSubtotalCents, rec.VendorFundedCents,
		rec.PlatformFundedCents, rec.CommissionBaseCents, rec.CommissionRateBps,
		rec.CommissionCents, rec.VendorPayableCents, rec.CreatedAt,
	)
	if err != nil {
		return commission.Record{}, false, fmt.Errorf("insert commission record: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return rec, true, nil
	}

	stored, err := r.byOrderVendor(ctx, rec.OrderID, rec.VendorID)
	if err != nil {
		return commission.Record{}, false, err
	}
	return stored, false, nil
}

// ByOrder returns all settlement records for an order.
func (r CommissionLedgerRepo) ByOrder(ctx context.Context, orderID uuid.UUID) ([]commission.Record, error) {
	const query = `
SELECT id, order_id, vendor_id, bucket_subtotal_cents, vendor_funded_cents,
       platform_funded_cents, commission_base_cents, commission_rate_bps,
       commission_cents, vendor_payable_cents, created_at
FROM commission_records
WHERE order_id = $1
ORDER BY created_at`

	rows, err := r.Q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query commission records: %w", err)
	}
	defer rows.Close()

	var out []commission.Record
	for rows.Next() {
		var rec commission.Record
		if err := rows.Scan(
			&rec.ID, &rec.OrderID, &rec.VendorID, &rec.BucketSubtotalCents, &rec.VendorFundedCents,
			&rec.PlatformFundedCents, &rec.CommissionBaseCents, &rec.CommissionRateBps,
			&rec.CommissionCents, &rec.VendorPayableCents, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan commission record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r CommissionLedgerRepo) byOrderVendor(ctx context.Context, orderID, vendorID uuid.UUID) (commission.Record, error) {
	const query = `
SELECT id, order_id, vendor_id, bucket_subtotal_cents, vendor_funded_cents,
       platform_funded_cents, commission_base_cents, commission_rate_bps,
       commission_cents, vendor_payable_cents, created_at
FROM commission_records
WHERE order_id = $1 AND vendor_id = $2`

	var rec commission.Record
	err := r.Q.QueryRow(ctx, query, orderID, vendorID).Scan(
		&rec.ID, &rec.OrderID, &rec.VendorID, &rec.BucketSubtotalCents, &rec.VendorFundedCents,
		&rec.PlatformFundedCents, &rec.CommissionBaseCents, &rec.CommissionRateBps,
		&rec.CommissionCents, &rec.VendorPayableCents, &rec.CreatedAt,
	)
	if err != nil {
		return commission.Record{}, fmt.Errorf("read back commission record: %w", err)
	}
	return rec, nil
}
