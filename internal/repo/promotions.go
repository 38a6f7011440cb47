package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/decorluxe/backend-blinds/internal/cart"
	"github.com/decorluxe/backend-blinds/internal/discount"
)

// PromotionsRepo reads discount candidates and commits coupon usage.
type PromotionsRepo struct {
	Q Querier
}

var _ discount.Store = PromotionsRepo{}

// ActiveVendorDiscounts returns automatic discounts for the given vendors
// whose validity window includes now.
func (r PromotionsRepo) ActiveVendorDiscounts(ctx context.Context, vendorIDs []uuid.UUID, now time.Time) ([]discount.VendorDiscount, error) {
	if len(vendorIDs) == 0 {
		return nil, nil
	}
	const query = `
SELECT id, vendor_id, name, kind, value_bps, value_cents, max_discount_cents,
       scope, target_ids, min_order_value_cents, customer_types,
       valid_from, valid_until, requires_admin_approval, approved,
       stackable_with_coupon, tiers
FROM vendor_discounts
WHERE vendor_id = ANY($1)
  AND is_active
  AND valid_from <= $2
  AND (valid_until IS NULL OR valid_until >= $2)`

	rows, err := r.Q.Query(ctx, query, vendorIDs, now)
	if err != nil {
		return nil, fmt.Errorf("query vendor discounts: %w", err)
	}
	defer rows.Close()

	var out []discount.VendorDiscount
	for rows.Next() {
		var d discount.VendorDiscount
		var customerTypes []string
		var tiers []byte
		if err := rows.Scan(
			&d.ID, &d.VendorID, &d.Name, &d.Kind, &d.Bps, &d.AmountCents, &d.MaxDiscount,
			&d.Eligibility.Scope, &d.Eligibility.TargetIDs, &d.Eligibility.MinOrderValueCents, &customerTypes,
			&d.Eligibility.ValidFrom, &d.Eligibility.ValidUntil, &d.RequiresAdminApproval, &d.Approved,
			&d.StackableWithCoupon, &tiers,
		); err != nil {
			return nil, fmt.Errorf("scan vendor discount: %w", err)
		}
		d.Eligibility.CustomerTypes = toCustomerTypes(customerTypes)
		if len(tiers) > 0 {
			if err := json.Unmarshal(tiers, &d.Tiers); err != nil {
				return nil, fmt.Errorf("decode tiers for discount %s: %w", d.ID, err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CouponsByCodes returns coupons matching the normalized codes. Codes are
// stored lowercased so the match is case-insensitive and exact.
func (r PromotionsRepo) CouponsByCodes(ctx context.Context, codes []string) ([]discount.VendorCoupon, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	const query = `
SELECT id, vendor_id, code, name, kind, value_bps, value_cents, max_discount_cents,
       scope, target_ids, min_order_value_cents, customer_types,
       valid_from, valid_until, usage_limit, usage_count, per_customer_limit
FROM vendor_coupons
WHERE lower(code) = ANY($1) AND is_active`

	rows, err := r.Q.Query(ctx, query, codes)
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	var out []discount.VendorCoupon
	for rows.Next() {
		var c discount.VendorCoupon
		var customerTypes []string
		if err := rows.Scan(
			&c.ID, &c.VendorID, &c.Code, &c.Name, &c.Kind, &c.Bps, &c.AmountCents, &c.MaxDiscount,
			&c.Eligibility.Scope, &c.Eligibility.TargetIDs, &c.Eligibility.MinOrderValueCents, &customerTypes,
			&c.Eligibility.ValidFrom, &c.Eligibility.ValidUntil, &c.UsageLimit, &c.UsageCount, &c.PerCustomerLimit,
		); err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		c.Eligibility.CustomerTypes = toCustomerTypes(customerTypes)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ActiveCampaigns returns platform campaigns whose validity window includes now.
func (r PromotionsRepo) ActiveCampaigns(ctx context.Context, now time.Time) ([]discount.GlobalCampaign, error) {
	const query = `
SELECT id, code, name, kind, value_bps, value_cents, max_discount_cents,
       scope, target_ids, min_order_value_cents, customer_types,
       valid_from, valid_until, requires_code, can_stack_with_volume,
       can_stack_with_coupons, priority, usage_limit, usage_count
FROM global_campaigns
WHERE is_active
  AND valid_from <= $1
  AND (valid_until IS NULL OR valid_until >= $1)`

	rows, err := r.Q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []discount.GlobalCampaign
	for rows.Next() {
		var g discount.GlobalCampaign
		var customerTypes []string
		if err := rows.Scan(
			&g.ID, &g.Code, &g.Name, &g.Kind, &g.Bps, &g.AmountCents, &g.MaxDiscount,
			&g.Eligibility.Scope, &g.Eligibility.TargetIDs, &g.Eligibility.MinOrderValueCents, &customerTypes,
			&g.Eligibility.ValidFrom, &g.Eligibility.ValidUntil, &g.RequiresCode, &g.CanStackWithVolume,
			&g.CanStackWithCoupons, &g.Priority, &g.UsageLimit, &g.UsageCount,
		); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		g.Eligibility.CustomerTypes = toCustomerTypes(customerTypes)
		out = append(out, g)
	}
	return out, rows.Err()
}

// PerCustomerUsage counts committed redemptions of a source by one customer.
func (r PromotionsRepo) PerCustomerUsage(ctx context.Context, sourceID, customerID uuid.UUID) (int32, error) {
	const query = `SELECT count(*) FROM coupon_usage WHERE source_id = $1 AND customer_id = $2`
	var n int32
	if err := r.Q.QueryRow(ctx, query, sourceID, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("query coupon usage: %w", err)
	}
	return n, nil
}

// CommitUsage durably records one redemption and bumps the source's counter.
// The (source, order) pair is unique so settlement replays are no-ops.
func (r PromotionsRepo) CommitUsage(ctx context.Context, sourceID uuid.UUID, customerID *uuid.UUID, orderID uuid.UUID) error {
	const insert = `
INSERT INTO coupon_usage (id, source_id, customer_id, order_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (source_id, order_id) DO NOTHING`

	tag, err := r.Q.Exec(ctx, insert, uuid.New(), sourceID, customerID, orderID)
	if err != nil {
		return fmt.Errorf("insert coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	tag, err = r.Q.Exec(ctx, `UPDATE vendor_coupons SET usage_count = usage_count + 1 WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("bump coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Q.Exec(ctx, `UPDATE global_campaigns SET usage_count = usage_count + 1 WHERE id = $1`, sourceID); err != nil {
			return fmt.Errorf("bump campaign usage: %w", err)
		}
	}
	return nil
}

// UsageCount reads the durable usage counter for a coupon or campaign.
func (r PromotionsRepo) UsageCount(ctx context.Context, sourceID uuid.UUID) (int32, error) {
	const query = `
SELECT usage_count FROM vendor_coupons WHERE id = $1
UNION ALL
SELECT usage_count FROM global_campaigns WHERE id = $1`
	var n int32
	if err := r.Q.QueryRow(ctx, query, sourceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("query usage count: %w", err)
	}
	return n, nil
}

// ActiveCouponIDs lists coupon and campaign ids with usage limits, for the
// reservation sweep.
func (r PromotionsRepo) ActiveCouponIDs(ctx context.Context) ([]uuid.UUID, error) {
	const query = `
SELECT id FROM vendor_coupons WHERE is_active AND usage_limit IS NOT NULL
UNION ALL
SELECT id FROM global_campaigns WHERE is_active AND usage_limit IS NOT NULL`

	rows, err := r.Q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active coupon ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan coupon id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func toCustomerTypes(values []string) []cart.CustomerType {
	if len(values) == 0 {
		return nil
	}
	out := make([]cart.CustomerType, len(values))
	for i, v := range values {
		out[i] = cart.CustomerType(v)
	}
	return out
}
