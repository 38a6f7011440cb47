package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/decorluxe/backend-blinds/internal/cart"
	"github.com/decorluxe/backend-blinds/internal/catalog"
	"github.com/decorluxe/backend-blinds/internal/commission"
	"github.com/decorluxe/backend-blinds/internal/common"
	"github.com/decorluxe/backend-blinds/internal/discount"
	"github.com/decorluxe/backend-blinds/internal/events"
	"github.com/decorluxe/backend-blinds/internal/lock"
	"github.com/decorluxe/backend-blinds/internal/obs"
	"github.com/decorluxe/backend-blinds/internal/pricing"
	"github.com/decorluxe/backend-blinds/internal/redemption"
)

// Engine composes the pricing resolver, discount pipeline, commission
// calculator and redemption ledger into the two operations the API exposes:
// quoting a cart and settling an order.
type Engine struct {
	Catalog    *catalog.Service
	Reader     discount.CatalogReader
	Policy     discount.Policy
	Redemption redemption.Ledger
	Calculator commission.Calculator
	Records    commission.Ledger
	Locker     lock.Locker
	Bus        *events.Bus
	Now        func() time.Time
}

// Settlement is the durable outcome of settling one order.
type Settlement struct {
	OrderID        uuid.UUID           `json:"order_id"`
	Records        []commission.Record `json:"records"`
	AlreadySettled bool                `json:"already_settled"`
}

// bucketOutcome carries the per-vendor stacking result forward to settlement.
type bucketOutcome struct {
	VendorID       uuid.UUID
	Subtotal       common.Cents
	VendorFunded   common.Cents
	PlatformFunded common.Cents
	Coupons        []discount.VendorCoupon
	Campaigns      []discount.GlobalCampaign
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// ComputePricedCart prices every line, gathers discount candidates, filters
// and stacks them per vendor bucket and returns the fully priced cart. Any
// failure aborts the whole computation; a quote never silently drops a line.
func (e *Engine) ComputePricedCart(ctx context.Context, snap cart.Snapshot, codes []string) (cart.PricedCart, error) {
	priced, _, err := e.compute(ctx, snap, codes)
	return priced, err
}

func (e *Engine) compute(ctx context.Context, snap cart.Snapshot, codes []string) (cart.PricedCart, []bucketOutcome, error) {
	if len(snap.Lines) == 0 {
		return cart.PricedCart{}, nil, cart.ErrEmptySnapshot
	}
	now := e.now()
	log := zerolog.Ctx(ctx)

	lines := make([]cart.LineItem, len(snap.Lines))
	copy(lines, snap.Lines)
	for i := range lines {
		if err := e.priceLine(ctx, &lines[i]); err != nil {
			countQuote("error")
			return cart.PricedCart{}, nil, err
		}
	}

	enriched := snap
	enriched.Lines = lines
	candidates, err := e.Reader.Read(ctx, discount.ContextFromSnapshot(enriched, now), codes)
	if err != nil {
		countQuote("error")
		return cart.PricedCart{}, nil, err
	}
	sources := flattenSources(candidates)

	priced := cart.PricedCart{
		SnapshotID: snap.ID,
		CustomerID: snap.CustomerID,
		Lines:      lines,
	}
	var outcomes []bucketOutcome

	for _, bucket := range cart.BucketsByVendor(lines) {
		eligible, excluded := discount.EvaluateBucket(bucket, sources, snap.CustomerType, now)
		res := discount.Resolver{Policy: e.Policy}.Resolve(bucket, eligible)

		priced.Applied = append(priced.Applied, res.Applied...)
		priced.Exclusions = append(priced.Exclusions, excluded...)
		priced.Exclusions = append(priced.Exclusions, res.Exclusions...)

		outcome := bucketOutcome{
			VendorID:       bucket.VendorID,
			Subtotal:       bucket.SubtotalCents(),
			VendorFunded:   res.VendorFundedCents,
			PlatformFunded: res.PlatformFundedCents,
		}
		for _, applied := range res.Applied {
			countApplied(applied)
			switch applied.SourceType {
			case cart.SourceVendorCoupon:
				if coupon, ok := findCoupon(candidates.Coupons, applied.SourceID); ok {
					outcome.Coupons = append(outcome.Coupons, coupon)
				}
			case cart.SourceGlobalCampaign:
				if campaign, ok := findCampaign(candidates.Campaigns, applied.SourceID); ok {
					outcome.Campaigns = append(outcome.Campaigns, campaign)
				}
			}
		}
		outcomes = append(outcomes, outcome)
	}
	for _, excl := range priced.Exclusions {
		countExcluded(excl)
	}

	priced.Totals()
	countQuote("ok")
	log.Debug().
		Str("snapshot_id", snap.ID.String()).
		Int64("subtotal_cents", priced.SubtotalCents).
		Int64("discount_cents", priced.TotalDiscountCents).
		Int("applied", len(priced.Applied)).
		Int("excluded", len(priced.Exclusions)).
		Msg("cart priced")

	if e.Bus != nil && snap.ID != uuid.Nil {
		_, _ = e.Bus.Emit(ctx, events.TopicQuoteComputed, snap.ID, map[string]any{
			"subtotalCents":   priced.SubtotalCents,
			"discountCents":   priced.TotalDiscountCents,
			"grandTotalCents": priced.GrandTotalCents,
		})
	}
	return priced, outcomes, nil
}

func (e *Engine) priceLine(ctx context.Context, li *cart.LineItem) error {
	product, err := e.Catalog.Product(ctx, li.ProductID)
	if err != nil {
		return fmt.Errorf("line %s: %w", li.ID, err)
	}
	entries, err := e.Catalog.MatrixEntries(ctx, li.ProductID)
	if err != nil {
		return fmt.Errorf("line %s: %w", li.ID, err)
	}
	options, err := e.Catalog.Options(ctx, li.ProductID)
	if err != nil {
		return fmt.Errorf("line %s: %w", li.ID, err)
	}

	quote, err := pricing.Resolve(product, entries, options, li.Width, li.Height, li.SelectedOptionIDs)
	if err != nil {
		return mapPricingError(li.ID, err)
	}
	li.VendorID = product.VendorID
	if li.CategoryID == nil {
		li.CategoryID = product.CategoryID
	}
	if li.BrandID == nil {
		li.BrandID = product.BrandID
	}
	li.UnitPriceCents = quote.UnitPriceCents
	li.OptionSurchargeCents = quote.OptionSurchargeCents
	return nil
}

// ReserveAndSettle settles an order: it reprices the snapshot, reserves any
// coupon usages, writes one commission record per vendor bucket and commits
// the reservations. Settlement is idempotent per (order, vendor); re-settling
// a fully settled order returns the stored records without moving counters.
func (e *Engine) ReserveAndSettle(ctx context.Context, orderID uuid.UUID, snap cart.Snapshot, codes []string) (Settlement, error) {
	if orderID == uuid.Nil {
		return Settlement{}, errors.New("engine: order id is required")
	}

	var out Settlement
	err := e.Locker.WithLock(ctx, "settle:order:"+orderID.String(), 30*time.Second, func(ctx context.Context) error {
		var err error
		out, err = e.settleLocked(ctx, orderID, snap, codes)
		return err
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return Settlement{}, common.Conflict(common.CodeConcurrencyConflict,
			"order is being settled by another request, retry", err)
	}
	return out, err
}

func (e *Engine) settleLocked(ctx context.Context, orderID uuid.UUID, snap cart.Snapshot, codes []string) (Settlement, error) {
	log := zerolog.Ctx(ctx)

	existing, err := e.Records.ByOrder(ctx, orderID)
	if err != nil {
		return Settlement{}, fmt.Errorf("settlement lookup: %w", err)
	}
	settled := make(map[uuid.UUID]commission.Record, len(existing))
	for _, rec := range existing {
		settled[rec.VendorID] = rec
	}

	_, outcomes, err := e.compute(ctx, snap, codes)
	if err != nil {
		return Settlement{}, err
	}

	if len(settled) == len(outcomes) && len(outcomes) > 0 {
		return Settlement{OrderID: orderID, Records: existing, AlreadySettled: true}, nil
	}

	result := Settlement{OrderID: orderID}
	var reservations []redemption.Reservation
	releaseAll := func() {
		for _, rsv := range reservations {
			if err := e.Redemption.Release(context.WithoutCancel(ctx), rsv); err != nil {
				log.Error().Err(err).Str("token", rsv.Token).Msg("release reservation failed")
			}
		}
	}

	for _, outcome := range outcomes {
		if rec, ok := settled[outcome.VendorID]; ok {
			result.Records = append(result.Records, rec)
			continue
		}

		var bucketReservations []redemption.Reservation
		for _, coupon := range outcome.Coupons {
			rsv, err := e.Redemption.Reserve(ctx, couponHold(coupon, orderID, snap.CustomerID))
			if err != nil {
				releaseAll()
				countSettlement("error", 0)
				return Settlement{}, mapRedemptionError(err)
			}
			reservations = append(reservations, rsv)
			bucketReservations = append(bucketReservations, rsv)
		}
		for _, campaign := range outcome.Campaigns {
			if campaign.UsageLimit == nil {
				continue
			}
			rsv, err := e.Redemption.Reserve(ctx, campaignHold(campaign, orderID))
			if err != nil {
				releaseAll()
				countSettlement("error", 0)
				return Settlement{}, mapRedemptionError(err)
			}
			reservations = append(reservations, rsv)
			bucketReservations = append(bucketReservations, rsv)
		}

		rec, err := e.Calculator.Compute(ctx, orderID, outcome.VendorID, outcome.Subtotal, outcome.VendorFunded, outcome.PlatformFunded)
		if err != nil {
			releaseAll()
			countSettlement("error", 0)
			if errors.Is(err, commission.ErrRateMissing) {
				return Settlement{}, common.NewAppError(common.CodeCommissionRateMissing,
					"vendor has no commission rate configured", http.StatusUnprocessableEntity, err)
			}
			return Settlement{}, err
		}

		stored, inserted, err := e.Records.Append(ctx, rec)
		if err != nil {
			releaseAll()
			countSettlement("error", 0)
			return Settlement{}, fmt.Errorf("append commission record: %w", err)
		}
		if inserted {
			for _, rsv := range bucketReservations {
				if err := e.Redemption.Commit(ctx, rsv); err != nil {
					log.Error().Err(err).Str("token", rsv.Token).Msg("commit reservation failed")
				}
			}
			countSettlement("ok", float64(stored.BucketSubtotalCents))
			if e.Bus != nil {
				_, _ = e.Bus.Emit(ctx, events.TopicSettlementRecorded, orderID, map[string]any{
					"vendorId":           stored.VendorID,
					"commissionCents":    stored.CommissionCents,
					"vendorPayableCents": stored.VendorPayableCents,
				})
			}
		} else {
			// Another writer settled this bucket between our lookup and the
			// insert. Their record wins; our reservations roll back.
			for _, rsv := range bucketReservations {
				if err := e.Redemption.Release(ctx, rsv); err != nil {
					log.Error().Err(err).Str("token", rsv.Token).Msg("release reservation failed")
				}
			}
			countSettlement("duplicate", 0)
		}
		result.Records = append(result.Records, stored)
	}

	return result, nil
}

// couponHold carries the coupon's absolute limits and the database counters
// read at quote time into the ledger, which seeds its mirrors from them.
func couponHold(coupon discount.VendorCoupon, orderID uuid.UUID, customerID *uuid.UUID) redemption.Hold {
	h := redemption.Hold{
		SourceID:         coupon.ID,
		OrderID:          orderID,
		CustomerID:       customerID,
		UsageLimit:       limitValue(coupon.UsageLimit),
		UsageCount:       coupon.UsageCount,
		PerCustomerLimit: -1,
	}
	if customerID != nil && coupon.PerCustomerLimit != nil {
		h.PerCustomerLimit = *coupon.PerCustomerLimit
		h.PerCustomerUsed = coupon.PerCustomerUsed
	}
	return h
}

func campaignHold(campaign discount.GlobalCampaign, orderID uuid.UUID) redemption.Hold {
	return redemption.Hold{
		SourceID:         campaign.ID,
		OrderID:          orderID,
		UsageLimit:       limitValue(campaign.UsageLimit),
		UsageCount:       campaign.UsageCount,
		PerCustomerLimit: -1,
	}
}

func limitValue(limit *int32) int32 {
	if limit == nil {
		return -1
	}
	return *limit
}

func mapPricingError(lineID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, pricing.ErrInvalidDimension):
		return common.BadInput(common.CodeInvalidDimension,
			fmt.Sprintf("line %s: dimensions outside the product's allowed range", lineID), err)
	case errors.Is(err, pricing.ErrNoMatrixMatch):
		return common.BadInput(common.CodeNoPricingMatrixMatch,
			fmt.Sprintf("line %s: no pricing matrix entry covers the requested dimensions", lineID), err)
	case errors.Is(err, pricing.ErrMatrixOverlap):
		return common.NewAppError(common.CodePricingMatrixOverlap,
			"pricing matrix integrity violation", http.StatusInternalServerError, err)
	default:
		return err
	}
}

func mapRedemptionError(err error) error {
	switch {
	case errors.Is(err, redemption.ErrLimitExceeded):
		return common.Conflict(common.CodeUsageLimitExceeded, "coupon usage limit exceeded", err)
	case errors.Is(err, redemption.ErrAlreadyRedeemed):
		return common.Conflict(common.CodeCouponAlreadyRedeemed, "coupon already redeemed by this customer", err)
	case errors.Is(err, redemption.ErrConflict):
		return common.Conflict(common.CodeConcurrencyConflict, "concurrent redemption conflict, retry", err)
	default:
		return err
	}
}

func flattenSources(c discount.Candidates) []discount.Source {
	out := make([]discount.Source, 0, len(c.VendorDiscounts)+len(c.Coupons)+len(c.Campaigns))
	for _, d := range c.VendorDiscounts {
		out = append(out, d)
	}
	for _, coupon := range c.Coupons {
		out = append(out, coupon)
	}
	for _, campaign := range c.Campaigns {
		out = append(out, campaign)
	}
	return out
}

func findCoupon(coupons []discount.VendorCoupon, id uuid.UUID) (discount.VendorCoupon, bool) {
	for _, c := range coupons {
		if c.ID == id {
			return c, true
		}
	}
	return discount.VendorCoupon{}, false
}

func findCampaign(campaigns []discount.GlobalCampaign, id uuid.UUID) (discount.GlobalCampaign, bool) {
	for _, c := range campaigns {
		if c.ID == id {
			return c, true
		}
	}
	return discount.GlobalCampaign{}, false
}

func countQuote(result string) {
	if obs.QuoteTotal != nil {
		obs.QuoteTotal.WithLabelValues(result).Inc()
	}
}

func countApplied(applied cart.AppliedDiscount) {
	if obs.DiscountAppliedTotal != nil {
		obs.DiscountAppliedTotal.WithLabelValues(string(applied.SourceType), applied.DiscountKind).Inc()
	}
}

func countExcluded(excl cart.Exclusion) {
	if obs.DiscountExcludedTotal != nil {
		obs.DiscountExcludedTotal.WithLabelValues(string(excl.SourceType), excl.Reason).Inc()
	}
}

func countSettlement(result string, amountCents float64) {
	if obs.SettlementTotal != nil {
		obs.SettlementTotal.WithLabelValues(result).Inc()
	}
	if result == "ok" && obs.SettlementAmount != nil {
		obs.SettlementAmount.WithLabelValues(result).Observe(amountCents)
	}
}
