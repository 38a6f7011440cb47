package discount

import (
	"sort"

	"github.com/decorluxe/backend-blinds/internal/cart"
	"github.com/decorluxe/backend-blinds/internal/common"
)

// Policy is the explicit stacking policy the resolver composes discounts
// under. It replaces per-row boolean flags scattered across the promotions
// tables with one testable value object.
type Policy struct {
	// VendorDiscountCouponStackable forces a vendor's automatic discount and
	// coupon to stack even when the discount row does not opt in.
	VendorDiscountCouponStackable bool
}

// Resolution is the outcome of stacking for one vendor bucket.
type Resolution struct {
	Applied    []cart.AppliedDiscount
	Exclusions []cart.Exclusion
	// VendorFundedCents reduce the vendor's commission base; platform-funded
	// campaign amounts do not.
	VendorFundedCents   common.Cents
	PlatformFundedCents common.Cents
	BucketAfter         common.Cents
}

// Resolver orders and composes eligible discounts for a vendor bucket.
type Resolver struct {
	Policy Policy
}

// Resolve applies the stacking rules:
//   - at most one VendorDiscount and one VendorCoupon per bucket; when the
//     vendor does not allow stacking the larger of the two wins
//   - at most one GlobalCampaign per bucket, gated by its stack flags against
//     the vendor-level discounts present; lowest priority value wins, ties
//     break toward the larger amount, then campaign code
//   - tiered discounts apply first, then percentages, then fixed amounts,
//     each against the remaining scoped subtotal
//   - the bucket never goes negative
func (r Resolver) Resolve(bucket cart.VendorBucket, candidates []Candidate) Resolution {
	var res Resolution

	var vendorDiscounts, coupons, campaigns []Candidate
	for _, c := range candidates {
		switch c.Source.SourceType() {
		case cart.SourceVendorDiscount:
			vendorDiscounts = append(vendorDiscounts, c)
		case cart.SourceVendorCoupon:
			coupons = append(coupons, c)
		case cart.SourceGlobalCampaign:
			campaigns = append(campaigns, c)
		}
	}

	bestDiscount, discountLosers := pickLargest(vendorDiscounts)
	bestCoupon, couponLosers := pickLargest(coupons)
	for _, loser := range discountLosers {
		res.Exclusions = append(res.Exclusions, exclusionFor(loser.Source, ReasonStackingConflict))
	}
	for _, loser := range couponLosers {
		res.Exclusions = append(res.Exclusions, exclusionFor(loser.Source, ReasonStackingConflict))
	}

	if bestDiscount != nil && bestCoupon != nil && !r.vendorStackAllowed(*bestDiscount) {
		// Exclusivity resolves in the customer's favour; ties keep the
		// automatic discount so the coupon stays redeemable elsewhere.
		if bestCoupon.AloneAmount > bestDiscount.AloneAmount {
			res.Exclusions = append(res.Exclusions, exclusionFor(bestDiscount.Source, ReasonStackingConflict))
			bestDiscount = nil
		} else {
			res.Exclusions = append(res.Exclusions, exclusionFor(bestCoupon.Source, ReasonStackingConflict))
			bestCoupon = nil
		}
	}

	bestCampaign := r.pickCampaign(campaigns, bestDiscount, bestCoupon, &res)

	order := applicationOrder(bestDiscount, bestCoupon, bestCampaign)

	remaining := bucket.SubtotalCents()
	for _, c := range order {
		before := remaining
		amount := sequentialAmount(c, remaining)
		if amount <= 0 {
			continue
		}
		remaining -= amount
		if remaining < 0 {
			amount += remaining
			remaining = 0
		}

		vendorFunded := c.Source.SourceType() != cart.SourceGlobalCampaign
		if vendorFunded {
			res.VendorFundedCents += amount
		} else {
			res.PlatformFundedCents += amount
		}

		applied := cart.AppliedDiscount{
			SourceType:   c.Source.SourceType(),
			SourceID:     c.Source.SourceID(),
			Name:         c.Source.DisplayName(),
			Code:         c.Source.CouponCode(),
			DiscountKind: string(c.Source.DiscountKind()),
			AmountCents:  amount,
			LineIDs:      c.LineIDs,
			BucketBefore: before,
			BucketAfter:  remaining,
			VendorFunded: vendorFunded,
		}
		if v := c.Source.Vendor(); v != nil {
			vendor := *v
			applied.VendorID = &vendor
		} else {
			vendor := bucket.VendorID
			applied.VendorID = &vendor
		}
		res.Applied = append(res.Applied, applied)
	}

	res.BucketAfter = remaining
	return res
}

func (r Resolver) vendorStackAllowed(discount Candidate) bool {
	if r.Policy.VendorDiscountCouponStackable {
		return true
	}
	vd, ok := discount.Source.(VendorDiscount)
	return ok && vd.StackableWithCoupon
}

// pickCampaign filters campaigns by stacking flags against the vendor-level
// discounts chosen for the bucket, then resolves mutual exclusion.
func (r Resolver) pickCampaign(campaigns []Candidate, vendorDiscount, coupon *Candidate, res *Resolution) *Candidate {
	var eligible []Candidate
	for _, c := range campaigns {
		campaign, ok := c.Source.(GlobalCampaign)
		if !ok {
			continue
		}
		if vendorDiscount != nil && !campaign.CanStackWithVolume {
			res.Exclusions = append(res.Exclusions, exclusionFor(c.Source, ReasonStackingConflict))
			continue
		}
		if coupon != nil && !campaign.CanStackWithCoupons {
			res.Exclusions = append(res.Exclusions, exclusionFor(c.Source, ReasonStackingConflict))
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a := eligible[i].Source.(GlobalCampaign)
		b := eligible[j].Source.(GlobalCampaign)
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if eligible[i].AloneAmount != eligible[j].AloneAmount {
			return eligible[i].AloneAmount > eligible[j].AloneAmount
		}
		return a.Code < b.Code
	})
	for _, loser := range eligible[1:] {
		res.Exclusions = append(res.Exclusions, exclusionFor(loser.Source, ReasonStackingConflict))
	}
	return &eligible[0]
}

// applicationOrder sequences the chosen discounts: tiered volume discounts
// reflect list pricing and go first, then percentages, then fixed amounts.
// Within a band the vendor discount precedes the coupon precedes the
// campaign, keeping results independent of admin entry order.
func applicationOrder(chosen ...*Candidate) []Candidate {
	var tiered, percentage, fixed []Candidate
	for _, c := range chosen {
		if c == nil {
			continue
		}
		switch c.Source.DiscountKind() {
		case KindTiered:
			tiered = append(tiered, *c)
		case KindPercentage:
			percentage = append(percentage, *c)
		case KindFixedAmount:
			fixed = append(fixed, *c)
		}
	}
	out := make([]Candidate, 0, len(tiered)+len(percentage)+len(fixed))
	out = append(out, tiered...)
	out = append(out, percentage...)
	out = append(out, fixed...)
	return out
}

// sequentialAmount recomputes a candidate's amount against what remains of
// its scoped subtotal after earlier discounts, so 20%-then-$10 differs from
// $10-then-20%.
func sequentialAmount(c Candidate, bucketRemaining common.Cents) common.Cents {
	scoped := c.ScopedSubtotal
	if scoped > bucketRemaining {
		scoped = bucketRemaining
	}
	if scoped <= 0 {
		return 0
	}
	var amount common.Cents
	switch c.Source.DiscountKind() {
	case KindPercentage:
		amount = common.PercentOf(scoped, c.Source.ValueBps())
	case KindFixedAmount:
		amount = common.ClampCents(c.Source.ValueCents(), scoped)
	case KindTiered:
		vd, ok := c.Source.(VendorDiscount)
		if !ok {
			return 0
		}
		tier, ok := selectTier(vd.Tiers, c.ScopedQuantity)
		if !ok {
			return 0
		}
		amount = common.PercentOf(scoped, tier.DiscountBps)
	}
	if cap := c.Source.MaxDiscountCents(); cap != nil && amount > *cap {
		amount = *cap
	}
	return common.ClampCents(amount, scoped)
}

func pickLargest(candidates []Candidate) (*Candidate, []Candidate) {
	if len(candidates) == 0 {
		return nil, nil
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].AloneAmount > candidates[best].AloneAmount {
			best = i
		}
	}
	winner := candidates[best]
	losers := make([]Candidate, 0, len(candidates)-1)
	for i, c := range candidates {
		if i != best {
			losers = append(losers, c)
		}
	}
	return &winner, losers
}
