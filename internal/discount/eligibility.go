package discount

import (
	"time"

	"github.com/google/uuid"

	"github.com/decorluxe/backend-blinds/internal/cart"
	"github.com/decorluxe/backend-blinds/internal/common"
)

// Exclusion reasons. These travel on the quote response so the storefront can
// explain why a code or automatic discount did not apply.
const (
	ReasonNotStarted       = "not-started"
	ReasonExpired          = "expired"
	ReasonScopeMismatch    = "scope-mismatch"
	ReasonMinOrderNotMet   = "min-order-not-met"
	ReasonMinQtyNotMet     = "min-quantity-not-met"
	ReasonCustomerType     = "customer-type-mismatch"
	ReasonUsageExhausted   = "usage-exhausted"
	ReasonPendingApproval  = "pending-approval"
	ReasonStackingConflict = "stacking-conflict"
)

// Candidate is an eligible discount annotated with the lines it may touch and
// the amount it would yield if applied alone to its scoped subtotal.
type Candidate struct {
	Source         Source
	LineIDs        []uuid.UUID
	ScopedSubtotal common.Cents
	ScopedQuantity int32
	AloneAmount    common.Cents
}

// EvaluateBucket filters the given sources against one vendor bucket. Checks
// run in a fixed order and the first failure wins, so an expired coupon
// reports "expired" even when its scope also misses the cart.
func EvaluateBucket(bucket cart.VendorBucket, sources []Source, customerType cart.CustomerType, now time.Time) ([]Candidate, []cart.Exclusion) {
	var eligible []Candidate
	var excluded []cart.Exclusion

	for _, src := range sources {
		if vendor := src.Vendor(); vendor != nil && *vendor != bucket.VendorID {
			continue
		}
		candidate, reason := evaluate(bucket, src, customerType, now)
		if reason != "" {
			excluded = append(excluded, exclusionFor(src, reason))
			continue
		}
		eligible = append(eligible, candidate)
	}
	return eligible, excluded
}

func evaluate(bucket cart.VendorBucket, src Source, customerType cart.CustomerType, now time.Time) (Candidate, string) {
	rules := src.Rules()

	if now.Before(rules.ValidFrom) {
		return Candidate{}, ReasonNotStarted
	}
	if rules.ValidUntil != nil && now.After(*rules.ValidUntil) {
		return Candidate{}, ReasonExpired
	}

	lines := scopedLines(src, bucket)
	if len(lines) == 0 {
		return Candidate{}, ReasonScopeMismatch
	}

	var scopedSubtotal common.Cents
	var scopedQty int32
	lineIDs := make([]uuid.UUID, 0, len(lines))
	for _, li := range lines {
		scopedSubtotal += li.SubtotalCents()
		scopedQty += li.Quantity
		lineIDs = append(lineIDs, li.ID)
	}

	// Minimum order value is checked against the scoped subtotal, not the
	// whole cart: a vendor's threshold cannot be met by another vendor's lines.
	if rules.MinOrderValueCents > 0 && scopedSubtotal < rules.MinOrderValueCents {
		return Candidate{}, ReasonMinOrderNotMet
	}

	if len(rules.CustomerTypes) > 0 && !containsCustomerType(rules.CustomerTypes, customerType) {
		return Candidate{}, ReasonCustomerType
	}

	if src.UsageExhausted() {
		return Candidate{}, ReasonUsageExhausted
	}

	if src.PendingApproval() {
		return Candidate{}, ReasonPendingApproval
	}

	amount, ok := standaloneAmount(src, scopedSubtotal, scopedQty)
	if !ok {
		return Candidate{}, ReasonMinQtyNotMet
	}

	return Candidate{
		Source:         src,
		LineIDs:        lineIDs,
		ScopedSubtotal: scopedSubtotal,
		ScopedQuantity: scopedQty,
		AloneAmount:    amount,
	}, ""
}

func scopedLines(src Source, bucket cart.VendorBucket) []cart.LineItem {
	rules := src.Rules()
	switch rules.Scope {
	case ScopeAllVendorProducts, ScopeAllProducts, "":
		return bucket.Lines
	case ScopeSpecificProducts:
		return filterLines(bucket.Lines, func(li cart.LineItem) bool {
			return containsID(rules.TargetIDs, li.ProductID)
		})
	case ScopeSpecificCategories:
		return filterLines(bucket.Lines, func(li cart.LineItem) bool {
			return li.CategoryID != nil && containsID(rules.TargetIDs, *li.CategoryID)
		})
	case ScopeSpecificBrands:
		return filterLines(bucket.Lines, func(li cart.LineItem) bool {
			return li.BrandID != nil && containsID(rules.TargetIDs, *li.BrandID)
		})
	default:
		return nil
	}
}

func filterLines(lines []cart.LineItem, keep func(cart.LineItem) bool) []cart.LineItem {
	var out []cart.LineItem
	for _, li := range lines {
		if keep(li) {
			out = append(out, li)
		}
	}
	return out
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func containsCustomerType(types []cart.CustomerType, t cart.CustomerType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// standaloneAmount computes the discount as if applied alone to the scoped
// subtotal. The second return is false when a tiered discount has no
// qualifying tier.
func standaloneAmount(src Source, scopedSubtotal common.Cents, scopedQty int32) (common.Cents, bool) {
	var amount common.Cents
	switch src.DiscountKind() {
	case KindPercentage:
		amount = common.PercentOf(scopedSubtotal, src.ValueBps())
	case KindFixedAmount:
		amount = common.ClampCents(src.ValueCents(), scopedSubtotal)
	case KindTiered:
		tiered, ok := src.(VendorDiscount)
		if !ok {
			return 0, false
		}
		tier, ok := selectTier(tiered.Tiers, scopedQty)
		if !ok {
			return 0, false
		}
		amount = common.PercentOf(scopedSubtotal, tier.DiscountBps)
	default:
		return 0, false
	}
	if cap := src.MaxDiscountCents(); cap != nil && amount > *cap {
		amount = *cap
	}
	return common.ClampCents(amount, scopedSubtotal), true
}

// selectTier picks the highest tier whose MinQty is at or below qty. Tier
// boundaries are inclusive; a tie on MinQty resolves to the later (higher)
// tier in the list.
func selectTier(tiers []VolumeTier, qty int32) (VolumeTier, bool) {
	var best VolumeTier
	found := false
	for _, tier := range tiers {
		if qty >= tier.MinQty && (!found || tier.MinQty >= best.MinQty) {
			best = tier
			found = true
		}
	}
	return best, found
}

func exclusionFor(src Source, reason string) cart.Exclusion {
	return cart.Exclusion{
		SourceType: src.SourceType(),
		SourceID:   src.SourceID(),
		Code:       src.CouponCode(),
		Name:       src.DisplayName(),
		Reason:     reason,
	}
}
