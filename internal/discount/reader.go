package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/decorluxe/backend-blinds/internal/cart"
	"github.com/decorluxe/backend-blinds/internal/resilience"
)

// ErrPromotionsUnavailable is returned when the promotions store cannot be
// reached within bounds. Callers must treat it as retryable, never as
// "no discount applies".
var ErrPromotionsUnavailable = errors.New("promotions store unavailable")

// Store captures the promotions reads the engine depends on. Implementations
// filter by vendor/scope/date; the reader performs no eligibility logic.
type Store interface {
	ActiveVendorDiscounts(ctx context.Context, vendorIDs []uuid.UUID, now time.Time) ([]VendorDiscount, error)
	// CouponsByCodes matches codes case-insensitively and exactly.
	CouponsByCodes(ctx context.Context, codes []string) ([]VendorCoupon, error)
	ActiveCampaigns(ctx context.Context, now time.Time) ([]GlobalCampaign, error)
	PerCustomerUsage(ctx context.Context, sourceID, customerID uuid.UUID) (int32, error)
}

// Context is the cart-derived view the reader filters candidates against.
type Context struct {
	VendorIDs    []uuid.UUID
	ProductIDs   []uuid.UUID
	CategoryIDs  []uuid.UUID
	BrandIDs     []uuid.UUID
	CustomerType cart.CustomerType
	CustomerID   *uuid.UUID
	Now          time.Time
}

// ContextFromSnapshot derives the reader context from a cart snapshot.
func ContextFromSnapshot(snap cart.Snapshot, now time.Time) Context {
	cctx := Context{CustomerType: snap.CustomerType, CustomerID: snap.CustomerID, Now: now}
	seenVendor := map[uuid.UUID]bool{}
	seenProduct := map[uuid.UUID]bool{}
	seenCategory := map[uuid.UUID]bool{}
	seenBrand := map[uuid.UUID]bool{}
	for _, li := range snap.Lines {
		if !seenVendor[li.VendorID] {
			seenVendor[li.VendorID] = true
			cctx.VendorIDs = append(cctx.VendorIDs, li.VendorID)
		}
		if !seenProduct[li.ProductID] {
			seenProduct[li.ProductID] = true
			cctx.ProductIDs = append(cctx.ProductIDs, li.ProductID)
		}
		if li.CategoryID != nil && !seenCategory[*li.CategoryID] {
			seenCategory[*li.CategoryID] = true
			cctx.CategoryIDs = append(cctx.CategoryIDs, *li.CategoryID)
		}
		if li.BrandID != nil && !seenBrand[*li.BrandID] {
			seenBrand[*li.BrandID] = true
			cctx.BrandIDs = append(cctx.BrandIDs, *li.BrandID)
		}
	}
	return cctx
}

// Candidates holds the three raw candidate lists before eligibility filtering.
type Candidates struct {
	VendorDiscounts []VendorDiscount
	Coupons         []VendorCoupon
	Campaigns       []GlobalCampaign
}

// CatalogReader queries the promotions store for discount candidates whose
// vendor or scope intersects the cart. Reads run under a bounded timeout and
// a circuit breaker; a tripped breaker surfaces as a retryable failure.
type CatalogReader struct {
	Store   Store
	Timeout time.Duration
	Breaker *resilience.Breaker
}

// Read returns the candidate lists for the given cart context and submitted
// coupon codes.
func (r CatalogReader) Read(ctx context.Context, cctx Context, codes []string) (Candidates, error) {
	if r.Store == nil {
		return Candidates{}, errors.New("discount reader not configured")
	}
	if r.Breaker != nil && !r.Breaker.Allow(ctx) {
		return Candidates{}, fmt.Errorf("%w: circuit open", ErrPromotionsUnavailable)
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	out, err := r.read(ctx, cctx, codes)
	if r.Breaker != nil {
		r.Breaker.Report(ctx, err == nil)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Candidates{}, fmt.Errorf("%w: %v", ErrPromotionsUnavailable, err)
		}
		return Candidates{}, err
	}
	return out, nil
}

func (r CatalogReader) read(ctx context.Context, cctx Context, codes []string) (Candidates, error) {
	var out Candidates

	vendorDiscounts, err := r.Store.ActiveVendorDiscounts(ctx, cctx.VendorIDs, cctx.Now)
	if err != nil {
		return Candidates{}, fmt.Errorf("read vendor discounts: %w", err)
	}
	out.VendorDiscounts = vendorDiscounts

	normalized := NormalizeCodes(codes)
	if len(normalized) > 0 {
		coupons, err := r.Store.CouponsByCodes(ctx, normalized)
		if err != nil {
			return Candidates{}, fmt.Errorf("read coupons: %w", err)
		}
		for i := range coupons {
			if cctx.CustomerID != nil {
				used, err := r.Store.PerCustomerUsage(ctx, coupons[i].ID, *cctx.CustomerID)
				if err != nil {
					return Candidates{}, fmt.Errorf("read coupon usage: %w", err)
				}
				coupons[i].PerCustomerUsed = used
			}
			out.Coupons = append(out.Coupons, coupons[i])
		}
	}

	campaigns, err := r.Store.ActiveCampaigns(ctx, cctx.Now)
	if err != nil {
		return Candidates{}, fmt.Errorf("read campaigns: %w", err)
	}
	for _, campaign := range campaigns {
		if campaign.RequiresCode && !containsCode(normalized, campaign.Code) {
			continue
		}
		if !campaignIntersectsCart(campaign, cctx) {
			continue
		}
		out.Campaigns = append(out.Campaigns, campaign)
	}

	return out, nil
}

// NormalizeCodes trims, lowercases and de-duplicates submitted coupon codes.
func NormalizeCodes(codes []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		normalized := strings.ToLower(strings.TrimSpace(code))
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

func containsCode(normalized []string, code string) bool {
	target := strings.ToLower(strings.TrimSpace(code))
	for _, c := range normalized {
		if c == target {
			return true
		}
	}
	return false
}

func campaignIntersectsCart(campaign GlobalCampaign, cctx Context) bool {
	rules := campaign.Rules()
	switch rules.Scope {
	case ScopeAllProducts, ScopeAllVendorProducts, "":
		return true
	case ScopeSpecificProducts:
		return intersects(rules.TargetIDs, cctx.ProductIDs)
	case ScopeSpecificCategories:
		return intersects(rules.TargetIDs, cctx.CategoryIDs)
	case ScopeSpecificBrands:
		return intersects(rules.TargetIDs, cctx.BrandIDs)
	default:
		return false
	}
}

func intersects(a, b []uuid.UUID) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
