package discount

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/decorluxe/backend-blinds/internal/cart"
	"github.com/decorluxe/backend-blinds/internal/common"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func bucketWithLines(vendorID uuid.UUID, lines ...cart.LineItem) cart.VendorBucket {
	for i := range lines {
		lines[i].VendorID = vendorID
	}
	return cart.VendorBucket{VendorID: vendorID, Lines: lines}
}

func line(subtotal common.Cents, qty int32) cart.LineItem {
	return cart.LineItem{
		ID:             uuid.New(),
		ProductID:      uuid.New(),
		Quantity:       qty,
		UnitPriceCents: subtotal / common.Cents(qty),
	}
}

func activeWindow() Eligibility {
	return Eligibility{ValidFrom: testNow.Add(-time.Hour)}
}

func TestEvaluateBucketMinOrderAgainstScopedSubtotal(t *testing.T) {
	vendorID := uuid.New()

	coupon := VendorCoupon{
		ID:       uuid.New(),
		VendorID: vendorID,
		Code:     "summer2024",
		Name:     "Summer 2024",
		Kind:     KindPercentage,
		Bps:      1000,
		Eligibility: Eligibility{
			ValidFrom:          testNow.Add(-time.Hour),
			MinOrderValueCents: 15000,
		},
	}

	// A 300.00 bucket clears the 150.00 threshold.
	big := bucketWithLines(vendorID, line(30000, 2))
	eligible, excluded := EvaluateBucket(big, []Source{coupon}, cart.CustomerRetail, testNow)
	require.Len(t, eligible, 1)
	require.Empty(t, excluded)
	require.Equal(t, common.Cents(3000), eligible[0].AloneAmount)

	// A 100.00 bucket from the same vendor does not, even if the rest of the
	// cart is larger.
	small := bucketWithLines(vendorID, line(10000, 1))
	eligible, excluded = EvaluateBucket(small, []Source{coupon}, cart.CustomerRetail, testNow)
	require.Empty(t, eligible)
	require.Len(t, excluded, 1)
	require.Equal(t, ReasonMinOrderNotMet, excluded[0].Reason)
	require.Equal(t, "summer2024", excluded[0].Code)
}

func TestEvaluateBucketTemporalWindow(t *testing.T) {
	vendorID := uuid.New()
	bucket := bucketWithLines(vendorID, line(10000, 1))

	future := VendorDiscount{
		ID: uuid.New(), VendorID: vendorID, Name: "Not yet", Kind: KindPercentage, Bps: 500,
		Eligibility: Eligibility{ValidFrom: testNow.Add(time.Hour)},
	}
	until := testNow.Add(-time.Minute)
	past := VendorDiscount{
		ID: uuid.New(), VendorID: vendorID, Name: "Gone", Kind: KindPercentage, Bps: 500,
		Eligibility: Eligibility{ValidFrom: testNow.Add(-48 * time.Hour), ValidUntil: &until},
	}

	eligible, excluded := EvaluateBucket(bucket, []Source{future, past}, cart.CustomerRetail, testNow)
	require.Empty(t, eligible)
	require.Len(t, excluded, 2)
	require.Equal(t, ReasonNotStarted, excluded[0].Reason)
	require.Equal(t, ReasonExpired, excluded[1].Reason)
}

func TestEvaluateBucketScopeFiltering(t *testing.T) {
	vendorID := uuid.New()
	targetProduct := uuid.New()

	inScope := line(20000, 1)
	inScope.ProductID = targetProduct
	outOfScope := line(50000, 1)
	bucket := bucketWithLines(vendorID, inScope, outOfScope)

	rules := activeWindow()
	rules.Scope = ScopeSpecificProducts
	rules.TargetIDs = []uuid.UUID{targetProduct}
	discount := VendorDiscount{
		ID: uuid.New(), VendorID: vendorID, Name: "Product promo",
		Kind: KindPercentage, Bps: 1000, Eligibility: rules,
	}

	eligible, excluded := EvaluateBucket(bucket, []Source{discount}, cart.CustomerRetail, testNow)
	require.Empty(t, excluded)
	require.Len(t, eligible, 1)
	// 10% of the scoped 200.00 line only.
	require.Equal(t, common.Cents(2000), eligible[0].AloneAmount)
	require.Equal(t, []uuid.UUID{inScope.ID}, eligible[0].LineIDs)

	rules.TargetIDs = []uuid.UUID{uuid.New()}
	miss := VendorDiscount{
		ID: uuid.New(), VendorID: vendorID, Name: "No match",
		Kind: KindPercentage, Bps: 1000, Eligibility: rules,
	}
	eligible, excluded = EvaluateBucket(bucket, []Source{miss}, cart.CustomerRetail, testNow)
	require.Empty(t, eligible)
	require.Len(t, excluded, 1)
	require.Equal(t, ReasonScopeMismatch, excluded[0].Reason)
}

func TestEvaluateBucketCustomerType(t *testing.T) {
	vendorID := uuid.New()
	bucket := bucketWithLines(vendorID, line(10000, 1))

	rules := activeWindow()
	rules.CustomerTypes = []cart.CustomerType{cart.CustomerTrade}
	tradeOnly := VendorDiscount{
		ID: uuid.New(), VendorID: vendorID, Name: "Trade pricing",
		Kind: KindPercentage, Bps: 1500, Eligibility: rules,
	}

	eligible, excluded := EvaluateBucket(bucket, []Source{tradeOnly}, cart.CustomerRetail, testNow)
	require.Empty(t, eligible)
	require.Equal(t, ReasonCustomerType, excluded[0].Reason)

	eligible, excluded = EvaluateBucket(bucket, []Source{tradeOnly}, cart.CustomerTrade, testNow)
	require.Empty(t, excluded)
	require.Len(t, eligible, 1)
}

func TestEvaluateBucketUsageAndApproval(t *testing.T) {
	vendorID := uuid.New()
	bucket := bucketWithLines(vendorID, line(10000, 1))

	limit := int32(100)
	exhausted := VendorCoupon{
		ID: uuid.New(), VendorID: vendorID, Code: "spent", Name: "Spent",
		Kind: KindFixedAmount, AmountCents: 500, Eligibility: activeWindow(),
		UsageLimit: &limit, UsageCount: 100,
	}
	perCustomer := int32(1)
	usedUp := VendorCoupon{
		ID: uuid.New(), VendorID: vendorID, Code: "once", Name: "Once",
		Kind: KindFixedAmount, AmountCents: 500, Eligibility: activeWindow(),
		PerCustomerLimit: &perCustomer, PerCustomerUsed: 1,
	}
	unapproved := VendorDiscount{
		ID: uuid.New(), VendorID: vendorID, Name: "Pending", Kind: KindPercentage, Bps: 2500,
		Eligibility: activeWindow(), RequiresAdminApproval: true,
	}

	eligible, excluded := EvaluateBucket(bucket, []Source{exhausted, usedUp, unapproved}, cart.CustomerRetail, testNow)
	require.Empty(t, eligible)
	require.Len(t, excluded, 3)
	require.Equal(t, ReasonUsageExhausted, excluded[0].Reason)
	require.Equal(t, ReasonUsageExhausted, excluded[1].Reason)
	require.Equal(t, ReasonPendingApproval, excluded[2].Reason)
}

func TestEvaluateBucketTieredSelection(t *testing.T) {
	vendorID := uuid.New()

	tiered := VendorDiscount{
		ID: uuid.New(), VendorID: vendorID, Name: "Volume", Kind: KindTiered,
		Tiers: []VolumeTier{
			{MinQty: 5, DiscountBps: 500},
			{MinQty: 10, DiscountBps: 1000},
			{MinQty: 25, DiscountBps: 1500},
		},
		Eligibility: activeWindow(),
	}

	// Quantity 10 lands exactly on the 10% tier boundary, inclusive.
	bucket := bucketWithLines(vendorID, line(100000, 10))
	eligible, _ := EvaluateBucket(bucket, []Source{tiered}, cart.CustomerRetail, testNow)
	require.Len(t, eligible, 1)
	require.Equal(t, common.Cents(10000), eligible[0].AloneAmount)

	// Quantity below every tier is excluded, not applied at zero.
	bucket = bucketWithLines(vendorID, line(40000, 4))
	eligible, excluded := EvaluateBucket(bucket, []Source{tiered}, cart.CustomerRetail, testNow)
	require.Empty(t, eligible)
	require.Equal(t, ReasonMinQtyNotMet, excluded[0].Reason)
}

func TestEvaluateBucketMaxDiscountCap(t *testing.T) {
	vendorID := uuid.New()
	bucket := bucketWithLines(vendorID, line(100000, 1))

	cap := common.Cents(2500)
	capped := VendorDiscount{
		ID: uuid.New(), VendorID: vendorID, Name: "Capped", Kind: KindPercentage, Bps: 2000,
		MaxDiscount: &cap, Eligibility: activeWindow(),
	}

	eligible, _ := EvaluateBucket(bucket, []Source{capped}, cart.CustomerRetail, testNow)
	require.Len(t, eligible, 1)
	// 20% of 1000.00 would be 200.00, held at the 25.00 cap.
	require.Equal(t, cap, eligible[0].AloneAmount)
}

func TestEvaluateBucketSkipsOtherVendors(t *testing.T) {
	vendorID := uuid.New()
	bucket := bucketWithLines(vendorID, line(10000, 1))

	other := VendorDiscount{
		ID: uuid.New(), VendorID: uuid.New(), Name: "Elsewhere",
		Kind: KindPercentage, Bps: 9000, Eligibility: activeWindow(),
	}

	eligible, excluded := EvaluateBucket(bucket, []Source{other}, cart.CustomerRetail, testNow)
	require.Empty(t, eligible)
	require.Empty(t, excluded)
}
