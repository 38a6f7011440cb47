package cart

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decorluxe/backend-blinds/internal/common"
)

// ErrEmptySnapshot is returned when a snapshot carries no line items.
var ErrEmptySnapshot = errors.New("cart snapshot has no line items")

// CustomerType classifies the buyer for discount eligibility purposes.
type CustomerType string

const (
	CustomerRetail     CustomerType = "retail"
	CustomerCommercial CustomerType = "commercial"
	CustomerTrade      CustomerType = "trade"
)

// SourceType identifies which discount family produced an applied discount.
type SourceType string

const (
	SourceVendorDiscount SourceType = "vendor_discount"
	SourceVendorCoupon   SourceType = "vendor_coupon"
	SourceGlobalCampaign SourceType = "global_campaign"
)

// LineItem is a single cart line. UnitPriceCents and OptionSurchargeCents are
// populated by the pricing resolver; everything else comes from the snapshot.
type LineItem struct {
	ID                uuid.UUID
	ProductID         uuid.UUID
	VendorID          uuid.UUID
	CategoryID        *uuid.UUID
	BrandID           *uuid.UUID
	Quantity          int32
	Width             decimal.Decimal
	Height            decimal.Decimal
	SelectedOptionIDs []uuid.UUID

	UnitPriceCents       common.Cents
	OptionSurchargeCents common.Cents
}

// SubtotalCents is the line subtotal: (unit price + option surcharges) x quantity.
func (li LineItem) SubtotalCents() common.Cents {
	if li.Quantity <= 0 {
		return 0
	}
	return (li.UnitPriceCents + li.OptionSurchargeCents) * common.Cents(li.Quantity)
}

// Snapshot is the immutable cart handed to the engine by the checkout flow.
type Snapshot struct {
	ID           uuid.UUID
	CustomerID   *uuid.UUID
	CustomerType CustomerType
	Lines        []LineItem
}

// AppliedDiscount records one resolved discount and the bucket it touched.
type AppliedDiscount struct {
	SourceType   SourceType
	SourceID     uuid.UUID
	VendorID     *uuid.UUID
	Name         string
	Code         string
	DiscountKind string
	AmountCents  common.Cents
	LineIDs      []uuid.UUID
	BucketBefore common.Cents
	BucketAfter  common.Cents
	// VendorFunded marks discounts that reduce the vendor's commission base.
	VendorFunded bool
}

// Exclusion explains why a candidate discount did not apply. Attached to the
// quote response so the storefront can explain a rejected code.
type Exclusion struct {
	SourceType SourceType
	SourceID   uuid.UUID
	Code       string
	Name       string
	Reason     string
}

// PricedCart is the engine's output: resolved lines, applied discounts and totals.
type PricedCart struct {
	SnapshotID          uuid.UUID
	CustomerID          *uuid.UUID
	Lines               []LineItem
	Applied             []AppliedDiscount
	Exclusions          []Exclusion
	SubtotalCents       common.Cents
	TotalDiscountCents  common.Cents
	GrandTotalCents     common.Cents
}

// VendorBucket groups a cart's lines belonging to one vendor.
type VendorBucket struct {
	VendorID uuid.UUID
	Lines    []LineItem
}

// SubtotalCents sums the bucket's line subtotals.
func (b VendorBucket) SubtotalCents() common.Cents {
	var total common.Cents
	for _, li := range b.Lines {
		total += li.SubtotalCents()
	}
	return total
}

// Quantity sums the bucket's line quantities.
func (b VendorBucket) Quantity() int32 {
	var total int32
	for _, li := range b.Lines {
		if li.Quantity > 0 {
			total += li.Quantity
		}
	}
	return total
}

// BucketsByVendor splits lines into per-vendor buckets preserving the order in
// which each vendor first appears.
func BucketsByVendor(lines []LineItem) []VendorBucket {
	index := make(map[uuid.UUID]int, len(lines))
	buckets := make([]VendorBucket, 0, len(lines))
	for _, li := range lines {
		pos, ok := index[li.VendorID]
		if !ok {
			pos = len(buckets)
			index[li.VendorID] = pos
			buckets = append(buckets, VendorBucket{VendorID: li.VendorID})
		}
		buckets[pos].Lines = append(buckets[pos].Lines, li)
	}
	return buckets
}

// Totals recomputes the cart-level totals from lines and applied discounts.
func (pc *PricedCart) Totals() {
	var subtotal, discount common.Cents
	for _, li := range pc.Lines {
		subtotal += li.SubtotalCents()
	}
	for _, ad := range pc.Applied {
		discount += ad.AmountCents
	}
	pc.SubtotalCents = subtotal
	pc.TotalDiscountCents = discount
	pc.GrandTotalCents = subtotal - discount
	if pc.GrandTotalCents < 0 {
		pc.GrandTotalCents = 0
	}
}
