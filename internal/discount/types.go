package discount

import (
	"time"

	"github.com/google/uuid"

	"github.com/decorluxe/backend-blinds/internal/cart"
	"github.com/decorluxe/backend-blinds/internal/common"
)

// Kind enumerates how a discount's value is interpreted.
type Kind string

const (
	KindPercentage  Kind = "percentage"
	KindFixedAmount Kind = "fixed_amount"
	KindTiered      Kind = "tiered"
)

// Scope declares which line items a discount may touch.
type Scope string

const (
	ScopeAllVendorProducts  Scope = "all_vendor_products"
	ScopeAllProducts        Scope = "all_products"
	ScopeSpecificProducts   Scope = "specific_products"
	ScopeSpecificCategories Scope = "specific_categories"
	ScopeSpecificBrands     Scope = "specific_brands"
)

// VolumeTier is one rung of a tiered volume discount. Tiers are ordered by
// MinQty ascending; the highest tier whose MinQty is at or below the scoped
// quantity wins.
type VolumeTier struct {
	MinQty      int32
	DiscountBps int32
}

// Eligibility is the constraint shape shared by all three discount variants.
type Eligibility struct {
	Scope              Scope
	TargetIDs          []uuid.UUID
	MinOrderValueCents common.Cents
	CustomerTypes      []cart.CustomerType
	ValidFrom          time.Time
	ValidUntil         *time.Time
}

// Source is the closed union over the three discount variants. The
// eligibility filter and the stacking resolver operate on this view only.
type Source interface {
	SourceID() uuid.UUID
	SourceType() cart.SourceType
	DisplayName() string
	// CouponCode is empty for automatic discounts.
	CouponCode() string
	DiscountKind() Kind
	ValueBps() int32
	ValueCents() common.Cents
	MaxDiscountCents() *common.Cents
	Rules() Eligibility
	// Vendor is nil for platform-wide campaigns.
	Vendor() *uuid.UUID
	UsageExhausted() bool
	PendingApproval() bool
}

// VendorDiscount is a vendor-funded automatic price reduction, no code needed.
type VendorDiscount struct {
	ID                    uuid.UUID
	VendorID              uuid.UUID
	Name                  string
	Kind                  Kind
	Bps                   int32
	AmountCents           common.Cents
	Tiers                 []VolumeTier
	MaxDiscount           *common.Cents
	Eligibility           Eligibility
	RequiresAdminApproval bool
	Approved              bool
	// StackableWithCoupon lets the vendor allow its automatic discount to
	// combine with its own coupon in one bucket.
	StackableWithCoupon bool
}

func (d VendorDiscount) SourceID() uuid.UUID                 { return d.ID }
func (d VendorDiscount) SourceType() cart.SourceType         { return cart.SourceVendorDiscount }
func (d VendorDiscount) DisplayName() string                 { return d.Name }
func (d VendorDiscount) CouponCode() string                  { return "" }
func (d VendorDiscount) DiscountKind() Kind                  { return d.Kind }
func (d VendorDiscount) ValueBps() int32                     { return d.Bps }
func (d VendorDiscount) ValueCents() common.Cents            { return d.AmountCents }
func (d VendorDiscount) MaxDiscountCents() *common.Cents     { return d.MaxDiscount }
func (d VendorDiscount) Rules() Eligibility                  { return d.Eligibility }
func (d VendorDiscount) Vendor() *uuid.UUID                  { v := d.VendorID; return &v }
func (d VendorDiscount) UsageExhausted() bool                { return false }
func (d VendorDiscount) PendingApproval() bool               { return d.RequiresAdminApproval && !d.Approved }

// VendorCoupon is a vendor-funded, code-redeemed reduction with usage limits.
type VendorCoupon struct {
	ID          uuid.UUID
	VendorID    uuid.UUID
	Code        string
	Name        string
	Kind        Kind
	Bps         int32
	AmountCents common.Cents
	MaxDiscount *common.Cents
	Eligibility Eligibility

	UsageLimit       *int32
	UsageCount       int32
	PerCustomerLimit *int32
	PerCustomerUsed  int32
}

func (c VendorCoupon) SourceID() uuid.UUID             { return c.ID }
func (c VendorCoupon) SourceType() cart.SourceType     { return cart.SourceVendorCoupon }
func (c VendorCoupon) DisplayName() string             { return c.Name }
func (c VendorCoupon) CouponCode() string              { return c.Code }
func (c VendorCoupon) DiscountKind() Kind              { return c.Kind }
func (c VendorCoupon) ValueBps() int32                 { return c.Bps }
func (c VendorCoupon) ValueCents() common.Cents        { return c.AmountCents }
func (c VendorCoupon) MaxDiscountCents() *common.Cents { return c.MaxDiscount }
func (c VendorCoupon) Rules() Eligibility              { return c.Eligibility }
func (c VendorCoupon) Vendor() *uuid.UUID              { v := c.VendorID; return &v }
func (c VendorCoupon) PendingApproval() bool           { return false }

func (c VendorCoupon) UsageExhausted() bool {
	if c.UsageLimit != nil && *c.UsageLimit >= 0 && c.UsageCount >= *c.UsageLimit {
		return true
	}
	if c.PerCustomerLimit != nil && *c.PerCustomerLimit > 0 && c.PerCustomerUsed >= *c.PerCustomerLimit {
		return true
	}
	return false
}

// GlobalCampaign is a platform-funded, admin-managed discount spanning vendors.
type GlobalCampaign struct {
	ID          uuid.UUID
	Code        string
	Name        string
	Kind        Kind
	Bps         int32
	AmountCents common.Cents
	MaxDiscount *common.Cents
	Eligibility Eligibility

	// RequiresCode gates the campaign behind code submission at checkout.
	RequiresCode        bool
	CanStackWithVolume  bool
	CanStackWithCoupons bool
	// Priority orders mutually exclusive campaigns; lower value wins.
	Priority   int32
	UsageLimit *int32
	UsageCount int32
}

func (g GlobalCampaign) SourceID() uuid.UUID             { return g.ID }
func (g GlobalCampaign) SourceType() cart.SourceType     { return cart.SourceGlobalCampaign }
func (g GlobalCampaign) DisplayName() string             { return g.Name }
func (g GlobalCampaign) CouponCode() string              { return g.Code }
func (g GlobalCampaign) DiscountKind() Kind              { return g.Kind }
func (g GlobalCampaign) ValueBps() int32                 { return g.Bps }
func (g GlobalCampaign) ValueCents() common.Cents        { return g.AmountCents }
func (g GlobalCampaign) MaxDiscountCents() *common.Cents { return g.MaxDiscount }
func (g GlobalCampaign) Rules() Eligibility              { return g.Eligibility }
func (g GlobalCampaign) Vendor() *uuid.UUID              { return nil }
func (g GlobalCampaign) PendingApproval() bool           { return false }

func (g GlobalCampaign) UsageExhausted() bool {
	return g.UsageLimit != nil && *g.UsageLimit >= 0 && g.UsageCount >= *g.UsageLimit
}
