package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decorluxe/backend-blinds/internal/common"
)

// ErrRateMissing is returned when a vendor has no commission rate configured.
// Settlement must halt rather than assume a default.
var ErrRateMissing = errors.New("commission rate missing for vendor")

// Record is one vendor's settlement split for one order. CommissionCents plus
// VendorPayableCents always equals CommissionBaseCents exactly.
type Record struct {
	ID       uuid.UUID  `json:"id"`
	OrderID  uuid.UUID  `json:"order_id"`
	VendorID uuid.UUID  `json:"vendor_id"`

	BucketSubtotalCents  common.Cents `json:"bucket_subtotal_cents"`
	VendorFundedCents    common.Cents `json:"vendor_funded_cents"`
	PlatformFundedCents  common.Cents `json:"platform_funded_cents"`
	CommissionBaseCents  common.Cents `json:"commission_base_cents"`
	CommissionRateBps    int32        `json:"commission_rate_bps"`
	CommissionCents      common.Cents `json:"commission_cents"`
	VendorPayableCents   common.Cents `json:"vendor_payable_cents"`

	CreatedAt time.Time `json:"created_at"`
}

// VendorProfiles resolves per-vendor commission configuration.
type VendorProfiles interface {
	// CommissionRateBps returns the vendor's rate in basis points, or
	// ErrRateMissing when none is configured.
	CommissionRateBps(ctx context.Context, vendorID uuid.UUID) (int32, error)
}

// Ledger persists settlement records idempotently per (order, vendor).
type Ledger interface {
	// Append inserts the record unless one already exists for the same order
	// and vendor. It returns the stored record and whether this call inserted it.
	Append(ctx context.Context, rec Record) (Record, bool, error)
	ByOrder(ctx context.Context, orderID uuid.UUID) ([]Record, error)
}

// Calculator turns a vendor bucket's settled amounts into a commission split.
type Calculator struct {
	Profiles VendorProfiles
}

// Compute builds the settlement record for one vendor bucket.
//
// The commission base is the bucket subtotal net of vendor-funded discounts
// only: platform-funded campaign amounts are the platform's cost, not the
// vendor's, so they do not shrink the base the platform earns commission on.
func (c Calculator) Compute(ctx context.Context, orderID, vendorID uuid.UUID, bucketSubtotal, vendorFunded, platformFunded common.Cents) (Record, error) {
	rateBps, err := c.Profiles.CommissionRateBps(ctx, vendorID)
	if err != nil {
		return Record{}, fmt.Errorf("vendor %s: %w", vendorID, err)
	}
	if rateBps < 0 || rateBps > 10000 {
		return Record{}, fmt.Errorf("vendor %s: rate %d bps out of range", vendorID, rateBps)
	}

	base := bucketSubtotal - vendorFunded
	if base < 0 {
		base = 0
	}

	commission := common.RoundCents(
		decimal.NewFromInt(base).Mul(decimal.NewFromInt32(rateBps)).Div(decimal.NewFromInt(10000)),
	)
	if commission > base {
		commission = base
	}

	return Record{
		ID:                  uuid.New(),
		OrderID:             orderID,
		VendorID:            vendorID,
		BucketSubtotalCents: bucketSubtotal,
		VendorFundedCents:   vendorFunded,
		PlatformFundedCents: platformFunded,
		CommissionBaseCents: base,
		CommissionRateBps:   rateBps,
		CommissionCents:     commission,
		VendorPayableCents:  base - commission,
		CreatedAt:           time.Now().UTC(),
	}, nil
}
