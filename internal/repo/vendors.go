package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/decorluxe/backend-blinds/internal/commission"
)

// VendorProfilesRepo resolves per-vendor commission configuration.
type VendorProfilesRepo struct {
	Q Querier
}

var _ commission.VendorProfiles = VendorProfilesRepo{}

// CommissionRateBps returns the vendor's commission rate in basis points. A
// vendor without a profile row, or with a NULL rate, has no rate configured.
func (r VendorProfilesRepo) CommissionRateBps(ctx context.Context, vendorID uuid.UUID) (int32, error) {
	const query = `SELECT commission_rate_bps FROM vendor_profiles WHERE vendor_id = $1`

	var rate *int32
	err := r.Q.QueryRow(ctx, query, vendorID).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, commission.ErrRateMissing
	}
	if err != nil {
		return 0, fmt.Errorf("query vendor profile: %w", err)
	}
	if rate == nil {
		return 0, commission.ErrRateMissing
	}
	return *rate, nil
}
