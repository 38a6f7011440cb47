package commission

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/decorluxe/backend-blinds/internal/common"
)

type stubProfiles struct {
	rates map[uuid.UUID]int32
}

func (s stubProfiles) CommissionRateBps(_ context.Context, vendorID uuid.UUID) (int32, error) {
	rate, ok := s.rates[vendorID]
	if !ok {
		return 0, ErrRateMissing
	}
	return rate, nil
}

func TestComputeSplit(t *testing.T) {
	vendorID := uuid.New()
	calc := Calculator{Profiles: stubProfiles{rates: map[uuid.UUID]int32{vendorID: 1500}}}

	// 200.00 base at 15% splits into 30.00 commission, 170.00 payable.
	rec, err := calc.Compute(context.Background(), uuid.New(), vendorID, 20000, 0, 0)
	require.NoError(t, err)
	require.Equal(t, common.Cents(20000), rec.CommissionBaseCents)
	require.Equal(t, common.Cents(3000), rec.CommissionCents)
	require.Equal(t, common.Cents(17000), rec.VendorPayableCents)
}

func TestComputeBaseExcludesVendorFundedOnly(t *testing.T) {
	vendorID := uuid.New()
	calc := Calculator{Profiles: stubProfiles{rates: map[uuid.UUID]int32{vendorID: 1000}}}

	// Vendor-funded 20.00 shrinks the base; the platform-funded 10.00 does not.
	rec, err := calc.Compute(context.Background(), uuid.New(), vendorID, 30000, 2000, 1000)
	require.NoError(t, err)
	require.Equal(t, common.Cents(28000), rec.CommissionBaseCents)
	require.Equal(t, common.Cents(2800), rec.CommissionCents)
	require.Equal(t, common.Cents(25200), rec.VendorPayableCents)
}

func TestComputeConservation(t *testing.T) {
	vendorID := uuid.New()

	// Awkward rates and bases still reconcile to the cent.
	cases := []struct {
		rateBps int32
		base    common.Cents
	}{
		{333, 9999},
		{1250, 1},
		{1, 1234567},
		{9999, 777},
	}
	for _, tc := range cases {
		calc := Calculator{Profiles: stubProfiles{rates: map[uuid.UUID]int32{vendorID: tc.rateBps}}}
		rec, err := calc.Compute(context.Background(), uuid.New(), vendorID, tc.base, 0, 0)
		require.NoError(t, err)
		require.Equal(t, rec.CommissionBaseCents, rec.CommissionCents+rec.VendorPayableCents,
			"rate=%d base=%d", tc.rateBps, tc.base)
		require.GreaterOrEqual(t, rec.CommissionCents, common.Cents(0))
		require.GreaterOrEqual(t, rec.VendorPayableCents, common.Cents(0))
	}
}

func TestComputeRateMissing(t *testing.T) {
	calc := Calculator{Profiles: stubProfiles{rates: map[uuid.UUID]int32{}}}

	_, err := calc.Compute(context.Background(), uuid.New(), uuid.New(), 10000, 0, 0)
	require.ErrorIs(t, err, ErrRateMissing)
}

func TestComputeClampsNegativeBase(t *testing.T) {
	vendorID := uuid.New()
	calc := Calculator{Profiles: stubProfiles{rates: map[uuid.UUID]int32{vendorID: 1500}}}

	rec, err := calc.Compute(context.Background(), uuid.New(), vendorID, 5000, 6000, 0)
	require.NoError(t, err)
	require.Zero(t, rec.CommissionBaseCents)
	require.Zero(t, rec.CommissionCents)
	require.Zero(t, rec.VendorPayableCents)
}

func TestComputeRejectsOutOfRangeRate(t *testing.T) {
	vendorID := uuid.New()
	calc := Calculator{Profiles: stubProfiles{rates: map[uuid.UUID]int32{vendorID: 12000}}}

	_, err := calc.Compute(context.Background(), uuid.New(), vendorID, 10000, 0, 0)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrRateMissing))
}
