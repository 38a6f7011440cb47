package pricing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decorluxe/backend-blinds/internal/catalog"
	"github.com/decorluxe/backend-blinds/internal/common"
)

var (
	// ErrInvalidDimension is returned when the requested dimensions fall
	// outside the product's declared bounds.
	ErrInvalidDimension = errors.New("dimensions outside product bounds")
	// ErrNoMatrixMatch is returned when no pricing matrix entry contains the
	// requested dimensions. Absence is an error, never a silent default.
	ErrNoMatrixMatch = errors.New("no pricing matrix entry matches dimensions")
	// ErrMatrixOverlap signals a data-integrity violation: more than one entry
	// claims the same dimensions.
	ErrMatrixOverlap = errors.New("pricing matrix entries overlap")
)

// Quote is the resolved pre-discount price for one line.
type Quote struct {
	UnitPriceCents       common.Cents
	OptionSurchargeCents common.Cents
	MatrixEntryID        uuid.UUID
}

// Resolve computes a line's unit price from the product's pricing matrix and
// the selected option surcharges. Exactly one matrix entry must contain the
// requested dimensions; formula-tier entries add price_per_area x (W x H) on
// top of the entry base price.
func Resolve(product catalog.Product, entries []catalog.MatrixEntry, options []catalog.ProductOption, width, height decimal.Decimal, selected []uuid.UUID) (Quote, error) {
	if width.LessThan(product.MinWidth) || width.GreaterThan(product.MaxWidth) ||
		height.LessThan(product.MinHeight) || height.GreaterThan(product.MaxHeight) {
		return Quote{}, fmt.Errorf("%w: %s x %s for product %s", ErrInvalidDimension, width, height, product.ID)
	}

	var match *catalog.MatrixEntry
	for i := range entries {
		if !entries[i].Contains(width, height) {
			continue
		}
		if match != nil {
			return Quote{}, fmt.Errorf("%w: entries %s and %s both contain %s x %s", ErrMatrixOverlap, match.ID, entries[i].ID, width, height)
		}
		match = &entries[i]
	}
	if match == nil {
		return Quote{}, fmt.Errorf("%w: %s x %s for product %s", ErrNoMatrixMatch, width, height, product.ID)
	}

	area := width.Mul(height)
	unit := decimal.NewFromInt(match.BasePriceCents)
	if match.PricePerArea != nil {
		unit = unit.Add(match.PricePerArea.Mul(area))
	}

	var surcharge decimal.Decimal
	for _, id := range selected {
		opt, ok := findOption(options, id)
		if !ok {
			return Quote{}, fmt.Errorf("option %s not available for product %s", id, product.ID)
		}
		surcharge = surcharge.Add(optionSurcharge(opt, width, area))
	}

	return Quote{
		UnitPriceCents:       common.RoundCents(unit),
		OptionSurchargeCents: common.RoundCents(surcharge),
		MatrixEntryID:        match.ID,
	}, nil
}

func findOption(options []catalog.ProductOption, id uuid.UUID) (catalog.ProductOption, bool) {
	for _, opt := range options {
		if opt.ID == id {
			return opt, true
		}
	}
	return catalog.ProductOption{}, false
}

func optionSurcharge(opt catalog.ProductOption, width, area decimal.Decimal) decimal.Decimal {
	if opt.PerAreaRate != nil &&
		width.GreaterThanOrEqual(opt.BandWidthMin) && width.LessThanOrEqual(opt.BandWidthMax) {
		return opt.PerAreaRate.Mul(area)
	}
	return decimal.NewFromInt(opt.SurchargeCents)
}

// ValidateMatrix checks a product's matrix for overlapping ranges. Overlap is
// a data-integrity violation caught at load time, not resolved at runtime.
func ValidateMatrix(entries []catalog.MatrixEntry) error {
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			if rangesOverlap(entries[i], entries[j]) {
				return fmt.Errorf("%w: %s and %s", ErrMatrixOverlap, entries[i].ID, entries[j].ID)
			}
		}
	}
	return nil
}

func rangesOverlap(a, b catalog.MatrixEntry) bool {
	widths := a.WidthMin.LessThanOrEqual(b.WidthMax) && b.WidthMin.LessThanOrEqual(a.WidthMax)
	heights := a.HeightMin.LessThanOrEqual(b.HeightMax) && b.HeightMin.LessThanOrEqual(a.HeightMax)
	return widths && heights
}
