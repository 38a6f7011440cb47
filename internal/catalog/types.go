package catalog

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decorluxe/backend-blinds/internal/common"
)

// Product is the catalog snapshot the engine prices against. Immutable per
// pricing request.
type Product struct {
	ID             uuid.UUID       `json:"id"`
	VendorID       uuid.UUID       `json:"vendorId"`
	CategoryID     *uuid.UUID      `json:"categoryId,omitempty"`
	BrandID        *uuid.UUID      `json:"brandId,omitempty"`
	Name           string          `json:"name"`
	BasePriceCents common.Cents    `json:"basePriceCents"`
	MinWidth       decimal.Decimal `json:"minWidth"`
	MaxWidth       decimal.Decimal `json:"maxWidth"`
	MinHeight      decimal.Decimal `json:"minHeight"`
	MaxHeight      decimal.Decimal `json:"maxHeight"`
}

// MatrixEntry maps a closed width/height range to a price rule. PricePerArea,
// when set, is a rate in cents per square unit added on top of the base.
type MatrixEntry struct {
	ID             uuid.UUID        `json:"id"`
	ProductID      uuid.UUID        `json:"productId"`
	WidthMin       decimal.Decimal  `json:"widthMin"`
	WidthMax       decimal.Decimal  `json:"widthMax"`
	HeightMin      decimal.Decimal  `json:"heightMin"`
	HeightMax      decimal.Decimal  `json:"heightMax"`
	BasePriceCents common.Cents     `json:"basePriceCents"`
	PricePerArea   *decimal.Decimal `json:"pricePerArea,omitempty"`
}

// Contains reports whether the entry's closed ranges include the dimensions.
func (e MatrixEntry) Contains(width, height decimal.Decimal) bool {
	return width.GreaterThanOrEqual(e.WidthMin) && width.LessThanOrEqual(e.WidthMax) &&
		height.GreaterThanOrEqual(e.HeightMin) && height.LessThanOrEqual(e.HeightMax)
}

// OptionKind distinguishes fabric from control options.
type OptionKind string

const (
	OptionFabric  OptionKind = "fabric"
	OptionControl OptionKind = "control"
)

// ProductOption is a fabric or control upgrade. The surcharge is flat unless
// PerAreaRate is set, in which case the rate applies when the requested width
// falls inside [BandWidthMin, BandWidthMax].
type ProductOption struct {
	ID             uuid.UUID        `json:"id"`
	ProductID      uuid.UUID        `json:"productId"`
	Kind           OptionKind       `json:"kind"`
	Name           string           `json:"name"`
	SurchargeCents common.Cents     `json:"surchargeCents"`
	PerAreaRate    *decimal.Decimal `json:"perAreaRate,omitempty"`
	BandWidthMin   decimal.Decimal  `json:"bandWidthMin"`
	BandWidthMax   decimal.Decimal  `json:"bandWidthMax"`
}
