package pricing

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decorluxe/backend-blinds/internal/catalog"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testProduct() catalog.Product {
	return catalog.Product{
		ID:        uuid.New(),
		VendorID:  uuid.New(),
		MinWidth:  dec("12"),
		MaxWidth:  dec("96"),
		MinHeight: dec("12"),
		MaxHeight: dec("96"),
	}
}

func TestResolveFlatTierEntry(t *testing.T) {
	product := testProduct()
	entry := catalog.MatrixEntry{
		ID:             uuid.New(),
		ProductID:      product.ID,
		WidthMin:       dec("23"),
		WidthMax:       dec("34"),
		HeightMin:      dec("14"),
		HeightMax:      dec("25"),
		BasePriceCents: 2289,
	}
	quote, err := Resolve(product, []catalog.MatrixEntry{entry}, nil, dec("28.5"), dec("19.75"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.UnitPriceCents != 2289 {
		t.Fatalf("expected unit price 2289 cents, got %d", quote.UnitPriceCents)
	}
	if quote.MatrixEntryID != entry.ID {
		t.Fatalf("expected matrix entry %s, got %s", entry.ID, quote.MatrixEntryID)
	}
}

func TestResolvePerAreaFormula(t *testing.T) {
	product := testProduct()
	rate := dec("0.5")
	entry := catalog.MatrixEntry{
		ID:             uuid.New(),
		ProductID:      product.ID,
		WidthMin:       dec("12"),
		WidthMax:       dec("96"),
		HeightMin:      dec("12"),
		HeightMax:      dec("96"),
		BasePriceCents: 1000,
		PricePerArea:   &rate,
	}
	// 1000 + 0.5 * (20 * 30) = 1300
	quote, err := Resolve(product, []catalog.MatrixEntry{entry}, nil, dec("20"), dec("30"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.UnitPriceCents != 1300 {
		t.Fatalf("expected 1300, got %d", quote.UnitPriceCents)
	}
}

func TestResolveOptionSurcharges(t *testing.T) {
	product := testProduct()
	entry := catalog.MatrixEntry{
		ID: uuid.New(), ProductID: product.ID,
		WidthMin: dec("12"), WidthMax: dec("96"),
		HeightMin: dec("12"), HeightMax: dec("96"),
		BasePriceCents: 5000,
	}
	flat := catalog.ProductOption{ID: uuid.New(), ProductID: product.ID, Kind: catalog.OptionControl, SurchargeCents: 750}
	bandRate := dec("0.1")
	banded := catalog.ProductOption{
		ID: uuid.New(), ProductID: product.ID, Kind: catalog.OptionFabric,
		SurchargeCents: 500, PerAreaRate: &bandRate,
		BandWidthMin: dec("24"), BandWidthMax: dec("48"),
	}
	options := []catalog.ProductOption{flat, banded}

	// Width 30 inside the band: banded option charges 0.1 * 30*40 = 120, not its flat 500.
	quote, err := Resolve(product, []catalog.MatrixEntry{entry}, options, dec("30"), dec("40"), []uuid.UUID{flat.ID, banded.ID})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.OptionSurchargeCents != 750+120 {
		t.Fatalf("expected 870 surcharge, got %d", quote.OptionSurchargeCents)
	}

	// Width 50 outside the band: banded option falls back to its flat surcharge.
	quote, err = Resolve(product, []catalog.MatrixEntry{entry}, options, dec("50"), dec("40"), []uuid.UUID{banded.ID})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if quote.OptionSurchargeCents != 500 {
		t.Fatalf("expected 500 surcharge, got %d", quote.OptionSurchargeCents)
	}
}

func TestResolveDimensionErrors(t *testing.T) {
	product := testProduct()
	entry := catalog.MatrixEntry{
		ID: uuid.New(), ProductID: product.ID,
		WidthMin: dec("23"), WidthMax: dec("34"),
		HeightMin: dec("14"), HeightMax: dec("25"),
		BasePriceCents: 2289,
	}

	_, err := Resolve(product, []catalog.MatrixEntry{entry}, nil, dec("200"), dec("20"), nil)
	if !errors.Is(err, ErrInvalidDimension) {
		t.Fatalf("expected ErrInvalidDimension, got %v", err)
	}

	_, err = Resolve(product, []catalog.MatrixEntry{entry}, nil, dec("50"), dec("50"), nil)
	if !errors.Is(err, ErrNoMatrixMatch) {
		t.Fatalf("expected ErrNoMatrixMatch, got %v", err)
	}
}

func TestResolveOverlapIsIntegrityError(t *testing.T) {
	product := testProduct()
	a := catalog.MatrixEntry{
		ID: uuid.New(), ProductID: product.ID,
		WidthMin: dec("20"), WidthMax: dec("40"),
		HeightMin: dec("20"), HeightMax: dec("40"),
		BasePriceCents: 2000,
	}
	b := a
	b.ID = uuid.New()
	b.BasePriceCents = 3000

	if _, err := Resolve(product, []catalog.MatrixEntry{a, b}, nil, dec("30"), dec("30"), nil); !errors.Is(err, ErrMatrixOverlap) {
		t.Fatalf("expected ErrMatrixOverlap, got %v", err)
	}
	if err := ValidateMatrix([]catalog.MatrixEntry{a, b}); !errors.Is(err, ErrMatrixOverlap) {
		t.Fatalf("expected ValidateMatrix overlap, got %v", err)
	}
}

func TestValidateMatrixDisjointRanges(t *testing.T) {
	product := testProduct()
	entries := []catalog.MatrixEntry{
		{ID: uuid.New(), ProductID: product.ID, WidthMin: dec("12"), WidthMax: dec("22"), HeightMin: dec("12"), HeightMax: dec("96"), BasePriceCents: 1500},
		{ID: uuid.New(), ProductID: product.ID, WidthMin: dec("23"), WidthMax: dec("34"), HeightMin: dec("12"), HeightMax: dec("96"), BasePriceCents: 2289},
		{ID: uuid.New(), ProductID: product.ID, WidthMin: dec("35"), WidthMax: dec("96"), HeightMin: dec("12"), HeightMax: dec("96"), BasePriceCents: 3100},
	}
	if err := ValidateMatrix(entries); err != nil {
		t.Fatalf("expected disjoint matrix to validate, got %v", err)
	}
}
