package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/decorluxe/backend-blinds/internal/catalog"
	"github.com/decorluxe/backend-blinds/internal/discount"
	"github.com/decorluxe/backend-blinds/internal/engine"
)

type fakeCatalog struct {
	product catalog.Product
	entries []catalog.MatrixEntry
}

func (f fakeCatalog) Product(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	if id != f.product.ID {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return f.product, nil
}

func (f fakeCatalog) MatrixEntries(_ context.Context, _ uuid.UUID) ([]catalog.MatrixEntry, error) {
	return f.entries, nil
}

func (f fakeCatalog) Options(_ context.Context, _ uuid.UUID) ([]catalog.ProductOption, error) {
	return nil, nil
}

type fakePromotions struct {
	discounts []discount.VendorDiscount
	err       error
}

func (f fakePromotions) ActiveVendorDiscounts(_ context.Context, _ []uuid.UUID, _ time.Time) ([]discount.VendorDiscount, error) {
	return f.discounts, f.err
}

func (f fakePromotions) CouponsByCodes(_ context.Context, _ []string) ([]discount.VendorCoupon, error) {
	return nil, f.err
}

func (f fakePromotions) ActiveCampaigns(_ context.Context, _ time.Time) ([]discount.GlobalCampaign, error) {
	return nil, f.err
}

func (f fakePromotions) PerCustomerUsage(_ context.Context, _, _ uuid.UUID) (int32, error) {
	return 0, f.err
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newQuoteHandler(promos fakePromotions) (*Handler, uuid.UUID) {
	productID := uuid.New()
	vendorID := uuid.New()
	cat := fakeCatalog{
		product: catalog.Product{
			ID: productID, VendorID: vendorID,
			MinWidth: mustDec("12"), MaxWidth: mustDec("96"),
			MinHeight: mustDec("12"), MaxHeight: mustDec("96"),
		},
		entries: []catalog.MatrixEntry{{
			ID: uuid.New(), ProductID: productID,
			WidthMin: mustDec("12"), WidthMax: mustDec("96"),
			HeightMin: mustDec("12"), HeightMax: mustDec("96"),
			BasePriceCents: 2289,
		}},
	}
	eng := &engine.Engine{
		Catalog: &catalog.Service{Store: cat},
		Reader:  discount.CatalogReader{Store: promos},
	}
	return &Handler{Engine: eng, Validate: validator.New()}, productID
}

func postQuote(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout/quote", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Quote(rec, req)
	return rec
}

func TestQuoteHappyPath(t *testing.T) {
	h, productID := newQuoteHandler(fakePromotions{})

	body := `{"lines":[{"productId":"` + productID.String() + `","quantity":2,"width":"28.5","height":"19.75"}]}`
	rec := postQuote(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Currency        string `json:"currency"`
			SubtotalCents   int64  `json:"subtotalCents"`
			GrandTotalCents int64  `json:"grandTotalCents"`
			Lines           []struct {
				UnitPriceCents int64 `json:"unitPriceCents"`
			} `json:"lines"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "USD", resp.Data.Currency)
	require.Len(t, resp.Data.Lines, 1)
	require.EqualValues(t, 2289, resp.Data.Lines[0].UnitPriceCents)
	require.EqualValues(t, 4578, resp.Data.SubtotalCents)
	require.EqualValues(t, 4578, resp.Data.GrandTotalCents)
}

func TestQuoteReportsConfiguredCurrency(t *testing.T) {
	h, productID := newQuoteHandler(fakePromotions{})
	h.Currency = "EUR"

	body := `{"lines":[{"productId":"` + productID.String() + `","quantity":1,"width":"30","height":"40"}]}`
	rec := postQuote(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Currency string `json:"currency"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "EUR", resp.Data.Currency)
}

func TestQuoteInvalidDimension(t *testing.T) {
	h, productID := newQuoteHandler(fakePromotions{})

	body := `{"lines":[{"productId":"` + productID.String() + `","quantity":1,"width":"500","height":"20"}]}`
	rec := postQuote(t, h, body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "INVALID_DIMENSION", resp.Error.Code)
}

func TestQuoteRejectsMalformedBody(t *testing.T) {
	h, _ := newQuoteHandler(fakePromotions{})

	rec := postQuote(t, h, `{"lines":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteRejectsEmptyLines(t *testing.T) {
	h, _ := newQuoteHandler(fakePromotions{})

	rec := postQuote(t, h, `{"lines":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuotePromotionsOutageIsRetryable(t *testing.T) {
	h, productID := newQuoteHandler(fakePromotions{err: errors.New("connection refused")})
	h.Engine.Reader = discount.CatalogReader{Store: fakePromotions{err: context.DeadlineExceeded}}

	body := `{"lines":[{"productId":"` + productID.String() + `","quantity":1,"width":"30","height":"40"}]}`
	rec := postQuote(t, h, body)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "PROMOTIONS_UNAVAILABLE", resp.Error.Code)
}
