package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decorluxe/backend-blinds/internal/cart"
	"github.com/decorluxe/backend-blinds/internal/common"
	"github.com/decorluxe/backend-blinds/internal/discount"
	"github.com/decorluxe/backend-blinds/internal/engine"
)

// LineInput is one requested cart line. Width and height are decimal strings
// so callers never lose precision to float encoding.
type LineInput struct {
	ID                uuid.UUID   `json:"id"`
	ProductID         uuid.UUID   `json:"productId" validate:"required"`
	Quantity          int32       `json:"quantity" validate:"required,gt=0"`
	Width             json.Number `json:"width" validate:"required"`
	Height            json.Number `json:"height" validate:"required"`
	SelectedOptionIDs []uuid.UUID `json:"selectedOptionIds"`
}

// QuoteInput is the request body for POST /v1/checkout/quote.
type QuoteInput struct {
	SnapshotID   uuid.UUID   `json:"snapshotId"`
	CustomerID   *uuid.UUID  `json:"customerId"`
	CustomerType string      `json:"customerType" validate:"omitempty,oneof=retail commercial trade"`
	CouponCodes  []string    `json:"couponCodes" validate:"max=10"`
	Lines        []LineInput `json:"lines" validate:"required,min=1,max=100,dive"`
}

// SettleInput is the request body for POST /v1/checkout/settle.
type SettleInput struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
	QuoteInput
}

// Handler exposes the pricing engine over HTTP. Currency is the ISO 4217
// code all cent amounts are denominated in; it defaults to USD.
type Handler struct {
	Engine   *engine.Engine
	Validate *validator.Validate
	Currency string
}

func (h *Handler) currency() string {
	if h.Currency == "" {
		return "USD"
	}
	return h.Currency
}

// Quote prices a cart snapshot without side effects.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	var payload QuoteInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	snap, err := h.buildSnapshot(payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	priced, err := h.Engine.ComputePricedCart(r.Context(), snap, payload.CouponCodes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": toQuoteResponse(priced, h.currency())})
}

// Settle reserves coupon usage and writes commission records for an order.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing engine not configured", nil)
		return
	}
	var payload SettleInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if payload.OrderID == uuid.Nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
		return
	}
	snap, err := h.buildSnapshot(payload.QuoteInput)
	if err != nil {
		h.writeError(w, err)
		return
	}
	settlement, err := h.Engine.ReserveAndSettle(r.Context(), payload.OrderID, snap, payload.CouponCodes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if settlement.AlreadySettled {
		status = http.StatusOK
	}
	common.JSON(w, status, map[string]any{"data": settlement})
}

func (h *Handler) buildSnapshot(payload QuoteInput) (cart.Snapshot, error) {
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			return cart.Snapshot{}, common.NewAppError("BAD_REQUEST", err.Error(), http.StatusBadRequest, err)
		}
	}
	customerType := cart.CustomerType(payload.CustomerType)
	if payload.CustomerType == "" {
		customerType = cart.CustomerRetail
	}
	snap := cart.Snapshot{
		ID:           payload.SnapshotID,
		CustomerID:   payload.CustomerID,
		CustomerType: customerType,
	}
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	for _, li := range payload.Lines {
		width, err := decimal.NewFromString(li.Width.String())
		if err != nil {
			return cart.Snapshot{}, common.BadInput(common.CodeInvalidDimension, "width is not a valid decimal", err)
		}
		height, err := decimal.NewFromString(li.Height.String())
		if err != nil {
			return cart.Snapshot{}, common.BadInput(common.CodeInvalidDimension, "height is not a valid decimal", err)
		}
		id := li.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		snap.Lines = append(snap.Lines, cart.LineItem{
			ID:                id,
			ProductID:         li.ProductID,
			Quantity:          li.Quantity,
			Width:             width,
			Height:            height,
			SelectedOptionIDs: li.SelectedOptionIDs,
		})
	}
	return snap, nil
}

type lineResponse struct {
	ID                   uuid.UUID    `json:"id"`
	ProductID            uuid.UUID    `json:"productId"`
	VendorID             uuid.UUID    `json:"vendorId"`
	Quantity             int32        `json:"quantity"`
	UnitPriceCents       common.Cents `json:"unitPriceCents"`
	OptionSurchargeCents common.Cents `json:"optionSurchargeCents"`
	SubtotalCents        common.Cents `json:"subtotalCents"`
}

type quoteResponse struct {
	SnapshotID         uuid.UUID              `json:"snapshotId"`
	Currency           string                 `json:"currency"`
	Lines              []lineResponse         `json:"lines"`
	Applied            []cart.AppliedDiscount `json:"appliedDiscounts"`
	Exclusions         []cart.Exclusion       `json:"excludedDiscounts"`
	SubtotalCents      common.Cents           `json:"subtotalCents"`
	TotalDiscountCents common.Cents           `json:"totalDiscountCents"`
	GrandTotalCents    common.Cents           `json:"grandTotalCents"`
}

func toQuoteResponse(priced cart.PricedCart, currency string) quoteResponse {
	out := quoteResponse{
		SnapshotID:         priced.SnapshotID,
		Currency:           currency,
		Applied:            priced.Applied,
		Exclusions:         priced.Exclusions,
		SubtotalCents:      priced.SubtotalCents,
		TotalDiscountCents: priced.TotalDiscountCents,
		GrandTotalCents:    priced.GrandTotalCents,
	}
	for _, li := range priced.Lines {
		out.Lines = append(out.Lines, lineResponse{
			ID:                   li.ID,
			ProductID:            li.ProductID,
			VendorID:             li.VendorID,
			Quantity:             li.Quantity,
			UnitPriceCents:       li.UnitPriceCents,
			OptionSurchargeCents: li.OptionSurchargeCents,
			SubtotalCents:        li.SubtotalCents(),
		})
	}
	return out
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	if errors.Is(err, cart.ErrEmptySnapshot) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cart snapshot has no line items", nil)
		return
	}
	if errors.Is(err, discount.ErrPromotionsUnavailable) {
		common.JSONError(w, http.StatusServiceUnavailable, "PROMOTIONS_UNAVAILABLE", "promotions store unavailable, retry", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
}
