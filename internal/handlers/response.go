package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/platform/httpx"
	"github.com/omnipizza/storefront/internal/platform/requestctx"
	"github.com/omnipizza/storefront/internal/pricing"
	"github.com/omnipizza/storefront/internal/services"
)

type moneyPayload struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Display  string `json:"display"`
}

func buildMoney(amount decimal.Decimal, currency, language string) moneyPayload {
	return moneyPayload{
		Amount:   amount.String(),
		Currency: currency,
		Display:  pricing.FormatPrice(amount, currency, language),
	}
}

type marketPayload struct {
	Country  string `json:"country"`
	Currency string `json:"currency"`
	Language string `json:"language"`
}

func buildMarket(market services.Market) marketPayload {
	return marketPayload{Country: market.Country, Currency: market.Currency, Language: market.Language}
}

// requestCountry picks the explicit country, then the X-Country-Code hint. An empty result
// resolves to the default market downstream.
func requestCountry(r *http.Request, explicit string) string {
	if country := strings.TrimSpace(explicit); country != "" {
		return country
	}
	if country := strings.TrimSpace(r.URL.Query().Get("country")); country != "" {
		return country
	}
	return requestctx.MarketHint(r.Context())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, status, payload)
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var validation *services.CheckoutValidationError
	switch {
	case errors.As(err, &validation):
		fields := make(map[string]any, len(validation.Fields))
		for name, problem := range validation.Fields {
			fields[name] = problem
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_checkout", "checkout details are invalid", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"fields": fields}))
	case errors.Is(err, services.ErrMarketUnsupported):
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_market", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("pizza_not_found", "pizza not found in this market", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "pizza catalog is unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customization_not_found", "customization not found or expired", http.StatusNotFound))
	case errors.Is(err, services.ErrSessionClosed):
		httpx.WriteError(ctx, w, httpx.NewError("customization_closed", "customization is already confirmed or cancelled", http.StatusConflict))
	case errors.Is(err, services.ErrCartInvalidInput), errors.Is(err, services.ErrCheckoutInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_line_not_found", "cart line not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartMarketMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("cart_market_mismatch", "cart belongs to another market; refresh prices first", http.StatusConflict))
	case errors.Is(err, services.ErrRefreshSuperseded):
		httpx.WriteError(ctx, w, httpx.NewError("refresh_superseded", "a newer price refresh replaced this one", http.StatusConflict))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart storage is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCheckoutRejected):
		httpx.WriteError(ctx, w, httpx.NewError("order_rejected", "the order was rejected", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "the order service is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Sugar().Errorw("unhandled service error", "error", err)
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteDecodeError(w, r, err)
		return false
	}
	return true
}
