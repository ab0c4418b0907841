package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnipizza/storefront/internal/platform/idempotency"
	"github.com/omnipizza/storefront/internal/services"
)

// CheckoutHandlers submit carts as orders.
type CheckoutHandlers struct {
	markets  services.MarketService
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(markets services.MarketService, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{markets: markets, checkout: checkout}
}

// Routes registers POST /checkout. Idempotency is applied by the router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout", h.submit)
}

type checkoutRequest struct {
	CartID        string          `json:"cartId"`
	Country       string          `json:"country"`
	Customer      customerRequest `json:"customer"`
	PaymentMethod string          `json:"paymentMethod"`
	Notes         string          `json:"notes"`
}

type customerRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	PostalCode string `json:"postalCode"`
}

type checkoutResponse struct {
	OrderID   string       `json:"orderId"`
	Status    string       `json:"status"`
	Country   string       `json:"country"`
	Subtotal  moneyPayload `json:"subtotal"`
	Total     moneyPayload `json:"total"`
	ItemCount int          `json:"itemCount"`
	CreatedAt string       `json:"createdAt"`
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	country := requestCountry(r, req.Country)
	confirmation, err := h.checkout.Submit(r.Context(), services.CheckoutCommand{
		CartID:  req.CartID,
		Country: country,
		Customer: services.Customer{
			Name:       req.Customer.Name,
			Phone:      req.Customer.Phone,
			Address:    req.Customer.Address,
			PostalCode: req.Customer.PostalCode,
		},
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get(idempotency.HeaderName),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	market, err := h.markets.Resolve(confirmation.Country)
	if err != nil {
		market = h.markets.Default()
	}
	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		OrderID:   confirmation.OrderID,
		Status:    confirmation.Status,
		Country:   confirmation.Country,
		Subtotal:  buildMoney(confirmation.Subtotal, confirmation.Currency, market.Language),
		Total:     buildMoney(confirmation.Total, confirmation.Currency, market.Language),
		ItemCount: confirmation.ItemCount,
		CreatedAt: formatTime(confirmation.CreatedAt),
	})
}
