package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnipizza/storefront/internal/services"
)

// CustomizationHandlers drive pizza customization sessions.
type CustomizationHandlers struct {
	markets        services.MarketService
	customizations services.CustomizationService
}

// NewCustomizationHandlers constructs customization handlers.
func NewCustomizationHandlers(markets services.MarketService, customizations services.CustomizationService) *CustomizationHandlers {
	return &CustomizationHandlers{markets: markets, customizations: customizations}
}

// Routes registers the /customizations endpoints.
func (h *CustomizationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/customizations", h.start)
	r.Post("/customizations:edit", h.startEdit)
	r.Get("/customizations/{sessionId}", h.get)
	r.Post("/customizations/{sessionId}/toppings/{toppingId}:toggle", h.toggleTopping)
	r.Put("/customizations/{sessionId}/size", h.selectSize)
	r.Post("/customizations/{sessionId}:confirm", h.confirm)
	r.Post("/customizations/{sessionId}:cancel", h.cancel)
}

type customizationPayload struct {
	ID            string             `json:"id"`
	State         string             `json:"state"`
	Market        marketPayload      `json:"market"`
	CartID        string             `json:"cartId,omitempty"`
	EditingLineID string             `json:"editingLineId,omitempty"`
	Pizza         catalogItemPayload `json:"pizza"`
	SizeID        string             `json:"sizeId"`
	ToppingIDs    []string           `json:"toppingIds"`
	AtCap         bool               `json:"atCap"`
	MaxToppings   int                `json:"maxToppings"`
	Quote         quotePayload       `json:"quote"`
	ExpiresAt     string             `json:"expiresAt,omitempty"`
	ToggleApplied *bool              `json:"toggleApplied,omitempty"`
}

type quotePayload struct {
	Rate          string       `json:"rate"`
	Base          moneyPayload `json:"base"`
	SizeSurcharge moneyPayload `json:"sizeSurcharge"`
	ToppingUnit   moneyPayload `json:"toppingUnit"`
	ToppingCount  int          `json:"toppingCount"`
	ToppingsTotal moneyPayload `json:"toppingsTotal"`
	UnitPrice     moneyPayload `json:"unitPrice"`
}

func buildCustomizationPayload(view services.CustomizationView) customizationPayload {
	lang := view.Market.Language
	currency := view.Quote.Currency
	if currency == "" {
		currency = view.Item.Currency
	}
	quote := view.Quote
	return customizationPayload{
		ID:            view.ID,
		State:         view.State.String(),
		Market:        buildMarket(view.Market),
		CartID:        view.CartID,
		EditingLineID: view.EditingLineID,
		Pizza:         buildCatalogItem(view.Item, lang),
		SizeID:        view.Configuration.SizeID,
		ToppingIDs:    append([]string{}, view.Configuration.ToppingIDs...),
		AtCap:         view.AtCap,
		MaxToppings:   view.MaxToppings,
		Quote: quotePayload{
			Rate:          quote.Rate.String(),
			Base:          buildMoney(quote.Base, currency, lang),
			SizeSurcharge: buildMoney(quote.SizeSurcharge, currency, lang),
			ToppingUnit:   buildMoney(quote.ToppingUnit, currency, lang),
			ToppingCount:  quote.ToppingCount,
			ToppingsTotal: buildMoney(quote.ToppingsTotal, currency, lang),
			UnitPrice:     buildMoney(quote.UnitPrice, currency, lang),
		},
		ExpiresAt:     formatTime(view.ExpiresAt),
		ToggleApplied: view.ToggleApplied,
	}
}

func (h *CustomizationHandlers) writeView(w http.ResponseWriter, status int, view services.CustomizationView) {
	writeJSONResponse(w, status, buildCustomizationPayload(view))
}

type startCustomizationRequest struct {
	PizzaID string `json:"pizzaId"`
	Country string `json:"country"`
}

func (h *CustomizationHandlers) start(w http.ResponseWriter, r *http.Request) {
	var req startCustomizationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.customizations.Start(r.Context(), services.StartCustomizationCommand{
		PizzaID: req.PizzaID,
		Country: requestCountry(r, req.Country),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeView(w, http.StatusCreated, view)
}

type editCustomizationRequest struct {
	CartID string `json:"cartId"`
	LineID string `json:"lineId"`
}

func (h *CustomizationHandlers) startEdit(w http.ResponseWriter, r *http.Request) {
	var req editCustomizationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.customizations.StartEdit(r.Context(), services.EditCustomizationCommand{CartID: req.CartID, LineID: req.LineID})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeView(w, http.StatusCreated, view)
}

func (h *CustomizationHandlers) get(w http.ResponseWriter, r *http.Request) {
	view, err := h.customizations.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeView(w, http.StatusOK, view)
}

func (h *CustomizationHandlers) toggleTopping(w http.ResponseWriter, r *http.Request) {
	view, err := h.customizations.ToggleTopping(r.Context(), chi.URLParam(r, "sessionId"), chi.URLParam(r, "toppingId"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeView(w, http.StatusOK, view)
}

type selectSizeRequest struct {
	SizeID string `json:"sizeId"`
}

func (h *CustomizationHandlers) selectSize(w http.ResponseWriter, r *http.Request) {
	var req selectSizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.customizations.SelectSize(r.Context(), chi.URLParam(r, "sessionId"), req.SizeID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeView(w, http.StatusOK, view)
}

type confirmCustomizationRequest struct {
	CartID   string `json:"cartId"`
	Quantity int    `json:"quantity"`
}

type confirmCustomizationResponse struct {
	LineID    string       `json:"lineId"`
	UnitPrice moneyPayload `json:"unitPrice"`
	Cart      cartPayload  `json:"cart"`
}

func (h *CustomizationHandlers) confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmCustomizationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.customizations.Confirm(r.Context(), services.ConfirmCustomizationCommand{
		SessionID: chi.URLParam(r, "sessionId"),
		CartID:    req.CartID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	market, err := h.markets.Resolve(result.Cart.Market)
	if err != nil {
		market = h.markets.Default()
	}
	writeJSONResponse(w, http.StatusOK, confirmCustomizationResponse{
		LineID:    result.LineID,
		UnitPrice: buildMoney(result.Priced.UnitPrice, result.Cart.Currency(), market.Language),
		Cart:      buildCartPayload(result.Cart, market),
	})
}

func (h *CustomizationHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.customizations.Cancel(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
