package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnipizza/storefront/internal/menu"
	"github.com/omnipizza/storefront/internal/services"
)

// MarketHandlers exposes the supported markets and the size/topping options.
type MarketHandlers struct {
	markets services.MarketService
	options *menu.Catalog
}

// NewMarketHandlers constructs market handlers.
func NewMarketHandlers(markets services.MarketService, options *menu.Catalog) *MarketHandlers {
	return &MarketHandlers{markets: markets, options: options}
}

// Routes registers /markets and /options.
func (h *MarketHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/markets", h.listMarkets)
	r.Get("/options", h.listOptions)
}

type marketsResponse struct {
	Default marketPayload   `json:"default"`
	Markets []marketPayload `json:"markets"`
}

func (h *MarketHandlers) listMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.List()
	payload := marketsResponse{
		Default: buildMarket(h.markets.Default()),
		Markets: make([]marketPayload, 0, len(markets)),
	}
	for _, market := range markets {
		payload.Markets = append(payload.Markets, buildMarket(market))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type optionsResponse struct {
	DefaultSize   string                `json:"defaultSize"`
	MaxToppings   int                   `json:"maxToppings"`
	Sizes         []sizePayload         `json:"sizes"`
	ToppingGroups []toppingGroupPayload `json:"toppingGroups"`
}

type sizePayload struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	USDSurcharge string `json:"usdSurcharge"`
}

type toppingGroupPayload struct {
	ID       string           `json:"id"`
	Label    string           `json:"label"`
	Toppings []toppingPayload `json:"toppings"`
}

type toppingPayload struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

func (h *MarketHandlers) listOptions(w http.ResponseWriter, r *http.Request) {
	payload := optionsResponse{
		DefaultSize:   h.options.DefaultSize().ID,
		MaxToppings:   h.options.MaxToppings(),
		Sizes:         []sizePayload{},
		ToppingGroups: []toppingGroupPayload{},
	}
	for _, size := range h.options.Sizes() {
		payload.Sizes = append(payload.Sizes, sizePayload{ID: size.ID, Label: size.Label, USDSurcharge: size.USDSurcharge.String()})
	}
	for _, group := range h.options.Groups() {
		entry := toppingGroupPayload{ID: group.ID, Label: group.Label, Toppings: make([]toppingPayload, 0, len(group.Toppings))}
		for _, topping := range group.Toppings {
			entry.Toppings = append(entry.Toppings, toppingPayload{ID: topping.ID, Label: topping.Label})
		}
		payload.ToppingGroups = append(payload.ToppingGroups, entry)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}
