package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnipizza/storefront/internal/services"
)

// CatalogHandlers serves the market-priced pizza catalog.
type CatalogHandlers struct {
	markets services.MarketService
	catalog services.CatalogService
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(markets services.MarketService, catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{markets: markets, catalog: catalog}
}

// Routes registers GET /catalog.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/catalog", h.listCatalog)
}

type catalogResponse struct {
	Market marketPayload        `json:"market"`
	Pizzas []catalogItemPayload `json:"pizzas"`
}

type catalogItemPayload struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Image       string       `json:"image,omitempty"`
	Price       moneyPayload `json:"price"`
	BasePrice   string       `json:"basePriceUsd"`
}

func buildCatalogItem(item services.CatalogItem, language string) catalogItemPayload {
	return catalogItemPayload{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		Image:       item.Image,
		Price:       buildMoney(item.Price, item.Currency, language),
		BasePrice:   item.BasePrice.String(),
	}
}

func (h *CatalogHandlers) listCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	market, err := h.markets.Resolve(requestCountry(r, ""))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items, err := h.catalog.List(ctx, market.Country)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	payload := catalogResponse{Market: buildMarket(market), Pizzas: make([]catalogItemPayload, 0, len(items))}
	for _, item := range items {
		payload.Pizzas = append(payload.Pizzas, buildCatalogItem(item, market.Language))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}
