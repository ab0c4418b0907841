package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/omnipizza/storefront/internal/services"
)

// CartHandlers exposes cart reads, line edits and the market price refresh.
type CartHandlers struct {
	markets services.MarketService
	carts   services.CartService
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(markets services.MarketService, carts services.CartService) *CartHandlers {
	return &CartHandlers{markets: markets, carts: carts}
}

// Routes wires the /carts endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/carts/{cartId}", h.getCart)
	r.Post("/carts/{cartId}:refresh", h.refreshCart)
	r.Patch("/carts/{cartId}/lines/{lineId}", h.updateLine)
	r.Delete("/carts/{cartId}/lines/{lineId}", h.removeLine)
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID              string            `json:"id"`
	Market          string            `json:"market"`
	Currency        string            `json:"currency,omitempty"`
	Lines           []cartLinePayload `json:"lines"`
	ItemCount       int               `json:"itemCount"`
	Subtotal        moneyPayload      `json:"subtotal"`
	PriceGeneration int64             `json:"priceGeneration"`
	UpdatedAt       string            `json:"updatedAt,omitempty"`
}

type cartLinePayload struct {
	ID         string       `json:"id"`
	PizzaID    string       `json:"pizzaId"`
	Name       string       `json:"name"`
	Image      string       `json:"image,omitempty"`
	SizeID     string       `json:"sizeId"`
	ToppingIDs []string     `json:"toppingIds"`
	Quantity   int          `json:"quantity"`
	UnitPrice  moneyPayload `json:"unitPrice"`
	LineTotal  moneyPayload `json:"lineTotal"`
	AddedAt    string       `json:"addedAt,omitempty"`
}

func (h *CartHandlers) writeCart(w http.ResponseWriter, cart services.Cart) {
	payload := buildCartPayload(cart, h.marketFor(cart))
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: payload})
}

func (h *CartHandlers) marketFor(cart services.Cart) services.Market {
	if market, err := h.markets.Resolve(cart.Market); err == nil {
		return market
	}
	return h.markets.Default()
}

func buildCartPayload(cart services.Cart, market services.Market) cartPayload {
	currency := cart.Currency()
	if currency == "" {
		currency = market.Currency
	}
	payload := cartPayload{
		ID:              cart.ID,
		Market:          cart.Market,
		Currency:        currency,
		Lines:           make([]cartLinePayload, 0, len(cart.Lines)),
		ItemCount:       cart.ItemCount(),
		Subtotal:        buildMoney(cart.Subtotal(), currency, market.Language),
		PriceGeneration: cart.PriceGeneration,
		UpdatedAt:       formatTime(cart.UpdatedAt),
	}
	for _, line := range cart.Lines {
		toppings := append([]string{}, line.Configuration.ToppingIDs...)
		payload.Lines = append(payload.Lines, cartLinePayload{
			ID:         line.ID,
			PizzaID:    line.Item.ID,
			Name:       line.Item.Name,
			Image:      line.Item.Image,
			SizeID:     line.Configuration.SizeID,
			ToppingIDs: toppings,
			Quantity:   line.Quantity,
			UnitPrice:  buildMoney(line.UnitPrice, line.Currency, market.Language),
			LineTotal:  buildMoney(line.LineTotal(), line.Currency, market.Language),
			AddedAt:    formatTime(line.AddedAt),
		})
	}
	return payload
}

func buildCartETag(cart services.Cart) string {
	if strings.TrimSpace(cart.ID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d:%d", cart.ID, cart.UpdatedAt.UTC().UnixNano(), cart.PriceGeneration)
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetCart(r.Context(), chi.URLParam(r, "cartId"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, cart)
}

type refreshCartRequest struct {
	Country string `json:"country"`
}

func (h *CartHandlers) refreshCart(w http.ResponseWriter, r *http.Request) {
	var req refreshCartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cart, err := h.carts.RefreshPrices(r.Context(), chi.URLParam(r, "cartId"), requestCountry(r, req.Country))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, cart)
}

type updateLineRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandlers) updateLine(w http.ResponseWriter, r *http.Request) {
	var req updateLineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		writeServiceError(r.Context(), w, fmt.Errorf("%w: quantity is required", services.ErrCartInvalidInput))
		return
	}
	cart, err := h.carts.UpdateQuantity(r.Context(), chi.URLParam(r, "cartId"), chi.URLParam(r, "lineId"), *req.Quantity)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, cart)
}

func (h *CartHandlers) removeLine(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.RemoveLine(r.Context(), chi.URLParam(r, "cartId"), chi.URLParam(r, "lineId"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.writeCart(w, cart)
}
