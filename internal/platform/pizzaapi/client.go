// Package pizzaapi talks to the remote pizza REST API that owns the catalog and accepts orders.
package pizzaapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/domain"
	"github.com/omnipizza/storefront/internal/pricing"
)

const (
	defaultTimeout           = 10 * time.Second
	defaultIdempotencyHeader = "Idempotency-Key"
	countryHeader            = "X-Country-Code"
	maxErrorBody             = 512
)

// APIError is returned for non-2xx responses.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("pizzaapi: %s status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("pizzaapi: %s status %d: %s", e.Op, e.Status, e.Body)
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// ErrMissingCountry is returned when a catalog call omits the country.
var ErrMissingCountry = errors.New("pizzaapi: country is required")

// Option customises the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithToken sends a bearer token on every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithIdempotencyHeader renames the header carrying order idempotency keys.
func WithIdempotencyHeader(name string) Option {
	return func(c *Client) {
		if name = strings.TrimSpace(name); name != "" {
			c.idempotencyHeader = name
		}
	}
}

// WithLanguages maps a country to the Accept-Language sent for it.
func WithLanguages(languages map[string]string) Option {
	return func(c *Client) {
		for country, lang := range languages {
			c.languages[strings.ToUpper(country)] = lang
		}
	}
}

// WithFixtures overrides the catalog served when no base URL is configured.
func WithFixtures(fixtures Fixtures) Option {
	return func(c *Client) { c.fixtures = fixtures }
}

// Client issues catalog and order calls. When baseURL is empty the client serves fixture data.
type Client struct {
	baseURL           string
	token             string
	idempotencyHeader string
	languages         map[string]string
	http              *http.Client
	fixtures          Fixtures
}

// NewClient constructs an API client. A non-positive timeout uses 10s.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:           strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		idempotencyHeader: defaultIdempotencyHeader,
		languages:         make(map[string]string),
		http:              &http.Client{Timeout: timeout},
		fixtures:          DefaultFixtures(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// UsesFixtures reports whether the client runs in local demo mode.
func (c *Client) UsesFixtures() bool {
	return c == nil || c.baseURL == ""
}

// ListPizzas fetches the catalog priced for the given country.
func (c *Client) ListPizzas(ctx context.Context, country string) ([]domain.CatalogItem, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return nil, ErrMissingCountry
	}
	if c.UsesFixtures() {
		return c.fixtures.Pizzas(country), nil
	}

	endpoint, err := url.JoinPath(c.baseURL, "api", "pizzas")
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.decorate(req, country)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pizzaapi: list pizzas: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &APIError{Op: "list pizzas", Status: resp.StatusCode, Body: drainError(resp.Body)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pizzaapi: read pizzas: %w", err)
	}
	payloads, err := decodePizzaList(raw)
	if err != nil {
		return nil, fmt.Errorf("pizzaapi: decode pizzas: %w", err)
	}
	items := make([]domain.CatalogItem, 0, len(payloads))
	for _, p := range payloads {
		if strings.TrimSpace(p.ID.String()) == "" {
			continue
		}
		items = append(items, p.toDomain())
	}
	return items, nil
}

// CreateOrder submits an order. A missing idempotency key is replaced by a fresh ULID.
func (c *Client) CreateOrder(ctx context.Context, order domain.Order) (domain.OrderConfirmation, error) {
	country := strings.ToUpper(strings.TrimSpace(order.Country))
	if country == "" {
		return domain.OrderConfirmation{}, ErrMissingCountry
	}
	if c.UsesFixtures() {
		return c.fixtures.Confirm(order, time.Now().UTC()), nil
	}

	endpoint, err := url.JoinPath(c.baseURL, "api", "checkout")
	if err != nil {
		return domain.OrderConfirmation{}, err
	}
	body, err := json.Marshal(newOrderPayload(order))
	if err != nil {
		return domain.OrderConfirmation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.OrderConfirmation{}, err
	}
	c.decorate(req, country)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.idempotencyHeader, ensureIdempotencyKey(order.IdempotencyKey))

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.OrderConfirmation{}, fmt.Errorf("pizzaapi: create order: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return domain.OrderConfirmation{}, &APIError{Op: "create order", Status: resp.StatusCode, Body: drainError(resp.Body)}
	}

	var payload confirmationPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.OrderConfirmation{}, fmt.Errorf("pizzaapi: decode order: %w", err)
	}
	return payload.toDomain(order), nil
}

func (c *Client) decorate(req *http.Request, country string) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(countryHeader, country)
	if lang := c.languages[country]; lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func ensureIdempotencyKey(key string) string {
	if key = strings.TrimSpace(key); key != "" {
		return key
	}
	return ulid.Make().String()
}

func drainError(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}

// decodePizzaList accepts a bare array or an envelope with a "pizzas" or "data" array.
func decodePizzaList(raw []byte) ([]pizzaPayload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []pizzaPayload
		err := json.Unmarshal(raw, &list)
		return list, err
	}
	var envelope struct {
		Pizzas []pizzaPayload `json:"pizzas"`
		Data   []pizzaPayload `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if envelope.Pizzas != nil {
		return envelope.Pizzas, nil
	}
	return envelope.Data, nil
}

type pizzaPayload struct {
	ID             flexString `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Image          string     `json:"image"`
	Price          flexNumber `json:"price"`
	BasePrice      flexNumber `json:"base_price"`
	Currency       string     `json:"currency"`
	CurrencySymbol string     `json:"currency_symbol"`
}

func (p pizzaPayload) toDomain() domain.CatalogItem {
	return domain.CatalogItem{
		ID:             strings.TrimSpace(p.ID.String()),
		Name:           strings.TrimSpace(p.Name),
		Description:    strings.TrimSpace(p.Description),
		Image:          strings.TrimSpace(p.Image),
		Price:          p.Price.Decimal(),
		BasePrice:      p.BasePrice.Decimal(),
		Currency:       strings.ToUpper(strings.TrimSpace(p.Currency)),
		CurrencySymbol: strings.TrimSpace(p.CurrencySymbol),
	}
}

// flexNumber decodes whatever JSON value it is given through pricing.Numeric, so malformed
// prices degrade to zero instead of failing the whole catalog.
type flexNumber struct {
	value decimal.Decimal
}

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		n.value = decimal.Zero
		return nil
	}
	n.value = pricing.Numeric(raw)
	return nil
}

func (n flexNumber) Decimal() decimal.Decimal { return n.value }

// flexString accepts string or numeric identifiers.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}

func (s flexString) String() string { return string(s) }

type orderPayload struct {
	CartID        string             `json:"cartId,omitempty"`
	Country       string             `json:"country"`
	Currency      string             `json:"currency"`
	Items         []orderLinePayload `json:"items"`
	Customer      customerPayload    `json:"customer"`
	PaymentMethod string             `json:"paymentMethod"`
	Notes         string             `json:"notes,omitempty"`
	Subtotal      string             `json:"subtotal"`
}

type orderLinePayload struct {
	PizzaID   string   `json:"pizzaId"`
	Name      string   `json:"name"`
	Size      string   `json:"size"`
	Toppings  []string `json:"toppings"`
	Quantity  int      `json:"quantity"`
	UnitPrice string   `json:"unitPrice"`
}

type customerPayload struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	PostalCode string `json:"postalCode,omitempty"`
}

func newOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		CartID:        order.CartID,
		Country:       strings.ToUpper(order.Country),
		Currency:      order.Currency,
		Items:         make([]orderLinePayload, 0, len(order.Lines)),
		Customer:      customerPayload(order.Customer),
		PaymentMethod: order.PaymentMethod,
		Notes:         order.Notes,
		Subtotal:      order.Subtotal.String(),
	}
	for _, line := range order.Lines {
		payload.Items = append(payload.Items, orderLinePayload{
			PizzaID:   line.PizzaID,
			Name:      line.Name,
			Size:      line.SizeID,
			Toppings:  append([]string{}, line.ToppingIDs...),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.String(),
		})
	}
	return payload
}

type confirmationPayload struct {
	OrderID   flexString `json:"orderId"`
	ID        flexString `json:"id"`
	Status    string     `json:"status"`
	Total     flexNumber `json:"total"`
	Currency  string     `json:"currency"`
	CreatedAt string     `json:"createdAt"`
}

func (p confirmationPayload) toDomain(order domain.Order) domain.OrderConfirmation {
	id := strings.TrimSpace(p.OrderID.String())
	if id == "" {
		id = strings.TrimSpace(p.ID.String())
	}
	total := p.Total.Decimal()
	if total.IsZero() {
		total = order.Subtotal
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = order.Currency
	}
	status := strings.TrimSpace(p.Status)
	if status == "" {
		status = "received"
	}
	itemCount := 0
	for _, line := range order.Lines {
		itemCount += line.Quantity
	}
	return domain.OrderConfirmation{
		OrderID:   id,
		Status:    status,
		Country:   strings.ToUpper(order.Country),
		Currency:  currency,
		Subtotal:  order.Subtotal,
		Total:     total,
		ItemCount: itemCount,
		CreatedAt: parseTime(p.CreatedAt),
	}
}

func parseTime(val string) time.Time {
	val = strings.TrimSpace(val)
	if val == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, val); err == nil {
			return ts
		}
	}
	return time.Time{}
}
