package pizzaapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/domain"
)

func TestListPizzasSendsMarketHeadersAndDegradesBadPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pizzas" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Country-Code"); got != "MX" {
			t.Errorf("expected country header MX, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tkn" {
			t.Errorf("unexpected authorization %q", got)
		}
		if got := r.Header.Get("Accept-Language"); got != "es-MX" {
			t.Errorf("unexpected accept-language %q", got)
		}
		_, _ = io.WriteString(w, `[
			{"id":"margherita","name":"Margherita","price":120,"base_price":"8","currency":"mxn","currency_symbol":"$"},
			{"id":7,"name":"Broken","price":"abc","base_price":null},
			{"name":"no id","price":1}
		]`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second, WithToken(" tkn "), WithLanguages(map[string]string{"mx": "es-MX"}))
	items, err := client.ListPizzas(context.Background(), "mx")
	if err != nil {
		t.Fatalf("ListPizzas: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if !items[0].Price.Equal(decimal.NewFromInt(120)) || !items[0].BasePrice.Equal(decimal.NewFromInt(8)) || items[0].Currency != "MXN" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].ID != "7" || !items[1].Price.IsZero() || !items[1].BasePrice.IsZero() {
		t.Fatalf("expected malformed prices to degrade to zero, got %+v", items[1])
	}
}

func TestListPizzasAcceptsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"pizzas":[{"id":"veggie","price":"9.5","base_price":9.5}]}`)
	}))
	defer srv.Close()

	items, err := NewClient(srv.URL, 0).ListPizzas(context.Background(), "US")
	if err != nil {
		t.Fatalf("ListPizzas: %v", err)
	}
	if len(items) != 1 || items[0].ID != "veggie" {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestListPizzasReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).ListPizzas(context.Background(), "US")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Body != "upstream down" || !apiErr.Temporary() {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestListPizzasRequiresCountry(t *testing.T) {
	if _, err := NewClient("", 0).ListPizzas(context.Background(), " "); !errors.Is(err, ErrMissingCountry) {
		t.Fatalf("expected ErrMissingCountry, got %v", err)
	}
}

func TestCreateOrderPostsPayloadWithIdempotencyKey(t *testing.T) {
	var (
		gotKey  string
		payload orderPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/checkout" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"ord-42","status":"accepted","total":"310.00","createdAt":"2026-05-01T10:00:00Z"}`)
	}))
	defer srv.Close()

	order := domain.Order{
		Country:  "mx",
		Currency: "MXN",
		Lines: []domain.OrderLine{{
			PizzaID: "margherita", SizeID: "medium", ToppingIDs: []string{"ham"}, Quantity: 2, UnitPrice: decimal.NewFromInt(150),
		}},
		Customer:      domain.Customer{Name: "Ana", Phone: "555", Address: "Calle 1", PostalCode: "01000"},
		PaymentMethod: "cash",
		Subtotal:      decimal.NewFromInt(300),
	}
	confirmation, err := NewClient(srv.URL, time.Second).CreateOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if gotKey == "" {
		t.Fatal("expected a generated idempotency key")
	}
	if payload.Country != "MX" || len(payload.Items) != 1 || payload.Items[0].UnitPrice != "150" || payload.Customer.PostalCode != "01000" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if confirmation.OrderID != "ord-42" || confirmation.Status != "accepted" || confirmation.Currency != "MXN" {
		t.Fatalf("unexpected confirmation %+v", confirmation)
	}
	if !confirmation.Total.Equal(decimal.NewFromInt(310)) || confirmation.ItemCount != 2 || confirmation.CreatedAt.IsZero() {
		t.Fatalf("unexpected confirmation totals %+v", confirmation)
	}
}

func TestCreateOrderForwardsCallerKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Request-Key")
		_, _ = io.WriteString(w, `{"orderId":"ord-1"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, WithIdempotencyHeader("X-Request-Key"))
	if _, err := client.CreateOrder(context.Background(), domain.Order{Country: "US", IdempotencyKey: "key-1"}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if gotKey != "key-1" {
		t.Fatalf("expected caller key to be forwarded, got %q", gotKey)
	}
}

func TestFixtureModeServesDemoCatalog(t *testing.T) {
	client := NewClient("", 0)
	if !client.UsesFixtures() {
		t.Fatal("expected fixture mode without base URL")
	}

	items, err := client.ListPizzas(context.Background(), "JP")
	if err != nil {
		t.Fatalf("ListPizzas: %v", err)
	}
	if len(items) == 0 || items[0].Currency != "JPY" || !items[0].Price.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected fixture items %+v", items)
	}

	confirmation, err := client.CreateOrder(context.Background(), domain.Order{Country: "jp", Currency: "JPY", Subtotal: decimal.NewFromInt(1200)})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if confirmation.OrderID == "" || confirmation.Status != "confirmed" || confirmation.Country != "JP" {
		t.Fatalf("unexpected fixture confirmation %+v", confirmation)
	}
}
