package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/omnipizza/storefront/internal/domain"
	pfirestore "github.com/omnipizza/storefront/internal/platform/firestore"
	"github.com/omnipizza/storefront/internal/repositories"
)

const defaultCartCollection = "carts"

// CartRepository persists whole carts, lines included, as single Firestore documents.
type CartRepository struct {
	provider   *pfirestore.Provider
	collection *pfirestore.Collection[cartDocument]
	now        func() time.Time
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider, collection string, clock func() time.Time) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultCartCollection
	}
	if clock == nil {
		clock = time.Now
	}
	return &CartRepository{
		provider:   provider,
		collection: pfirestore.NewCollection[cartDocument](provider, collection),
		now:        clock,
	}, nil
}

// GetCart loads the cart document.
func (r *CartRepository) GetCart(ctx context.Context, cartID string) (domain.Cart, error) {
	doc, err := r.collection.Get(ctx, strings.TrimSpace(cartID))
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// SaveCart writes the cart inside a transaction so the UpdatedAt precondition and the write are atomic.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart, expectedUpdatedAt *time.Time) (domain.Cart, error) {
	cartID := strings.TrimSpace(cart.ID)
	ref, err := r.collection.Ref(ctx, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	op := r.collection.Op("save")

	var saved domain.Cart
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, exists, err := r.collection.GetTx(tx, ref)
		if err != nil {
			return err
		}
		if expectedUpdatedAt != nil {
			switch {
			case expectedUpdatedAt.IsZero() && exists:
				return pfirestore.ConflictError(op, "cart "+cartID+" already exists")
			case !expectedUpdatedAt.IsZero() && (!exists || !current.Data.UpdatedAt.Equal(expectedUpdatedAt.UTC().Truncate(time.Microsecond))):
				return pfirestore.ConflictError(op, "cart "+cartID+" was modified concurrently")
			}
		}

		next := cart.Clone()
		next.ID = cartID
		next.UpdatedAt = repositories.NextVersion(r.now(), current.Data.UpdatedAt)
		switch {
		case exists && !current.Data.CreatedAt.IsZero():
			next.CreatedAt = current.Data.CreatedAt
		case next.CreatedAt.IsZero():
			next.CreatedAt = next.UpdatedAt
		}
		next.CreatedAt = next.CreatedAt.UTC()

		if err := tx.Set(ref, newCartDocument(next)); err != nil {
			return pfirestore.WrapError(op, err)
		}
		saved = next
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return saved, nil
}

// DeleteCart removes the cart document.
func (r *CartRepository) DeleteCart(ctx context.Context, cartID string) error {
	return r.collection.Delete(ctx, strings.TrimSpace(cartID))
}

type cartDocument struct {
	Market          string             `firestore:"market"`
	Lines           []cartLineDocument `firestore:"lines"`
	PriceGeneration int64              `firestore:"priceGeneration"`
	CreatedAt       time.Time          `firestore:"createdAt"`
	UpdatedAt       time.Time          `firestore:"updatedAt"`
}

type cartLineDocument struct {
	ID             string         `firestore:"id"`
	Item           catalogItemDoc `firestore:"item"`
	SizeID         string         `firestore:"sizeId"`
	ToppingIDs     []string       `firestore:"toppingIds"`
	UnitPrice      string         `firestore:"unitPrice"`
	Quantity       int            `firestore:"quantity"`
	Currency       string         `firestore:"currency"`
	CurrencySymbol string         `firestore:"currencySymbol,omitempty"`
	AddedAt        time.Time      `firestore:"addedAt"`
}

type catalogItemDoc struct {
	ID          string `firestore:"id"`
	Name        string `firestore:"name"`
	Description string `firestore:"description,omitempty"`
	Image       string `firestore:"image,omitempty"`
	Price       string `firestore:"price"`
	BasePrice   string `firestore:"basePrice"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		Market:          strings.ToUpper(strings.TrimSpace(cart.Market)),
		Lines:           make([]cartLineDocument, 0, len(cart.Lines)),
		PriceGeneration: cart.PriceGeneration,
		CreatedAt:       cart.CreatedAt,
		UpdatedAt:       cart.UpdatedAt,
	}
	for _, line := range cart.Lines {
		doc.Lines = append(doc.Lines, cartLineDocument{
			ID: line.ID,
			Item: catalogItemDoc{
				ID:          line.Item.ID,
				Name:        line.Item.Name,
				Description: line.Item.Description,
				Image:       line.Item.Image,
				Price:       line.Item.Price.String(),
				BasePrice:   line.Item.BasePrice.String(),
			},
			SizeID:         line.Configuration.SizeID,
			ToppingIDs:     append([]string{}, line.Configuration.ToppingIDs...),
			UnitPrice:      line.UnitPrice.String(),
			Quantity:       line.Quantity,
			Currency:       line.Currency,
			CurrencySymbol: line.CurrencySymbol,
			AddedAt:        line.AddedAt.UTC(),
		})
	}
	return doc
}

func (d cartDocument) toDomain(id string) (domain.Cart, error) {
	cart := domain.Cart{
		ID:              id,
		Market:          d.Market,
		Lines:           make([]domain.CartLine, 0, len(d.Lines)),
		PriceGeneration: d.PriceGeneration,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, line := range d.Lines {
		unit, err := parseAmount(line.UnitPrice)
		if err != nil {
			return domain.Cart{}, err
		}
		price, err := parseAmount(line.Item.Price)
		if err != nil {
			return domain.Cart{}, err
		}
		base, err := parseAmount(line.Item.BasePrice)
		if err != nil {
			return domain.Cart{}, err
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID: line.ID,
			Item: domain.CatalogItem{
				ID:             line.Item.ID,
				Name:           line.Item.Name,
				Description:    line.Item.Description,
				Image:          line.Item.Image,
				Price:          price,
				BasePrice:      base,
				Currency:       line.Currency,
				CurrencySymbol: line.CurrencySymbol,
			},
			Configuration: domain.PizzaConfiguration{
				SizeID:     line.SizeID,
				ToppingIDs: append([]string(nil), line.ToppingIDs...),
			},
			UnitPrice:      unit,
			Quantity:       line.Quantity,
			Currency:       line.Currency,
			CurrencySymbol: line.CurrencySymbol,
			AddedAt:        line.AddedAt,
		})
	}
	return cart, nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

var _ repositories.CartRepository = (*CartRepository)(nil)
