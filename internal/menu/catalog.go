package menu

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/omnipizza/storefront/internal/domain"
)

// DefaultMaxToppings caps the number of toppings on one pizza when the document omits it.
const DefaultMaxToppings = 10

//go:embed options.yaml
var defaultDocument []byte

// ValidationError lists every problem found in an options document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("menu options: invalid document: %s", strings.Join(e.Problems, "; "))
}

// Catalog is the immutable size and topping table shared by every customization session.
type Catalog struct {
	sizes       []domain.SizeOption
	sizeIndex   map[string]int
	groups      []domain.ToppingGroup
	toppings    map[string]domain.ToppingItem
	maxToppings int
}

type document struct {
	MaxToppings   *int              `yaml:"max_toppings"`
	Sizes         []sizeDoc         `yaml:"sizes"`
	ToppingGroups []toppingGroupDoc `yaml:"topping_groups"`
}

type sizeDoc struct {
	ID           string `yaml:"id"`
	Label        string `yaml:"label"`
	USDSurcharge string `yaml:"usd_surcharge"`
}

type toppingGroupDoc struct {
	ID       string       `yaml:"id"`
	Label    string       `yaml:"label"`
	Toppings []toppingDoc `yaml:"toppings"`
}

type toppingDoc struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// Default parses the embedded options document.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultDocument))
}

// MustDefault is Default for package-level initialisation in tests and tools.
func MustDefault() *Catalog {
	catalog, err := Default()
	if err != nil {
		panic(err)
	}
	return catalog
}

// LoadFile reads an options document from disk. An empty path selects the embedded document.
func LoadFile(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("menu options: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates an options document.
func Load(r io.Reader) (*Catalog, error) {
	if r == nil {
		return nil, errors.New("menu options: reader is nil")
	}
	var doc document
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Problems: []string{"document is empty"}}
		}
		return nil, fmt.Errorf("menu options: decode: %w", err)
	}
	return build(doc)
}

func build(doc document) (*Catalog, error) {
	var problems []string

	catalog := &Catalog{
		sizeIndex:   make(map[string]int, len(doc.Sizes)),
		toppings:    make(map[string]domain.ToppingItem),
		maxToppings: DefaultMaxToppings,
	}
	if doc.MaxToppings != nil {
		if *doc.MaxToppings <= 0 {
			problems = append(problems, "max_toppings must be positive")
		}
		catalog.maxToppings = *doc.MaxToppings
	}

	if len(doc.Sizes) == 0 {
		problems = append(problems, "at least one size is required")
	}
	for idx, raw := range doc.Sizes {
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			problems = append(problems, fmt.Sprintf("sizes[%d]: id is required", idx))
			continue
		}
		if _, dup := catalog.sizeIndex[id]; dup {
			problems = append(problems, fmt.Sprintf("sizes[%d]: duplicate id %q", idx, id))
			continue
		}
		surcharge := decimal.Zero
		if s := strings.TrimSpace(raw.USDSurcharge); s != "" {
			parsed, err := decimal.NewFromString(s)
			if err != nil {
				problems = append(problems, fmt.Sprintf("sizes[%d]: usd_surcharge %q is not a number", idx, s))
				continue
			}
			surcharge = parsed
		}
		if surcharge.IsNegative() {
			problems = append(problems, fmt.Sprintf("sizes[%d]: usd_surcharge must not be negative", idx))
			continue
		}
		label := strings.TrimSpace(raw.Label)
		if label == "" {
			label = id
		}
		catalog.sizeIndex[id] = len(catalog.sizes)
		catalog.sizes = append(catalog.sizes, domain.SizeOption{ID: id, Label: label, USDSurcharge: surcharge})
	}

	for gIdx, rawGroup := range doc.ToppingGroups {
		group := domain.ToppingGroup{ID: strings.TrimSpace(rawGroup.ID), Label: strings.TrimSpace(rawGroup.Label)}
		if group.ID == "" {
			problems = append(problems, fmt.Sprintf("topping_groups[%d]: id is required", gIdx))
			continue
		}
		for tIdx, rawTopping := range rawGroup.Toppings {
			id := strings.TrimSpace(rawTopping.ID)
			if id == "" {
				problems = append(problems, fmt.Sprintf("topping_groups[%d].toppings[%d]: id is required", gIdx, tIdx))
				continue
			}
			if _, dup := catalog.toppings[id]; dup {
				problems = append(problems, fmt.Sprintf("topping_groups[%d].toppings[%d]: duplicate id %q", gIdx, tIdx, id))
				continue
			}
			label := strings.TrimSpace(rawTopping.Label)
			if label == "" {
				label = id
			}
			item := domain.ToppingItem{ID: id, Label: label}
			catalog.toppings[id] = item
			group.Toppings = append(group.Toppings, item)
		}
		catalog.groups = append(catalog.groups, group)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return catalog, nil
}

// Sizes returns the size table in display order.
func (c *Catalog) Sizes() []domain.SizeOption {
	return append([]domain.SizeOption(nil), c.sizes...)
}

// DefaultSize is the first size of the table.
func (c *Catalog) DefaultSize() domain.SizeOption {
	return c.sizes[0]
}

// Size looks up a size by id.
func (c *Catalog) Size(id string) (domain.SizeOption, bool) {
	idx, ok := c.sizeIndex[id]
	if !ok {
		return domain.SizeOption{}, false
	}
	return c.sizes[idx], true
}

// ResolveSize returns the size with the given id, or the default size when the id is unknown.
func (c *Catalog) ResolveSize(id string) domain.SizeOption {
	if size, ok := c.Size(id); ok {
		return size
	}
	return c.DefaultSize()
}

// Groups returns the topping groups in display order.
func (c *Catalog) Groups() []domain.ToppingGroup {
	out := make([]domain.ToppingGroup, len(c.groups))
	for idx, group := range c.groups {
		group.Toppings = append([]domain.ToppingItem(nil), group.Toppings...)
		out[idx] = group
	}
	return out
}

// Topping looks up a topping by id across all groups.
func (c *Catalog) Topping(id string) (domain.ToppingItem, bool) {
	item, ok := c.toppings[id]
	return item, ok
}

// HasTopping reports whether id names a known topping.
func (c *Catalog) HasTopping(id string) bool {
	_, ok := c.toppings[id]
	return ok
}

// MaxToppings is the topping cap per pizza.
func (c *Catalog) MaxToppings() int {
	return c.maxToppings
}
