package menu

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	catalog, err := Default()
	require.NoError(t, err)

	sizes := catalog.Sizes()
	require.Len(t, sizes, 4)
	require.Equal(t, "small", catalog.DefaultSize().ID)
	require.True(t, catalog.DefaultSize().USDSurcharge.IsZero())
	require.Equal(t, DefaultMaxToppings, catalog.MaxToppings())

	large, ok := catalog.Size("large")
	require.True(t, ok)
	require.Equal(t, "4", large.USDSurcharge.String())

	require.True(t, catalog.HasTopping("pepperoni"))
	require.False(t, catalog.HasTopping("anchovies"))
	require.NotEmpty(t, catalog.Groups())
}

func TestResolveSizeFallsBackToFirst(t *testing.T) {
	t.Parallel()

	catalog := MustDefault()
	require.Equal(t, "medium", catalog.ResolveSize("medium").ID)
	require.Equal(t, "small", catalog.ResolveSize("gigantic").ID)
	require.Equal(t, "small", catalog.ResolveSize("").ID)
}

func TestAccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	catalog := MustDefault()
	sizes := catalog.Sizes()
	sizes[0].ID = "mutated"
	require.Equal(t, "small", catalog.Sizes()[0].ID)

	groups := catalog.Groups()
	groups[0].Toppings[0].ID = "mutated"
	require.NotEqual(t, "mutated", catalog.Groups()[0].Toppings[0].ID)
}

func TestLoadCustomDocument(t *testing.T) {
	t.Parallel()

	doc := `
max_toppings: 3
sizes:
  - id: personal
    label: Personal
    usd_surcharge: "0"
  - id: party
    usd_surcharge: "3.50"
topping_groups:
  - id: all
    label: All
    toppings:
      - id: corn
        label: Corn
`
	catalog, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, 3, catalog.MaxToppings())
	require.Equal(t, "personal", catalog.DefaultSize().ID)

	party, ok := catalog.Size("party")
	require.True(t, ok)
	require.Equal(t, "party", party.Label)
	require.Equal(t, "3.5", party.USDSurcharge.String())

	corn, ok := catalog.Topping("corn")
	require.True(t, ok)
	require.Equal(t, "Corn", corn.Label)
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		doc  string
		want string
	}{
		"no sizes": {
			doc:  "topping_groups: []\n",
			want: "at least one size is required",
		},
		"duplicate size": {
			doc:  "sizes:\n  - id: a\n  - id: a\n",
			want: `duplicate id "a"`,
		},
		"negative surcharge": {
			doc:  "sizes:\n  - id: a\n    usd_surcharge: \"-1\"\n",
			want: "must not be negative",
		},
		"bad surcharge": {
			doc:  "sizes:\n  - id: a\n    usd_surcharge: lots\n",
			want: "is not a number",
		},
		"duplicate topping across groups": {
			doc:  "sizes:\n  - id: a\ntopping_groups:\n  - id: g1\n    toppings:\n      - id: x\n  - id: g2\n    toppings:\n      - id: x\n",
			want: `duplicate id "x"`,
		},
		"non-positive cap": {
			doc:  "max_toppings: 0\nsizes:\n  - id: a\n",
			want: "max_toppings must be positive",
		},
		"empty": {
			doc:  "",
			want: "document is empty",
		},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(strings.NewReader(tc.doc))
			require.Error(t, err)
			var validation *ValidationError
			require.True(t, errors.As(err, &validation), "expected ValidationError, got %v", err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := Load(strings.NewReader("sizes:\n  - id: a\n    price: 3\n"))
	require.Error(t, err)
}

func TestLoadFileEmptyPathUsesEmbeddedDocument(t *testing.T) {
	t.Parallel()

	catalog, err := LoadFile("  ")
	require.NoError(t, err)
	require.Len(t, catalog.Sizes(), 4)

	_, err = LoadFile("/definitely/not/here.yaml")
	require.Error(t, err)
}
