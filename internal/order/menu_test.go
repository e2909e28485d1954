package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestMenu_Match(t *testing.T) {
	m := DefaultMenu()
	cases := []struct {
		text     string
		category string
		want     []string
	}{
		{"i'd like a pepperoni pizza please", "", []string{"pizza-pepperoni"}},
		{"Mac & Cheese", "", []string{"pasta-mac"}},
		{"the veggie supreme", "", []string{"pizza-veggie"}},
		{"veggie", "", []string{"pizza-veggie", "burger-veggie"}},
		{"veggie", "burger", []string{"burger-veggie"}},
		{"a double cheese burger", "", []string{"burger-double"}},
		{"something with meatballs", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got := m.Match(tc.text, tc.category)
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, ids(got))
		})
	}
}

func TestMenu_CategoriesAndSearch(t *testing.T) {
	m := DefaultMenu()
	assert.Equal(t, []string{"pizza", "burger", "pasta", "sushi"}, m.Categories())
	assert.Len(t, m.InCategory("sushi"), 6)
	assert.Equal(t, "pasta", m.CategoryIn("Do you have any PASTA?"))

	found := m.Search("avocado")
	assert.ElementsMatch(t, []string{"sushi-california", "sushi-dragon", "sushi-rainbow"}, ids(found))

	rainbow, ok := m.Lookup("sushi-rainbow")
	require.True(t, ok)
	assert.False(t, rainbow.Available)
	assert.Equal(t, "Rainbow", rainbow.ShortName())
}
