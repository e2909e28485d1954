package order

import (
	"sort"
	"strings"
)

// Item is one dish on the menu. Prices are in cents.
type Item struct {
	ID          string
	Key         string
	Name        string
	Category    string
	Description string
	Price       int64
	Available   bool
	Aliases     []string
}

// ShortName drops the category suffix ("Pepperoni Pizza" -> "Pepperoni").
func (i Item) ShortName() string {
	n := i.Name
	for _, suffix := range []string{" Pizza", " Burger", " Roll", " Pasta"} {
		n = strings.TrimSuffix(n, suffix)
	}
	return n
}

// Menu is an immutable, ordered catalog.
type Menu struct {
	categories []string
	items      []Item
	byID       map[string]Item
}

// NewMenu builds a catalog; item order is preserved for listings.
func NewMenu(items []Item) *Menu {
	m := &Menu{byID: make(map[string]Item, len(items))}
	seen := map[string]bool{}
	for _, it := range items {
		m.items = append(m.items, it)
		m.byID[it.ID] = it
		if !seen[it.Category] {
			seen[it.Category] = true
			m.categories = append(m.categories, it.Category)
		}
	}
	return m
}

// DefaultMenu is the house catalog.
func DefaultMenu() *Menu {
	return NewMenu([]Item{
		{ID: "pizza-margherita", Key: "margherita", Name: "Margherita Pizza", Category: "pizza", Description: "Fresh tomatoes, mozzarella, basil", Price: 1599, Available: true},
		{ID: "pizza-pepperoni", Key: "pepperoni", Name: "Pepperoni Pizza", Category: "pizza", Description: "Pepperoni, mozzarella, tomato sauce", Price: 1799, Available: true},
		{ID: "pizza-veggie", Key: "veggie", Name: "Veggie Supreme", Category: "pizza", Description: "Bell peppers, mushrooms, onions, olives", Price: 1699, Available: true, Aliases: []string{"veggie supreme"}},
		{ID: "pizza-bbq", Key: "bbq", Name: "BBQ Chicken Pizza", Category: "pizza", Description: "Grilled chicken, BBQ sauce, red onions", Price: 1899, Available: true, Aliases: []string{"barbecue"}},
		{ID: "pizza-hawaiian", Key: "hawaiian", Name: "Hawaiian Pizza", Category: "pizza", Description: "Ham, pineapple, mozzarella", Price: 1749, Available: true},
		{ID: "pizza-meat", Key: "meat", Name: "Meat Lovers", Category: "pizza", Description: "Pepperoni, sausage, ham, bacon", Price: 1999, Available: true, Aliases: []string{"meat lovers"}},

		{ID: "burger-classic", Key: "classic", Name: "Classic Burger", Category: "burger", Description: "Beef patty, lettuce, tomato, onion", Price: 1299, Available: true},
		{ID: "burger-cheese", Key: "cheese", Name: "Cheese Burger", Category: "burger", Description: "Beef patty with melted cheese", Price: 1399, Available: true, Aliases: []string{"cheeseburger"}},
		{ID: "burger-bacon", Key: "bacon", Name: "Bacon Burger", Category: "burger", Description: "Beef patty with crispy bacon", Price: 1499, Available: true},
		{ID: "burger-chicken", Key: "chicken", Name: "Chicken Burger", Category: "burger", Description: "Grilled chicken breast with mayo", Price: 1399, Available: true},
		{ID: "burger-veggie", Key: "veggie", Name: "Veggie Burger", Category: "burger", Description: "Plant-based patty with fresh veggies", Price: 1199, Available: true},
		{ID: "burger-double", Key: "double", Name: "Double Cheese Burger", Category: "burger", Description: "Two beef patties with double cheese", Price: 1699, Available: true},

		{ID: "pasta-spaghetti", Key: "spaghetti", Name: "Spaghetti Carbonara", Category: "pasta", Description: "Spaghetti with bacon, eggs, parmesan", Price: 1499, Available: true, Aliases: []string{"carbonara"}},
		{ID: "pasta-fettuccine", Key: "fettuccine", Name: "Fettuccine Alfredo", Category: "pasta", Description: "Fettuccine with creamy alfredo sauce", Price: 1599, Available: true, Aliases: []string{"alfredo"}},
		{ID: "pasta-lasagna", Key: "lasagna", Name: "Beef Lasagna", Category: "pasta", Description: "Layered pasta with beef and cheese", Price: 1699, Available: true},
		{ID: "pasta-penne", Key: "penne", Name: "Penne Arrabbiata", Category: "pasta", Description: "Penne with spicy tomato sauce", Price: 1399, Available: true, Aliases: []string{"arrabbiata"}},
		{ID: "pasta-ravioli", Key: "ravioli", Name: "Cheese Ravioli", Category: "pasta", Description: "Cheese-filled ravioli with marinara", Price: 1599, Available: true},
		{ID: "pasta-mac", Key: "mac", Name: "Mac & Cheese", Category: "pasta", Description: "Creamy macaroni and cheese", Price: 1299, Available: true, Aliases: []string{"mac and cheese", "macaroni"}},

		{ID: "sushi-california", Key: "california", Name: "California Roll", Category: "sushi", Description: "Crab, avocado, cucumber", Price: 1899, Available: true},
		{ID: "sushi-philadelphia", Key: "philadelphia", Name: "Philadelphia Roll", Category: "sushi", Description: "Smoked salmon, cream cheese", Price: 1999, Available: true},
		{ID: "sushi-dragon", Key: "dragon", Name: "Dragon Roll", Category: "sushi", Description: "Eel, avocado, cucumber", Price: 2199, Available: true},
		// sold out
		{ID: "sushi-rainbow", Key: "rainbow", Name: "Rainbow Roll", Category: "sushi", Description: "Assorted fish with avocado", Price: 2299, Available: false},
		{ID: "sushi-spicy", Key: "spicy", Name: "Spicy Tuna Roll", Category: "sushi", Description: "Spicy tuna with cucumber", Price: 1799, Available: true, Aliases: []string{"spicy tuna"}},
		{ID: "sushi-salmon", Key: "salmon", Name: "Salmon Nigiri", Category: "sushi", Description: "Fresh salmon over rice", Price: 1699, Available: true, Aliases: []string{"nigiri"}},
	})
}

// Lookup returns the item with the given product id.
func (m *Menu) Lookup(id string) (Item, bool) {
	it, ok := m.byID[id]
	return it, ok
}

// Categories lists category names in menu order.
func (m *Menu) Categories() []string {
	out := make([]string, len(m.categories))
	copy(out, m.categories)
	return out
}

// InCategory lists the items of one category in menu order.
func (m *Menu) InCategory(category string) []Item {
	var out []Item
	for _, it := range m.items {
		if it.Category == category {
			out = append(out, it)
		}
	}
	return out
}

// CategoryIn returns the first category mentioned in text, if any.
func (m *Menu) CategoryIn(text string) string {
	t := strings.ToLower(text)
	for _, c := range m.categories {
		if strings.Contains(t, c) {
			return c
		}
	}
	return ""
}

// Match finds the items named in text. When category is non-empty only that
// category is considered. A longer match (full name, alias) beats a bare key,
// so "veggie supreme" does not also match the veggie burger.
func (m *Menu) Match(text, category string) []Item {
	t := " " + normalize(text) + " "
	type hit struct {
		item  Item
		score int
	}
	var hits []hit
	for _, it := range m.items {
		if category != "" && it.Category != category {
			continue
		}
		best := 0
		for _, phrase := range it.phrases() {
			if strings.Contains(t, " "+phrase+" ") && len(phrase) > best {
				best = len(phrase)
			}
		}
		if best > 0 {
			hits = append(hits, hit{item: it, score: best})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	var out []Item
	for _, h := range hits {
		if h.score == hits[0].score {
			out = append(out, h.item)
		}
	}
	return out
}

// Search returns every item whose name, key, category or description contains
// the query.
func (m *Menu) Search(query string) []Item {
	q := normalize(query)
	if q == "" {
		return nil
	}
	var out []Item
	for _, it := range m.items {
		hay := normalize(it.Name + " " + it.Key + " " + it.Category + " " + it.Description)
		if strings.Contains(hay, q) {
			out = append(out, it)
		}
	}
	return out
}

func (i Item) phrases() []string {
	p := []string{normalize(i.Key), normalize(i.Name), normalize(i.ShortName())}
	for _, a := range i.Aliases {
		p = append(p, normalize(a))
	}
	return p
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("&", " and ", ",", " ", ".", " ", "!", " ", "?", " ", "'", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
