package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/repository/memory"
	"github.com/cswank/store/pkg/slug"
)

type productDef struct {
	Name        string
	Category    string
	Subcategory string
	BaseCents   int64
	Sized       bool
}

var products = []productDef{
	{"T-shirt", "apparel", "tshirts", 1999, true},
	{"Hoodie", "apparel", "hoodies", 4499, true},
	{"Cap", "apparel", "hats", 1799, false},
	{"Mug", "home", "kitchen", 550, false},
	{"Tea towel", "home", "kitchen", 899, false},
	{"Poster", "home", "decor", 1200, false},
	{"Tote bag", "accessories", "bags", 1500, false},
}

var (
	colors = []string{"Red", "Blue", "Black", "White", "Green", "Grey"}
	sizes  = []string{"S", "M", "L", "XL"}
)

// generate returns n catalog items that do not clash with the sample
// catalog. The same seed always yields the same keys, IDs and prices, so
// re-running the seed updates rows in place.
func generate(n int, seed uint64, now time.Time) []domain.CatalogItem {
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	items := make([]domain.CatalogItem, 0, n)
	seen := make(map[string]struct{}, n)
	for _, item := range memory.SampleCatalog() {
		seen[item.Key] = struct{}{}
	}

	for i := 0; len(items) < n; i++ {
		p := products[i%len(products)]
		color := colors[(i/len(products))%len(colors)]
		variant := color
		if p.Sized {
			variant += " " + sizes[(i/(len(products)*len(colors)))%len(sizes)]
		}
		batch := i / (len(products) * len(colors) * len(sizes))

		key := slug.Key(p.Name, variant)
		if batch > 0 {
			key = fmt.Sprintf("%s-%d", key, batch)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		// Prices drift up to 20% either side of the base price.
		cents := p.BaseCents + p.BaseCents*int64(rng.IntN(41)-20)/100

		items = append(items, domain.CatalogItem{
			Key:         key,
			ID:          fmt.Sprintf("%d", 10000+len(items)),
			Category:    p.Category,
			Subcategory: p.Subcategory,
			Title:       fmt.Sprintf("%s (%s)", p.Name, variant),
			ImageURL:    "/static/images/" + slug.Key(p.Name, color) + ".jpg",
			Price:       decimal.New(cents, -2),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return items
}
