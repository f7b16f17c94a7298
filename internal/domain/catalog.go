package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CatalogItem is the display record for one purchasable variant. The line-item
// fragment endpoint renders cart lines from it.
type CatalogItem struct {
	Key         string
	ID          string
	Category    string
	Subcategory string
	Title       string
	ImageURL    string
	Price       decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Ref returns the item reference the cart stores for this catalog entry.
func (c CatalogItem) Ref() ItemRef {
	price := c.Price
	return ItemRef{
		Key:         c.Key,
		ID:          c.ID,
		Category:    c.Category,
		Subcategory: c.Subcategory,
		UnitPrice:   &price,
	}
}
