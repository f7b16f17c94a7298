package domain

import "github.com/shopspring/decimal"

// DefaultReturnURL is where the shopper lands after checkout.
const DefaultReturnURL = "/"

// ItemRef identifies one purchasable variant within a category and subcategory.
type ItemRef struct {
	Key         string           `json:"key" validate:"required,max=200"`
	ID          string           `json:"id" validate:"required,max=100"`
	Category    string           `json:"category" validate:"required,max=100"`
	Subcategory string           `json:"subcategory" validate:"required,max=100"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
}

// PageContext is the fixed context a page is rendered with. It is passed by
// value into the editors and the checkout coordinator and never mutated.
type PageContext struct {
	// Item is the product shown on a single-product page.
	Item ItemRef
	// Quantity is the initial quantity shown by the product page stepper.
	Quantity int
	// DiscountCode, when set, is appended to the provider checkout URL.
	DiscountCode string
	// FixedPrice is the legacy page-wide price. Nil means per-item prices.
	FixedPrice *decimal.Decimal
	// ReturnURL is opened in the current context after checkout.
	ReturnURL string
}

// PriceSource returns the price function Total should use on this page.
func (p PageContext) PriceSource(doc *Document) func(string) decimal.Decimal {
	if p.FixedPrice != nil {
		return FixedPrice(*p.FixedPrice)
	}
	return doc.UnitPrice
}

// Return returns the configured return URL or the storefront root.
func (p PageContext) Return() string {
	if p.ReturnURL == "" {
		return DefaultReturnURL
	}
	return p.ReturnURL
}
