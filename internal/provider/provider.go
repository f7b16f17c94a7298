// Package provider talks to the external commerce platform that turns cart
// lines into a hosted checkout.
package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ID is a provider identifier. The platform sends numeric ids; some
// endpoints quote them.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(string(data), `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Variant is a purchasable option of a product.
type Variant struct {
	ID    ID              `json:"id"`
	Title string          `json:"title,omitempty"`
	Price decimal.Decimal `json:"price"`
}

// Image is a product picture.
type Image struct {
	Src string `json:"src,omitempty"`
}

// Product is a provider product with its variants.
type Product struct {
	ID          ID        `json:"id"`
	Title       string    `json:"title"`
	ProductType string    `json:"product_type,omitempty"`
	Images      []Image   `json:"images,omitempty"`
	Variants    []Variant `json:"variants"`
}

// SelectedVariant returns the variant a cart line buys: the first one.
func (p *Product) SelectedVariant() (Variant, bool) {
	if len(p.Variants) == 0 {
		return Variant{}, false
	}
	return p.Variants[0], true
}

// LineItem asks for quantity units of a variant.
type LineItem struct {
	VariantID ID  `json:"variant_id"`
	Quantity  int `json:"quantity"`
}

// Cart is a provider cart. CheckoutURL is where the shopper pays.
type Cart struct {
	ID          ID         `json:"id"`
	CheckoutURL string     `json:"checkout_url"`
	LineItems   []LineItem `json:"line_items"`
}

// Provider is the commerce platform.
type Provider interface {
	FetchProduct(ctx context.Context, id string) (*Product, error)
	CreateCart(ctx context.Context) (*Cart, error)
	CreateLineItemsFromVariants(ctx context.Context, cartID string, items []LineItem) (*Cart, error)
}
