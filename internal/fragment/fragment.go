// Package fragment produces the HTML snippet shown for one cart line.
package fragment

import (
	"context"
	"html/template"

	"github.com/cswank/store/internal/domain"
)

// Source renders the fragment for a cart line at its current count.
type Source interface {
	Fetch(ctx context.Context, item domain.LineItem) (template.HTML, error)
}

// Request identifies one line-item fragment.
type Request struct {
	Category    string `json:"category" validate:"required,max=100"`
	Subcategory string `json:"subcategory" validate:"required,max=100"`
	Key         string `json:"key" validate:"required,max=200"`
	Quantity    int    `json:"quantity" validate:"gte=0,lte=10000"`
}

// RequestFor builds the fragment request for a cart line.
func RequestFor(item domain.LineItem) Request {
	return Request{
		Category:    item.Category,
		Subcategory: item.Subcategory,
		Key:         item.Key,
		Quantity:    item.Count,
	}
}
