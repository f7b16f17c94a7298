package fragment

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"

	"github.com/shopspring/decimal"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/repository"
	apperrors "github.com/cswank/store/pkg/errors"
	"github.com/cswank/store/pkg/validator"
)

var lineItemTmpl = template.Must(template.New("lineitem").Parse(`<div class="line-item" id="{{.ID}}" data-key="{{.Key}}">
  {{- if .ImageURL}}
  <img class="line-item-image" src="{{.ImageURL}}" alt="{{.Title}}">
  {{- end}}
  <span class="line-item-title">{{.Title}}</span>
  <span class="line-item-price">${{.Price}}</span>
  <button type="button" class="line-item-dec" data-key="{{.Key}}" data-delta="-1">-</button>
  <input type="number" min="0" id="{{.ID}}-quantity" value="{{.Quantity}}" data-key="{{.Key}}">
  <button type="button" class="line-item-inc" data-key="{{.Key}}" data-delta="1">+</button>
  <span class="line-item-total" id="{{.ID}}-total">${{.Total}}</span>
  <button type="button" class="line-item-remove" data-key="{{.Key}}">Remove</button>
</div>
`))

type lineItemData struct {
	ID       string
	Key      string
	Title    string
	ImageURL string
	Price    string
	Quantity int
	Total    string
}

// Renderer renders fragments in process from the catalog.
type Renderer struct {
	catalog repository.CatalogRepository
}

// NewRenderer returns a Renderer backed by catalog.
func NewRenderer(catalog repository.CatalogRepository) *Renderer {
	return &Renderer{catalog: catalog}
}

// Render writes the fragment for req to w. The item must exist in the
// requested category and subcategory.
func (r *Renderer) Render(ctx context.Context, w io.Writer, req Request) error {
	if err := validator.Validate(req); err != nil {
		return err
	}

	item, err := r.catalog.Get(ctx, req.Key)
	if err != nil {
		return err
	}
	if item.Category != req.Category || item.Subcategory != req.Subcategory {
		return apperrors.NotFound("line item", req.Category+"/"+req.Subcategory+"/"+req.Key)
	}

	total := item.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	data := lineItemData{
		ID:       item.ID,
		Key:      item.Key,
		Title:    item.Title,
		ImageURL: item.ImageURL,
		Price:    item.Price.StringFixed(2),
		Quantity: req.Quantity,
		Total:    total.StringFixed(2),
	}
	if err := lineItemTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render line item %s: %w", req.Key, err)
	}
	return nil
}

func (r *Renderer) Fetch(ctx context.Context, item domain.LineItem) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.Render(ctx, &buf, RequestFor(item)); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil //nolint:gosec
}
