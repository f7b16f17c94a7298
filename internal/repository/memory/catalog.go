package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cswank/store/internal/domain"
	apperrors "github.com/cswank/store/pkg/errors"
)

// CatalogRepository implements repository.CatalogRepository in memory.
type CatalogRepository struct {
	mu    sync.RWMutex
	items map[string]domain.CatalogItem
}

// NewCatalogRepository returns a catalog holding items.
func NewCatalogRepository(items ...domain.CatalogItem) *CatalogRepository {
	r := &CatalogRepository{items: make(map[string]domain.CatalogItem, len(items))}
	for _, item := range items {
		r.items[item.Key] = item
	}
	return r
}

// SampleCatalog returns the development catalog, the same rows the seed
// migration inserts.
func SampleCatalog() []domain.CatalogItem {
	return []domain.CatalogItem{
		{Key: "tshirt-red-m", ID: "1001", Category: "apparel", Subcategory: "tshirts", Title: "Red T-shirt (M)", ImageURL: "/static/images/tshirt-red.jpg", Price: decimal.New(1999, -2)},
		{Key: "tshirt-blue-m", ID: "1002", Category: "apparel", Subcategory: "tshirts", Title: "Blue T-shirt (M)", ImageURL: "/static/images/tshirt-blue.jpg", Price: decimal.New(1999, -2)},
		{Key: "mug-white", ID: "2001", Category: "home", Subcategory: "kitchen", Title: "White mug", ImageURL: "/static/images/mug-white.jpg", Price: decimal.New(550, -2)},
	}
}

func (r *CatalogRepository) Get(_ context.Context, key string) (*domain.CatalogItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[key]
	if !ok {
		return nil, apperrors.NotFound("catalog item", key)
	}
	return &item, nil
}

func (r *CatalogRepository) ListByKeys(_ context.Context, keys []string) ([]domain.CatalogItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.CatalogItem, 0, len(keys))
	for _, key := range keys {
		if item, ok := r.items[key]; ok {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items, nil
}

func (r *CatalogRepository) Upsert(_ context.Context, item *domain.CatalogItem) error {
	if item.Key == "" {
		return apperrors.InvalidInput("catalog item key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.items[item.Key]; ok {
		item.CreatedAt = existing.CreatedAt
	} else {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	r.items[item.Key] = *item
	return nil
}
