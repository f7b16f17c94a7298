package repository

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cswank/store/internal/domain"
)

// DefaultSlot is the storage slot name used by the legacy storefront.
const DefaultSlot = "shopping-cart"

// CartStore persists cart documents, one per named slot.
type CartStore interface {
	// Load returns the document stored in slot. A missing or unreadable
	// value yields an empty document and no error.
	Load(ctx context.Context, slot string) (*domain.Document, error)

	// Save overwrites slot with doc. Last writer wins.
	Save(ctx context.Context, slot string, doc *domain.Document) error

	// Clear removes slot.
	Clear(ctx context.Context, slot string) error

	// Merge re-reads slot, rebases the changes recorded in doc onto it and
	// writes the result atomically. The merged document is returned.
	Merge(ctx context.Context, slot string, doc *domain.Document) (*domain.Document, error)
}

// CatalogRepository reads the display records behind cart line fragments.
type CatalogRepository interface {
	Get(ctx context.Context, key string) (*domain.CatalogItem, error)
	ListByKeys(ctx context.Context, keys []string) ([]domain.CatalogItem, error)
	Upsert(ctx context.Context, item *domain.CatalogItem) error
}

// Decode parses a stored document. Unparsable data is logged and treated as
// an empty cart; entries with non-positive counts are dropped.
func Decode(ctx context.Context, logger *slog.Logger, slot string, data []byte) *domain.Document {
	doc := domain.NewDocument()
	if len(data) == 0 {
		return doc
	}
	if err := json.Unmarshal(data, doc); err != nil {
		logger.WarnContext(ctx, "stored cart is unreadable, starting empty",
			slog.String("slot", slot),
			slog.String("error", err.Error()),
		)
		return domain.NewDocument()
	}
	if dropped := doc.Normalize(); dropped > 0 {
		logger.DebugContext(ctx, "dropped empty cart lines",
			slog.String("slot", slot),
			slog.Int("dropped", dropped),
		)
	}
	return doc
}
