package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/internal/repository"
)

// CartRepository implements repository.CartStore in process memory. It keeps
// serialized bytes so no caller ever shares a document with the store.
type CartRepository struct {
	mu     sync.Mutex
	slots  map[string][]byte
	logger *slog.Logger
}

// NewCartRepository creates an empty in-memory cart store.
func NewCartRepository(logger *slog.Logger) *CartRepository {
	return &CartRepository{slots: make(map[string][]byte), logger: logger}
}

func (r *CartRepository) Load(ctx context.Context, slot string) (*domain.Document, error) {
	r.mu.Lock()
	data := r.slots[slot]
	r.mu.Unlock()
	return repository.Decode(ctx, r.logger, slot, data), nil
}

func (r *CartRepository) Save(_ context.Context, slot string, doc *domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	r.mu.Lock()
	r.slots[slot] = data
	r.mu.Unlock()
	return nil
}

func (r *CartRepository) Clear(_ context.Context, slot string) error {
	r.mu.Lock()
	delete(r.slots, slot)
	r.mu.Unlock()
	return nil
}

func (r *CartRepository) Merge(ctx context.Context, slot string, doc *domain.Document) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := doc.Rebase(repository.Decode(ctx, r.logger, slot, r.slots[slot]))
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}
	r.slots[slot] = data
	return merged, nil
}

// Put stores raw bytes in slot, bypassing encoding. Useful for seeding
// legacy or corrupt documents.
func (r *CartRepository) Put(slot string, data []byte) {
	r.mu.Lock()
	r.slots[slot] = append([]byte(nil), data...)
	r.mu.Unlock()
}

// Raw returns the bytes stored in slot.
func (r *CartRepository) Raw(slot string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.slots[slot]
	return append([]byte(nil), data...), ok
}
