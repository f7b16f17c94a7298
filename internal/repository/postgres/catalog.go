package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/cswank/store/internal/domain"
	"github.com/cswank/store/pkg/database"
	apperrors "github.com/cswank/store/pkg/errors"
)

const catalogColumns = `key, item_id, category, subcategory, title, image_url, price_cents, created_at, updated_at`

// CatalogRepository implements repository.CatalogRepository using PostgreSQL.
type CatalogRepository struct {
	db database.DBTX
}

// NewCatalogRepository creates a PostgreSQL-backed catalog repository.
func NewCatalogRepository(db database.DBTX) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// Get returns the catalog item stored under key.
func (r *CatalogRepository) Get(ctx context.Context, key string) (item *domain.CatalogItem, err error) {
	query := `SELECT ` + catalogColumns + ` FROM catalog_items WHERE key = $1`

	ctx, end := database.TraceQuery(ctx, "GetCatalogItem", query)
	defer func() { end(err) }()

	item, err = scanItem(r.db.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("catalog item", key)
	}
	if err != nil {
		return nil, fmt.Errorf("get catalog item %s: %w", key, err)
	}
	return item, nil
}

// ListByKeys returns the items for keys, ordered by key. Unknown keys are
// skipped.
func (r *CatalogRepository) ListByKeys(ctx context.Context, keys []string) (items []domain.CatalogItem, err error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query := `SELECT ` + catalogColumns + ` FROM catalog_items WHERE key = ANY($1) ORDER BY key`

	ctx, end := database.TraceQuery(ctx, "ListCatalogItems", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("list catalog items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog items: %w", err)
	}
	return items, nil
}

// Upsert inserts item or updates the existing row with the same key.
func (r *CatalogRepository) Upsert(ctx context.Context, item *domain.CatalogItem) (err error) {
	query := `
		INSERT INTO catalog_items (` + catalogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (key) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			title = EXCLUDED.title,
			image_url = EXCLUDED.image_url,
			price_cents = EXCLUDED.price_cents,
			updated_at = EXCLUDED.updated_at`

	ctx, end := database.TraceQuery(ctx, "UpsertCatalogItem", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		item.Key,
		item.ID,
		item.Category,
		item.Subcategory,
		item.Title,
		item.ImageURL,
		toCents(item.Price),
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert catalog item %s: %w", item.Key, err)
	}
	return nil
}

func scanItem(row pgx.Row) (*domain.CatalogItem, error) {
	var (
		item  domain.CatalogItem
		cents int64
	)
	err := row.Scan(
		&item.Key,
		&item.ID,
		&item.Category,
		&item.Subcategory,
		&item.Title,
		&item.ImageURL,
		&cents,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Price = decimal.New(cents, -2)
	return &item, nil
}

func toCents(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}
