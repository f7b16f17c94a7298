package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/cswank/store/internal/domain"
	pkgkafka "github.com/cswank/store/pkg/kafka"
	"github.com/cswank/store/pkg/logger"
)

// Kafka topic constants for cart domain events.
const (
	TopicCartUpdated    = "ecommerce.cart.updated"
	TopicCartCleared    = "ecommerce.cart.cleared"
	TopicCartCheckedOut = "ecommerce.cart.checked_out"
)

// Aggregate type constant.
const AggregateTypeCart = "cart"

// Source identifier for events originating from the storefront.
const SourceStorefront = "storefront"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SessionID string          `json:"session_id"`
	Page      string          `json:"page"`
	Items     []CartItemData  `json:"items"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

// CartItemData is the item payload within cart events.
type CartItemData struct {
	Key         string `json:"key"`
	ID          string `json:"id"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Quantity    int    `json:"quantity"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// CartCheckedOutData is the payload for a cart.checked_out event.
type CartCheckedOutData struct {
	SessionID   string `json:"session_id"`
	CartID      string `json:"cart_id"`
	Lines       int    `json:"lines"`
	ItemCount   int    `json:"item_count"`
	HasDiscount bool   `json:"has_discount"`
}

// Publisher emits cart domain events.
type Publisher interface {
	PublishCartUpdated(ctx context.Context, sessionID, page string, doc *domain.Document, total decimal.Decimal) error
	PublishCartCleared(ctx context.Context, sessionID, reason string) error
	PublishCartCheckedOut(ctx context.Context, data CartCheckedOutData) error
}

// Producer publishes cart domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the storefront.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, sessionID, page string, doc *domain.Document, total decimal.Decimal) error {
	items := make([]CartItemData, 0, doc.Len())
	for _, item := range doc.Items() {
		items = append(items, CartItemData{
			Key:         item.Key,
			ID:          item.ID,
			Category:    item.Category,
			Subcategory: item.Subcategory,
			Quantity:    item.Count,
		})
	}

	data := CartUpdatedData{
		SessionID: sessionID,
		Page:      page,
		Items:     items,
		ItemCount: doc.ItemCount(),
		Total:     total,
	}
	if err := p.publish(ctx, TopicCartUpdated, sessionID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("page", page),
		slog.Int("item_count", data.ItemCount),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, sessionID, reason string) error {
	if err := p.publish(ctx, TopicCartCleared, sessionID, CartClearedData{SessionID: sessionID, Reason: reason}); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.cleared event", slog.String("reason", reason))
	return nil
}

// PublishCartCheckedOut publishes a cart.checked_out event.
func (p *Producer) PublishCartCheckedOut(ctx context.Context, data CartCheckedOutData) error {
	if err := p.publish(ctx, TopicCartCheckedOut, data.SessionID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.checked_out event", slog.String("cart_id", data.CartID))
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, sessionID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, sessionID, AggregateTypeCart, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// Discard drops every event. It is used when no brokers are configured.
type Discard struct{}

func (Discard) PublishCartUpdated(context.Context, string, string, *domain.Document, decimal.Decimal) error {
	return nil
}

func (Discard) PublishCartCleared(context.Context, string, string) error { return nil }

func (Discard) PublishCartCheckedOut(context.Context, CartCheckedOutData) error { return nil }
