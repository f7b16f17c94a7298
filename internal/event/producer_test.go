package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cswank/store/internal/domain"
	pkgkafka "github.com/cswank/store/pkg/kafka"
	"github.com/cswank/store/pkg/logger"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func newProducer(w *fakeWriter) *Producer {
	return NewProducer(pkgkafka.NewProducerWithWriter(w, []string{"localhost:9092"}, logger.Discard()), logger.Discard())
}

func decode(t *testing.T, msg kafka.Message) *pkgkafka.Event {
	t.Helper()
	ev, err := pkgkafka.UnmarshalEvent(msg.Value)
	require.NoError(t, err)
	return ev
}

func TestPublishCartUpdated(t *testing.T) {
	w := &fakeWriter{}
	doc := domain.NewDocument()
	require.NoError(t, doc.Upsert("mug-white", domain.Patch{ID: "77", Category: "mugs", Subcategory: "white", Count: 2}))

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	err := newProducer(w).PublishCartUpdated(ctx, "sess-1", "product", doc, decimal.RequireFromString("16"))
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, TopicCartUpdated, msg.Topic)
	assert.Equal(t, "sess-1", string(msg.Key))

	ev := decode(t, msg)
	assert.Equal(t, "corr-1", ev.CorrelationID)
	assert.Equal(t, AggregateTypeCart, ev.AggregateType)

	var data CartUpdatedData
	require.NoError(t, ev.UnmarshalData(&data))
	assert.Equal(t, "product", data.Page)
	assert.Equal(t, 2, data.ItemCount)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "77", data.Items[0].ID)
	assert.True(t, data.Total.Equal(decimal.NewFromInt(16)))
}

func TestPublishCartClearedAndCheckedOut(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w)
	ctx := context.Background()

	require.NoError(t, p.PublishCartCleared(ctx, "sess-1", "checkout"))
	require.NoError(t, p.PublishCartCheckedOut(ctx, CartCheckedOutData{SessionID: "sess-1", CartID: "c1", Lines: 2, ItemCount: 3}))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, TopicCartCleared, w.msgs[0].Topic)
	assert.Equal(t, TopicCartCheckedOut, w.msgs[1].Topic)

	var data CartCheckedOutData
	require.NoError(t, decode(t, w.msgs[1]).UnmarshalData(&data))
	assert.Equal(t, "c1", data.CartID)
}

func TestPublish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}

	err := newProducer(w).PublishCartCleared(context.Background(), "sess-1", "user")
	assert.ErrorContains(t, err, "publish ecommerce.cart.cleared event")
}

func TestDiscard(t *testing.T) {
	var p Publisher = Discard{}
	assert.NoError(t, p.PublishCartCleared(context.Background(), "s", "r"))
}
