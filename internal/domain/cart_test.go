package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func shirtCart(t *testing.T) *Document {
	t.Helper()
	d := NewDocument()
	require.NoError(t, d.Upsert("shirt-red", Patch{
		ID:          "p1",
		Category:    "apparel",
		Subcategory: "shirts",
		Count:       2,
		UnitPrice:   price("19.99"),
	}))
	return d
}

// ============================================================================
// Upsert
// ============================================================================

func TestUpsert_CreatesItemFromPatch(t *testing.T) {
	d := shirtCart(t)

	item, ok := d.Get("shirt-red")
	require.True(t, ok)
	assert.Equal(t, "shirt-red", item.Key)
	assert.Equal(t, "p1", item.ID)
	assert.Equal(t, "apparel", item.Category)
	assert.Equal(t, "shirts", item.Subcategory)
	assert.Equal(t, 2, item.Count)
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("19.99")))
}

func TestUpsert_ReplacesCount(t *testing.T) {
	d := shirtCart(t)

	require.NoError(t, d.Upsert("shirt-red", Patch{Count: 5}))

	item, _ := d.Get("shirt-red")
	assert.Equal(t, 5, item.Count, "count is replaced, not incremented")
	assert.Equal(t, "p1", item.ID, "unsupplied fields are kept")
}

func TestUpsert_ZeroRemoves(t *testing.T) {
	d := shirtCart(t)

	require.NoError(t, d.Upsert("shirt-red", Patch{Count: 0}))

	_, ok := d.Get("shirt-red")
	assert.False(t, ok)
	assert.True(t, d.IsEmpty())
}

func TestUpsert_NegativeCount(t *testing.T) {
	d := NewDocument()
	err := d.Upsert("a", Patch{Count: -1})
	assert.ErrorIs(t, err, ErrNegativeCount)
	assert.True(t, d.IsEmpty())
}

func TestUpsert_EmptyKey(t *testing.T) {
	d := NewDocument()
	assert.Error(t, d.Upsert("", Patch{Count: 1}))
}

// ============================================================================
// AdjustCount
// ============================================================================

func TestAdjustCount_FloorsAtZeroAndRemoves(t *testing.T) {
	d := shirtCart(t)

	n := d.AdjustCount("shirt-red", -5, FloorCart)

	assert.Equal(t, 0, n)
	_, ok := d.Get("shirt-red")
	assert.False(t, ok, "a line reduced to zero is removed")
}

func TestAdjustCount_StepperFloor(t *testing.T) {
	d := shirtCart(t)

	n := d.AdjustCount("shirt-red", -5, FloorStepper)

	assert.Equal(t, 1, n)
	item, ok := d.Get("shirt-red")
	require.True(t, ok)
	assert.Equal(t, 1, item.Count)
}

func TestAdjustCount_AbsentKeyStartsAtZero(t *testing.T) {
	d := NewDocument()

	assert.Equal(t, 0, d.AdjustCount("ghost", -2, FloorCart))
	assert.True(t, d.IsEmpty())

	assert.Equal(t, 3, d.AdjustCount("ghost", 3, FloorCart))
	item, ok := d.Get("ghost")
	require.True(t, ok)
	assert.Equal(t, 3, item.Count)
}

func TestAdjustCount_NeverNegative(t *testing.T) {
	sequences := [][]int{
		{1, 1, 1},
		{-1, -1},
		{5, -2, -10, 4},
		{3, -3, 3, -1},
		{-7, 2, 2, -1, 9},
	}

	for _, deltas := range sequences {
		d := NewDocument()
		want := 0
		for _, delta := range deltas {
			got := d.AdjustCount("k", delta, FloorCart)
			want = max(0, want+delta)
			assert.Equal(t, want, got, "deltas %v", deltas)
			assert.GreaterOrEqual(t, got, 0)
		}
	}
}

func TestAdjustCount_MonotoneSequenceMatchesSum(t *testing.T) {
	d := NewDocument()
	sum := 0
	for _, delta := range []int{2, 3, 4} {
		sum += delta
		d.AdjustCount("k", delta, FloorCart)
	}
	item, _ := d.Get("k")
	assert.Equal(t, max(0, sum), item.Count)
}

// ============================================================================
// Remove / Clear
// ============================================================================

func TestRemove_AbsentKeyIsNoop(t *testing.T) {
	d := shirtCart(t)

	assert.NotPanics(t, func() { d.Remove("nope") })
	assert.Equal(t, 1, d.Len())
}

func TestClear(t *testing.T) {
	d := shirtCart(t)
	d.Clear()
	assert.True(t, d.IsEmpty())
	assert.Equal(t, 0, d.ItemCount())
	assert.True(t, d.Dirty())
}

// ============================================================================
// Totals
// ============================================================================

func TestTotal_PerItemPrice(t *testing.T) {
	d := shirtCart(t)

	assert.Equal(t, "39.98", d.Total(d.UnitPrice).StringFixed(2))
	assert.Equal(t, 2, d.ItemCount())
}

func TestTotal_MultipleItems(t *testing.T) {
	d := shirtCart(t)
	require.NoError(t, d.Upsert("mug", Patch{ID: "p2", Count: 3, UnitPrice: price("5.50")}))
	require.NoError(t, d.Upsert("sticker", Patch{ID: "p3", Count: 4}))

	// 39.98 + 16.50 + 0
	assert.Equal(t, "56.48", d.Total(d.UnitPrice).StringFixed(2))
	assert.Equal(t, 9, d.ItemCount())
}

func TestTotal_FixedPrice(t *testing.T) {
	d := shirtCart(t)
	require.NoError(t, d.Upsert("shirt-blue", Patch{ID: "p9", Count: 1}))

	total := d.Total(FixedPrice(decimal.RequireFromString("10")))
	assert.Equal(t, "30.00", total.StringFixed(2))
}

func TestTotal_EmptyDocument(t *testing.T) {
	d := NewDocument()
	assert.Equal(t, "0.00", d.Total(d.UnitPrice).StringFixed(2))
	assert.Equal(t, 0, d.ItemCount())
}

// ============================================================================
// Serialization
// ============================================================================

func TestJSON_RoundTrip(t *testing.T) {
	d := shirtCart(t)
	require.NoError(t, d.Upsert("mug", Patch{ID: "p2", Category: "home", Subcategory: "kitchen", Count: 1}))

	data, err := json.Marshal(d)
	require.NoError(t, err)

	got := NewDocument()
	require.NoError(t, json.Unmarshal(data, got))

	assert.Equal(t, d.Keys(), got.Keys())
	for _, key := range d.Keys() {
		want, _ := d.Get(key)
		have, _ := got.Get(key)
		assert.Equal(t, want.ID, have.ID)
		assert.Equal(t, want.Count, have.Count)
		assert.Equal(t, want.Category, have.Category)
		assert.Equal(t, want.Subcategory, have.Subcategory)
		if want.UnitPrice == nil {
			assert.Nil(t, have.UnitPrice)
		} else {
			require.NotNil(t, have.UnitPrice)
			assert.True(t, want.UnitPrice.Equal(*have.UnitPrice))
		}
	}
	assert.False(t, got.Dirty())
}

func TestJSON_LegacyDocument(t *testing.T) {
	raw := `{"shirt-red":{"id":"p1","count":2,"cat":"apparel","subcat":"shirts","price":19.99}}`

	d := NewDocument()
	require.NoError(t, json.Unmarshal([]byte(raw), d))

	item, ok := d.Get("shirt-red")
	require.True(t, ok)
	assert.Equal(t, "apparel", item.Category)
	assert.Equal(t, "39.98", d.Total(d.UnitPrice).StringFixed(2))
}

func TestJSON_Null(t *testing.T) {
	d := NewDocument()
	require.NoError(t, json.Unmarshal([]byte("null"), d))
	assert.True(t, d.IsEmpty())
}

func TestNormalize_DropsZeroCounts(t *testing.T) {
	raw := `{"a":{"id":"1","count":0},"b":{"id":"2","count":2}}`
	d := NewDocument()
	require.NoError(t, json.Unmarshal([]byte(raw), d))

	assert.Equal(t, 1, d.Normalize())
	assert.Equal(t, []string{"b"}, d.Keys())
}

// ============================================================================
// Clone / Rebase
// ============================================================================

func TestClone_IsIndependent(t *testing.T) {
	d := shirtCart(t)
	c := d.Clone()

	require.NoError(t, c.Upsert("shirt-red", Patch{Count: 9}))
	*c.items["shirt-red"].UnitPrice = decimal.NewFromInt(1)

	item, _ := d.Get("shirt-red")
	assert.Equal(t, 2, item.Count)
	assert.Equal(t, "19.99", item.UnitPrice.String())
}

func TestRebase_KeepsOtherPagesWrites(t *testing.T) {
	base := shirtCart(t)
	base.MarkClean()

	// Page A edits the shirt, page B adds a mug; both started from base.
	pageA := base.Clone()
	pageA.AdjustCount("shirt-red", 1, FloorCart)

	latest := base.Clone()
	require.NoError(t, latest.Upsert("mug", Patch{ID: "p2", Count: 1}))

	merged := pageA.Rebase(latest)

	assert.Equal(t, []string{"mug", "shirt-red"}, merged.Keys())
	shirt, _ := merged.Get("shirt-red")
	assert.Equal(t, 3, shirt.Count)
	assert.False(t, merged.Dirty())
}

func TestRebase_RemovalWins(t *testing.T) {
	base := shirtCart(t)
	base.MarkClean()

	page := base.Clone()
	page.Remove("shirt-red")

	latest := base.Clone()
	require.NoError(t, latest.Upsert("mug", Patch{ID: "p2", Count: 1}))

	merged := page.Rebase(latest)
	assert.Equal(t, []string{"mug"}, merged.Keys())
}

func TestRebase_ClearedStartsEmpty(t *testing.T) {
	page := shirtCart(t)
	page.Clear()

	latest := shirtCart(t)
	require.NoError(t, latest.Upsert("mug", Patch{ID: "p2", Count: 1}))

	merged := page.Rebase(latest)
	assert.True(t, merged.IsEmpty())
}

// ============================================================================
// PageContext
// ============================================================================

func TestPageContext_PriceSource(t *testing.T) {
	d := shirtCart(t)

	perItem := PageContext{}
	assert.Equal(t, "39.98", d.Total(perItem.PriceSource(d)).StringFixed(2))

	legacy := PageContext{FixedPrice: price("12.00")}
	assert.Equal(t, "24.00", d.Total(legacy.PriceSource(d)).StringFixed(2))
}

func TestPageContext_Return(t *testing.T) {
	assert.Equal(t, "/", PageContext{}.Return())
	assert.Equal(t, "/shop", PageContext{ReturnURL: "/shop"}.Return())
}

func TestClampCount(t *testing.T) {
	assert.Equal(t, 1, ClampCount(-4, FloorStepper))
	assert.Equal(t, 0, ClampCount(-4, FloorCart))
	assert.Equal(t, 7, ClampCount(7, FloorStepper))
}
