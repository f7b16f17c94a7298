package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Deterministic(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	a := generate(50, 7, now)
	b := generate(50, 7, now)

	require.Len(t, a, 50)
	assert.Equal(t, a, b)
}

func TestGenerate_UniqueKeysAndIDs(t *testing.T) {
	items := generate(500, 1, time.Now())

	keys := make(map[string]struct{}, len(items))
	ids := make(map[string]struct{}, len(items))
	for _, item := range items {
		keys[item.Key] = struct{}{}
		ids[item.ID] = struct{}{}
		assert.True(t, item.Price.IsPositive(), item.Key)
		assert.NotEmpty(t, item.Category)
		assert.NotEmpty(t, item.Subcategory)
	}
	assert.Len(t, keys, len(items))
	assert.Len(t, ids, len(items))
}

func TestGenerate_DoesNotCollideWithSamples(t *testing.T) {
	for _, item := range generate(300, 3, time.Now()) {
		assert.NotEqual(t, "tshirt-red-m", item.Key)
		assert.NotEqual(t, "mug-white", item.Key)
		assert.NotEqual(t, "1001", item.ID)
	}
}
