package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	assert.Empty(t, r.Effects())

	r.Navigate("https://shop.example/checkout", TargetBlank)
	r.Navigate("/", "")

	assert.Equal(t, []Effect{
		{URL: "https://shop.example/checkout", Target: TargetBlank},
		{URL: "/", Target: TargetSelf},
	}, r.Effects())
}
