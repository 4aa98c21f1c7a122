package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlended(t *testing.T) {
	f := Blended(0.001)
	assert.InDelta(t, 1.5, f("any-model", 1000, 500), 1e-9)
	assert.Zero(t, f("any-model", 0, 0))
}

func TestRateCard_PrefixMatch(t *testing.T) {
	card := NewRateCard(Blended(0),
		ModelPrice{Model: "claude-3-5", PriceInput: 1, PriceOutput: 1},
		ModelPrice{Model: "claude-3-5-sonnet", PriceInput: 0.003, PriceOutput: 0.015},
	)

	p, ok := card.Lookup("claude-3-5-sonnet-20241022")
	assert.True(t, ok)
	assert.Equal(t, "claude-3-5-sonnet", p.Model)

	cost := card.Calculate("claude-3-5-sonnet-20241022", 1000, 1000)
	assert.InDelta(t, 0.018, cost, 1e-9)
}

func TestRateCard_Fallback(t *testing.T) {
	card := NewRateCard(Blended(0.01))
	assert.InDelta(t, 0.2, card.Func()("unknown", 10, 10), 1e-9)

	def := DefaultRateCard()
	_, ok := def.Lookup("gpt-4o-mini-2024-07-18")
	assert.True(t, ok)
}
