package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio_Identical(t *testing.T) {
	assert.Equal(t, 100.0, Ratio("smith", "smith"))
	assert.Equal(t, 100.0, Ratio("", ""))
}

func TestRatio_Disjoint(t *testing.T) {
	assert.Equal(t, 0.0, Ratio("abc", "xyz"))
	assert.Equal(t, 0.0, Ratio("abc", ""))
}

func TestRatio_Prefix(t *testing.T) {
	// 3 shared runes out of 11 total: 100 * 6 / 11.
	assert.InDelta(t, 54.545, Ratio("jon", "jonathan"), 0.001)
}

func TestRatio_ExactBoundaryValues(t *testing.T) {
	a := "abcdefghijklmnopqrstuvwxy"
	b := "abcdefghijklmnopqrs012345"
	assert.Equal(t, 76.0, Ratio(a, b))
	assert.Equal(t, 90.0, Ratio("abcdefghij", "abcdefghix"))
}

func TestRatio_Unicode(t *testing.T) {
	assert.Equal(t, 100.0, Ratio("josé", "josé"))
	assert.InDelta(t, 75.0, Ratio("josé", "jose"), 0.001)
}

func TestTokenSortRatio_OrderInsensitive(t *testing.T) {
	assert.Equal(t, 100.0, TokenSortRatio("smith john", "john smith"))
	assert.Equal(t, 100.0, TokenSortRatio("acme  holdings", "holdings acme"))
}

func TestTokenSortRatio_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"jon", "jonathan"},
		{"acme corp", "acme corporation"},
		{"mary ann", "ann marie"},
	}
	for _, p := range pairs {
		assert.Equal(t, TokenSortRatio(p[0], p[1]), TokenSortRatio(p[1], p[0]), p)
	}
}
