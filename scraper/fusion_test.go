package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float64{49, 49, 51}, Normalize([]float64{4900, 49, 51}))
	assert.Equal(t, []float64{49, 51, 52}, Normalize([]float64{49, 51, 52}))
	assert.Empty(t, Normalize(nil))
}

func TestNormalizeRulesApplyPerValue(t *testing.T) {
	// Median 1200 blocks the first two rules; 30 sitting under 100 triggers the third for 1200 and 1250.
	got := Normalize([]float64{1200, 1250, 30})
	assert.Equal(t, []float64{12, 12.5, 30}, got)

	// A genuinely expensive set stays untouched.
	assert.Equal(t, []float64{1499.99, 1549.5, 1520}, Normalize([]float64{1499.99, 1549.5, 1520}))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}

func pooled(src SourceTag, vals ...float64) []Candidate {
	out := make([]Candidate, len(vals))
	for i, v := range vals {
		out[i] = Candidate{Value: v, Source: src, Position: NoPosition}
	}
	return out
}

func TestFuseTieBreaksToSmallerValue(t *testing.T) {
	cands := pooled(SourceSelector, 49.99, 59.99, 49.99, 59.99, 49.99, 59.99)
	sel, ok := Fuse(cands)
	require.True(t, ok)
	assert.Equal(t, 49.99, sel.Price)
	assert.False(t, sel.Locked)
}

func TestFuseFrequencyDominates(t *testing.T) {
	cands := append(pooled(SourceVisibleDOM, 29.99), pooled(SourceSelector, 45, 45, 45, 45)...)
	sel, ok := Fuse(cands)
	require.True(t, ok)
	assert.Equal(t, 45.0, sel.Price)
}

func TestFusePrefersFractionalOnEqualCount(t *testing.T) {
	cands := pooled(SourceFulltext, 67, 67.23)
	sel, ok := Fuse(cands)
	require.True(t, ok)
	assert.Equal(t, 67.23, sel.Price)
}

func TestFuseNormalizesCentsBeforeVoting(t *testing.T) {
	cands := pooled(SourceNetworkJSON, 4900, 49, 51)
	sel, ok := Fuse(cands)
	require.True(t, ok)
	assert.Equal(t, 49.0, sel.Price)
}

func TestFuseEmptyPool(t *testing.T) {
	_, ok := Fuse(nil)
	assert.False(t, ok)
}

func TestFuseJSONLockBeatsDOMVotes(t *testing.T) {
	var cands []Candidate
	cands = append(cands, pooled(SourceStructuredData, 89.99)...)
	cands = append(cands, pooled(SourceInlineJSON, 89.98, 89.99, 19.99)...)
	cands = append(cands, pooled(SourceVisibleDOM, 10, 10, 10, 10, 10, 10)...)

	sel, ok := Fuse(cands)
	require.True(t, ok)
	assert.True(t, sel.Locked)
	assert.Equal(t, 89.99, sel.Price)
}

func TestFuseJSONWithoutDominanceFallsBackToVote(t *testing.T) {
	var cands []Candidate
	cands = append(cands, pooled(SourceInlineJSON, 89.99, 79.99)...)
	cands = append(cands, pooled(SourceSelector, 79.99, 79.99)...)

	sel, ok := Fuse(cands)
	require.True(t, ok)
	assert.False(t, sel.Locked)
	assert.Equal(t, 79.99, sel.Price)
}

func TestLockJSONLaterGroupCanTakeLead(t *testing.T) {
	cands := pooled(SourceInlineJSON, 5, 24.99, 24.99, 24.99)
	v, ok := lockJSON(cands)
	require.True(t, ok)
	assert.Equal(t, 24.99, v)
}

func TestLockJSONLoneGroupNeedsConfirmation(t *testing.T) {
	cands := append(pooled(SourceInlineJSON, 5), pooled(SourceSelector, 49.99)...)
	_, ok := lockJSON(cands)
	assert.False(t, ok)

	sel, ok := Fuse(cands)
	require.True(t, ok)
	assert.False(t, sel.Locked)
	assert.Equal(t, 49.99, sel.Price)

	v, ok := lockJSON(pooled(SourceStructuredData, 24.99, 24.99))
	require.True(t, ok)
	assert.Equal(t, 24.99, v)

	cands = append(pooled(SourceStructuredData, 24.99), pooled(SourceVisibleDOM, 10, 10, 24.99)...)
	v, ok = lockJSON(cands)
	require.True(t, ok)
	assert.Equal(t, 24.99, v)
}

func TestPoolDropsOutOfRange(t *testing.T) {
	var p Pool
	assert.False(t, p.Add(0, SourceSelector, NoPosition))
	assert.False(t, p.Add(100000, SourceSelector, NoPosition))
	assert.True(t, p.Add(12.5, SourceSelector, NoPosition))
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, map[SourceTag]int{SourceSelector: 1}, p.CountBySource())
}
