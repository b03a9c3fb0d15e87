package fingerprint

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trendInput struct {
	Analyte string
	Values  []float64
	Meta    map[string]string
}

func TestOf_Deterministic(t *testing.T) {
	a := trendInput{Analyte: "4548-4", Values: []float64{7.9, 6.8}, Meta: map[string]string{"b": "2", "a": "1"}}
	b := trendInput{Analyte: "4548-4", Values: []float64{7.9, 6.8}, Meta: map[string]string{"a": "1", "b": "2"}}

	fa, err := Of("lab_trend", a)
	require.NoError(t, err)
	fb, err := Of("lab_trend", b)
	require.NoError(t, err)

	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
}

func TestOf_SensitiveToInputs(t *testing.T) {
	base, _ := Of("lab_trend", trendInput{Analyte: "4548-4", Values: []float64{7.9, 6.8}})
	changed, _ := Of("lab_trend", trendInput{Analyte: "4548-4", Values: []float64{7.9, 6.9}})
	otherKind, _ := Of("health_snapshot", trendInput{Analyte: "4548-4", Values: []float64{7.9, 6.8}})

	assert.NotEqual(t, base, changed)
	assert.NotEqual(t, base, otherKind)
}

func TestOf_PartBoundaries(t *testing.T) {
	ab, _ := Of("ab", "c")
	a, _ := Of("a", "bc")
	assert.NotEqual(t, ab, a)
}

func TestOf_Unencodable(t *testing.T) {
	_, err := Of(math.NaN())
	assert.Error(t, err)
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abcd", Short("abcdef", 4))
	assert.Equal(t, "ab", Short("ab", 4))
}
