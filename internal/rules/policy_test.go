package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy_Loads(t *testing.T) {
	p := DefaultPolicy()

	assert.NotEmpty(t, p.CareGaps)
	assert.NotEmpty(t, p.Interactions)
	r, ok := p.RangeFor("4548-4")
	require.True(t, ok)
	assert.Equal(t, 5.6, *r.High)
	assert.Equal(t, "lower", p.PolarityFor("4548-4"))
	assert.Contains(t, p.Identities("lisinopril"), "class:ace_inhibitor")
}

func TestPolicy_TrendNoise(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 0.2, p.TrendNoise("4548-4", 7.0))
	assert.InDelta(t, 7.0, p.TrendNoise("2951-2", 140), 1e-9)
	assert.Equal(t, 0.01, p.TrendNoise("unknown", 0))
}

func TestParsePolicy_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"critical below moderate", "lab_severity: {moderate_span_multiple: 1.0, critical_span_multiple: 0.5}"},
		{"bad polarity", "lab_severity: {moderate_span_multiple: 0.5, critical_span_multiple: 1}\nanalyte_polarity: [{code: x, better: sideways}]"},
		{"bad evidence source", `lab_severity: {moderate_span_multiple: 0.5, critical_span_multiple: 1}
care_gaps:
  - {id: r1, category: screening, action: A, evidence: {sources: [fax]}}`},
		{"inverted ages", `lab_severity: {moderate_span_multiple: 0.5, critical_span_multiple: 1}
care_gaps:
  - {id: r1, category: screening, action: A, min_age: 70, max_age: 50, evidence: {sources: [encounter]}}`},
		{"not yaml", "lab_severity: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadPolicy_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
lab_severity: {moderate_span_multiple: 1, critical_span_multiple: 2}
interactions:
  - {a: foo, b: bar, severity: mild, mechanism: test}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.LabSeverity.CriticalSpanMultiple)
	assert.Equal(t, "foo", p.IngredientKey("Foo 10mg"))

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	p, err = LoadPolicy("")
	require.NoError(t, err)
	assert.NotEmpty(t, p.CareGaps)
}
