package rules

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

func TestLabAbnormality_Severity(t *testing.T) {
	e := NewLabAbnormalityEvaluator(DefaultPolicy())
	// range 3.5-5.1, span 1.6: moderate from 0.8 beyond, critical from 1.6 beyond
	tests := []struct {
		name      string
		value     float64
		direction string
		severity  entities.Severity
	}{
		{"mild high", 5.4, "high", entities.SeverityMild},
		{"moderate high", 6.0, "high", entities.SeverityModerate},
		{"critical high", 6.8, "high", entities.SeverityCritical},
		{"mild low", 3.2, "low", entities.SeverityMild},
		{"critical low", 1.8, "low", entities.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &entities.MergedRecord{LabResults: []entities.MergedLabResult{
				lab("k1", "2823-3", "Potassium", tt.value, "mmol/L", ptr(3.5), ptr(5.1), day(2025, 1, 1)),
			}}

			findings := e.Evaluate(Input{Record: record, AsOf: asOf})

			require.Len(t, findings.LabFlags, 1)
			assert.Equal(t, tt.direction, findings.LabFlags[0].Direction)
			assert.Equal(t, tt.severity, findings.LabFlags[0].Severity)
			assert.Equal(t, "k1", findings.LabFlags[0].ResultID)
		})
	}
}

func TestLabAbnormality_InRangeAndMissingRange(t *testing.T) {
	e := NewLabAbnormalityEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{LabResults: []entities.MergedLabResult{
		lab("in", "2823-3", "Potassium", 4.2, "mmol/L", ptr(3.5), ptr(5.1), day(2025, 1, 1)),
		lab("unknown", "99999-9", "Mystery analyte", 1000, "U", nil, nil, day(2025, 1, 1)),
		{ID: "text", Code: "2823-3", Name: "Potassium", ValueText: "hemolyzed"},
		lab("nan", "2823-3", "Potassium", math.NaN(), "mmol/L", ptr(3.5), ptr(5.1), nil),
	}}

	findings := e.Evaluate(Input{Record: record, AsOf: asOf})

	assert.Empty(t, findings.LabFlags)
}

func TestLabAbnormality_PolicyRangeFallback(t *testing.T) {
	e := NewLabAbnormalityEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{LabResults: []entities.MergedLabResult{
		lab("a1c", "4548-4", "Hemoglobin A1c", 7.9, "%", nil, nil, day(2025, 1, 1)),
	}}

	findings := e.Evaluate(Input{Record: record, AsOf: asOf})

	require.Len(t, findings.LabFlags, 1)
	assert.Equal(t, "high", findings.LabFlags[0].Direction)
	assert.Equal(t, 5.6, *findings.LabFlags[0].ReferenceHigh)
	// 2.3 beyond a 1.6 span
	assert.Equal(t, entities.SeverityCritical, findings.LabFlags[0].Severity)
}

func TestLabAbnormality_OneSidedRange(t *testing.T) {
	e := NewLabAbnormalityEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{LabResults: []entities.MergedLabResult{
		lab("ldl", "13457-7", "LDL", 130, "mg/dL", nil, ptr(100.0), day(2025, 1, 1)),
	}}

	findings := e.Evaluate(Input{Record: record, AsOf: asOf})

	require.Len(t, findings.LabFlags, 1)
	// 30 beyond a boundary of 100 is 0.3 of the span
	assert.Equal(t, entities.SeverityMild, findings.LabFlags[0].Severity)
}

func TestLabAbnormality_NilRecord(t *testing.T) {
	e := NewLabAbnormalityEvaluator(DefaultPolicy())
	assert.Empty(t, e.Evaluate(Input{AsOf: asOf}).LabFlags)
}
