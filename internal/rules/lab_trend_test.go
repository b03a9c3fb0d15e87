package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

func TestLabTrend_SinglePointEmitsNothing(t *testing.T) {
	e := NewLabTrendEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{PatientID: "p-1", LabResults: []entities.MergedLabResult{
		lab("a1", "4548-4", "Hemoglobin A1c", 7.9, "%", nil, nil, day(2024, 1, 10)),
	}}

	assert.Empty(t, e.Evaluate(Input{Record: record, AsOf: asOf}).LabTrends)
}

func TestLabTrend_ImprovingByPolarity(t *testing.T) {
	e := NewLabTrendEvaluator(DefaultPolicy())
	// given out of order on purpose
	record := &entities.MergedRecord{PatientID: "p-1", LabResults: []entities.MergedLabResult{
		lab("a3", "4548-4", "Hemoglobin A1c", 6.8, "%", nil, nil, day(2025, 1, 10)),
		lab("a1", "4548-4", "Hemoglobin A1c", 7.9, "%", nil, nil, day(2024, 1, 10)),
		lab("a2", "4548-4", "Hemoglobin A1c", 7.2, "%", nil, nil, day(2024, 7, 10)),
	}}

	trends := e.Evaluate(Input{Record: record, AsOf: asOf}).LabTrends

	require.Len(t, trends, 1)
	trend := trends[0]
	assert.Equal(t, "4548-4", trend.AnalyteKey)
	assert.Equal(t, entities.MovementFalling, trend.Movement)
	assert.Equal(t, entities.TrendImproving, trend.Direction)
	assert.InDelta(t, -1.1, trend.Delta, 1e-9)
	require.Len(t, trend.Points, 3)
	assert.Equal(t, "a1", trend.Earliest().ResultID)
	assert.Equal(t, "a3", trend.Latest().ResultID)
}

func TestLabTrend_WorseningByPolarity(t *testing.T) {
	e := NewLabTrendEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{LabResults: []entities.MergedLabResult{
		lab("e1", "33914-3", "eGFR", 72, "mL/min/1.73m2", nil, nil, day(2024, 1, 10)),
		lab("e2", "33914-3", "eGFR", 58, "mL/min/1.73m2", nil, nil, day(2025, 1, 10)),
	}}

	trends := e.Evaluate(Input{Record: record, AsOf: asOf}).LabTrends

	require.Len(t, trends, 1)
	assert.Equal(t, entities.TrendWorsening, trends[0].Direction)
}

func TestLabTrend_StableWithinNoise(t *testing.T) {
	e := NewLabTrendEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{LabResults: []entities.MergedLabResult{
		lab("s1", "2951-2", "Sodium", 140, "mmol/L", ptr(135.0), ptr(145.0), day(2024, 1, 10)),
		lab("s2", "2951-2", "Sodium", 142, "mmol/L", ptr(135.0), ptr(145.0), day(2025, 1, 10)),
	}}

	trends := e.Evaluate(Input{Record: record, AsOf: asOf}).LabTrends

	require.Len(t, trends, 1)
	assert.Equal(t, entities.MovementFlat, trends[0].Movement)
	assert.Equal(t, entities.TrendStable, trends[0].Direction)
}

func TestLabTrend_DirectionFromRangeMidpoint(t *testing.T) {
	e := NewLabTrendEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{LabResults: []entities.MergedLabResult{
		lab("t1", "", "Ferritin", 20, "ng/mL", ptr(30.0), ptr(300.0), day(2024, 1, 10)),
		lab("t2", "", "ferritin ", 90, "ng/mL", ptr(30.0), ptr(300.0), day(2025, 1, 10)),
	}}

	trends := e.Evaluate(Input{Record: record, AsOf: asOf}).LabTrends

	require.Len(t, trends, 1)
	assert.Equal(t, "ferritin", trends[0].AnalyteKey)
	assert.Equal(t, entities.TrendImproving, trends[0].Direction)
}

func TestLabTrend_IndeterminateWithoutPolarityOrRange(t *testing.T) {
	e := NewLabTrendEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{LabResults: []entities.MergedLabResult{
		lab("x1", "", "Vitamin D", 20, "ng/mL", nil, nil, day(2024, 1, 10)),
		lab("x2", "", "Vitamin D", 35, "ng/mL", nil, nil, day(2025, 1, 10)),
	}}

	trends := e.Evaluate(Input{Record: record, AsOf: asOf}).LabTrends

	require.Len(t, trends, 1)
	assert.Equal(t, entities.MovementRising, trends[0].Movement)
	assert.Equal(t, entities.TrendIndeterminate, trends[0].Direction)
}

func TestLabTrend_SkipsUndatedAndMixedUnits(t *testing.T) {
	e := NewLabTrendEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{LabResults: []entities.MergedLabResult{
		lab("g1", "2345-7", "Glucose", 5.5, "mmol/L", nil, nil, day(2024, 1, 10)),
		lab("g2", "2345-7", "Glucose", 130, "mg/dL", nil, nil, day(2025, 1, 10)),
		lab("g3", "2345-7", "Glucose", 120, "mg/dL", nil, nil, nil),
	}}

	assert.Empty(t, e.Evaluate(Input{Record: record, AsOf: asOf}).LabTrends)
}

func TestLabTrend_GroupsByPatient(t *testing.T) {
	e := NewLabTrendEvaluator(DefaultPolicy())
	a := lab("a1", "4548-4", "Hemoglobin A1c", 7.9, "%", nil, nil, day(2024, 1, 10))
	b := lab("b1", "4548-4", "Hemoglobin A1c", 6.8, "%", nil, nil, day(2025, 1, 10))
	b.PatientID = "someone-else"
	record := &entities.MergedRecord{PatientID: "p-1", LabResults: []entities.MergedLabResult{a, b}}

	assert.Empty(t, e.Evaluate(Input{Record: record, AsOf: time.Now()}).LabTrends)
}
