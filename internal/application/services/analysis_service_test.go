package services_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/patientinsights/internal/application/services"
	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/rules"
)

func newAnalysisService(clock func() time.Time) *services.AnalysisService {
	return services.NewAnalysisService(rules.DefaultEvaluators(rules.DefaultPolicy()), clock)
}

func TestAnalysisService_Analyze(t *testing.T) {
	svc := newAnalysisService(func() time.Time { return fixedNow })
	demographics := &entities.PatientDemographics{PatientID: "patient-1", BirthDate: day(1968, time.March, 3), Sex: "female"}

	results := svc.Analyze(sampleRecord(), demographics)
	require.NotNil(t, results)

	assert.Equal(t, "patient-1", results.PatientID)
	assert.Equal(t, fixedNow, results.AnalyzedAt)
	assert.NotEmpty(t, results.LabFlags)

	trend, ok := results.TrendFor("4548-4")
	require.True(t, ok)
	assert.Equal(t, entities.TrendWorsening, trend.Direction)
	assert.Equal(t, entities.MovementRising, trend.Movement)
	assert.Len(t, trend.Points, 2)
}

func TestAnalysisService_SameSnapshotSameFindings(t *testing.T) {
	now := fixedNow
	svc := newAnalysisService(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	record := sampleRecord()

	first := svc.Analyze(record, nil)
	second := svc.Analyze(record, nil)

	assert.True(t, second.AnalyzedAt.After(first.AnalyzedAt))
	second.AnalyzedAt = first.AnalyzedAt
	assert.Equal(t, first, second)
}

func TestAnalysisService_DoesNotModifyRecord(t *testing.T) {
	svc := newAnalysisService(func() time.Time { return fixedNow })
	record := sampleRecord()

	before, err := json.Marshal(record)
	require.NoError(t, err)
	svc.Analyze(record, &entities.PatientDemographics{PatientID: "patient-1", Sex: "male"})
	after, err := json.Marshal(record)
	require.NoError(t, err)

	assert.JSONEq(t, string(before), string(after))
}

func TestAnalysisService_EmptyRecord(t *testing.T) {
	svc := newAnalysisService(func() time.Time { return fixedNow })

	for name, record := range map[string]*entities.MergedRecord{
		"nil":   nil,
		"empty": {PatientID: "patient-9"},
	} {
		t.Run(name, func(t *testing.T) {
			results := svc.Analyze(record, nil)
			require.NotNil(t, results)
			assert.Zero(t, results.Count())

			data, err := json.Marshal(results)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"lab_flags":[]`)
			assert.Contains(t, string(data), `"vital_correlations":[]`)
		})
	}
}

func TestInsights_Ordering(t *testing.T) {
	insights := services.Insights(sampleResults())
	require.Len(t, insights, 3)

	assert.Equal(t, entities.InsightCategoryDrugInteraction, insights[0].Category)
	assert.Equal(t, entities.InsightPriorityHigh, insights[0].Priority)
	assert.Equal(t, "Possible interaction between lisinopril and spironolactone", insights[0].Title)

	assert.Equal(t, entities.InsightCategoryLabAbnormality, insights[1].Category)
	assert.Equal(t, entities.InsightPriorityModerate, insights[1].Priority)
	assert.Equal(t, "Hemoglobin A1c is high", insights[1].Title)
	assert.Equal(t, "lab:lab-2", insights[1].SourceRef)

	assert.Equal(t, entities.InsightCategoryLabTrend, insights[2].Category)
	assert.Equal(t, "Hemoglobin A1c is worsening", insights[2].Title)
	assert.True(t, insights[2].Actionable)

	for i := 1; i < len(insights); i++ {
		assert.GreaterOrEqual(t, insights[i-1].Priority.Rank(), insights[i].Priority.Rank())
	}
}

func TestInsights_StableIDs(t *testing.T) {
	a := services.Insights(sampleResults())
	b := services.Insights(sampleResults())
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.NotEmpty(t, a[i].ID)
	}
}

func TestInsights_NilResults(t *testing.T) {
	insights := services.Insights(nil)
	assert.NotNil(t, insights)
	assert.Empty(t, insights)
}

func TestInsights_StableTrendIsLowPriority(t *testing.T) {
	results := &entities.Tier1Results{PatientID: "p"}
	trend := a1cTrend()
	trend.Direction = entities.TrendImproving
	trend.Movement = entities.MovementFalling
	results.LabTrends = []entities.LabTrend{trend}

	insights := services.Insights(results)
	require.Len(t, insights, 1)
	assert.Equal(t, entities.InsightPriorityLow, insights[0].Priority)
	assert.False(t, insights[0].Actionable)
}
