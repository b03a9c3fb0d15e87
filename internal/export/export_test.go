package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

func ptr[T any](v T) *T { return &v }

func sampleReport() *entities.PreVisitReport {
	generated := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	observed := time.Date(2025, time.May, 20, 9, 0, 0, 0, time.UTC)
	return &entities.PreVisitReport{
		ID:          "report-1",
		PatientID:   "patient-1",
		GeneratedAt: generated,
		AgeYears:    ptr(57),
		AnalyzedAt:  &generated,
		Insights: []entities.HealthInsight{
			{Title: "Possible interaction between lisinopril and spironolactone", Priority: entities.InsightPriorityHigh, Summary: "Both raise potassium levels."},
		},
		DrugInteractions: []entities.DrugInteraction{
			{MedicationA: "lisinopril", MedicationB: "spironolactone", Severity: entities.SeveritySevere, Mechanism: "Both raise potassium | levels."},
		},
		LabFlags: []entities.LabAbnormalFlag{
			{ResultID: "lab-2", Name: "Hemoglobin A1c", Value: 7.2, Unit: "%", ReferenceLow: ptr(4.0), ReferenceHigh: ptr(5.6), Direction: "high", ObservedAt: &observed},
		},
		LabTrends: []entities.LabTrend{{
			Name: "Hemoglobin A1c", Unit: "%", Direction: entities.TrendWorsening,
			Points: []entities.TrendPoint{
				{Value: 6.1, ObservedAt: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)},
				{Value: 7.2, ObservedAt: observed},
			},
		}},
		Narratives: []entities.ReportNarrative{
			{Kind: entities.NarrativeKindLabTrend, Subject: "4548-4", Text: "Your A1c rose.\n\nThis summary is for information only. <script>alert(1)</script>"},
		},
		Questions: []entities.ReportQuestion{
			{Topic: "a1c", Question: "What does my A1c trend mean?", Disclaimer: "These are suggested questions only."},
			{Topic: "potassium", Question: "Should my potassium be checked more often?", Disclaimer: "These are suggested questions only.", CallToAction: "Please contact your provider."},
		},
		Disclaimer: "This report is not a diagnosis.",
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":         FormatJSON,
		"json":     FormatJSON,
		"Markdown": FormatMarkdown,
		"md":       FormatMarkdown,
		" html ":   FormatHTML,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleReport())

	assert.True(t, strings.HasPrefix(md, "# Pre-visit health summary\n"))
	assert.Contains(t, md, "- **Age:** 57")
	assert.Contains(t, md, "## Things to discuss")
	assert.Contains(t, md, `| lisinopril + spironolactone | severe | Both raise potassium \| levels. |`)
	assert.Contains(t, md, "| Hemoglobin A1c | 7.2 % (high) | 4 to 5.6 % | 2025-05-20 |")
	assert.Contains(t, md, "| Hemoglobin A1c | 6.1 % on 2024-06-01 | 7.2 % on 2025-05-20 | worsening |")
	assert.Contains(t, md, "### Lab trend: 4548-4")
	assert.Contains(t, md, "1. What does my A1c trend mean?")
	assert.True(t, strings.HasSuffix(md, "> This report is not a diagnosis.\n"))

	assert.NotContains(t, md, "## Preventive care")
	assert.NotContains(t, md, "## Explanations")

	assert.Contains(t, md, "2. Should my potassium be checked more often?\n")
	assert.Equal(t, 1, strings.Count(md, "_These are suggested questions only._"))
	assert.Contains(t, md, "_Please contact your provider._")
}

func TestMarkdown_Nil(t *testing.T) {
	assert.Empty(t, Markdown(nil))
}

func TestHTML(t *testing.T) {
	page, err := HTML(sampleReport())
	require.NoError(t, err)
	html := string(page)

	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "<title>Pre-visit health summary</title>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<ol>")
	assert.NotContains(t, html, "<script>alert(1)</script>")
}

func TestWrite(t *testing.T) {
	report := sampleReport()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report, FormatJSON))
	var decoded entities.PreVisitReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "report-1", decoded.ID)

	buf.Reset()
	require.NoError(t, Write(&buf, report, FormatMarkdown))
	assert.Equal(t, Markdown(report), buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, report, FormatHTML))
	assert.Contains(t, buf.String(), "</html>")

	assert.Error(t, Write(&buf, report, Format("pdf")))
}

func TestFormat_ContentType(t *testing.T) {
	assert.Equal(t, "application/json", FormatJSON.ContentType())
	assert.Equal(t, "text/markdown; charset=utf-8", FormatMarkdown.ContentType())
	assert.Equal(t, "text/html; charset=utf-8", FormatHTML.ContentType())
}
