package entities

import "github.com/google/uuid"

// InsightCategory identifies which rule family produced an insight.
type InsightCategory string

const (
	InsightCategoryDrugInteraction  InsightCategory = "drug_interaction"
	InsightCategoryLabAbnormality   InsightCategory = "lab_abnormality"
	InsightCategoryCareGap          InsightCategory = "care_gap"
	InsightCategorySourceConflict   InsightCategory = "source_conflict"
	InsightCategoryLabTrend         InsightCategory = "lab_trend"
	InsightCategoryVitalCorrelation InsightCategory = "vital_correlation"
)

// Order is the display order of categories within one priority.
func (c InsightCategory) Order() int {
	switch c {
	case InsightCategoryDrugInteraction:
		return 0
	case InsightCategoryLabAbnormality:
		return 1
	case InsightCategoryCareGap:
		return 2
	case InsightCategorySourceConflict:
		return 3
	case InsightCategoryLabTrend:
		return 4
	case InsightCategoryVitalCorrelation:
		return 5
	}
	return 6
}

// InsightPriority ranks insights for display.
type InsightPriority string

const (
	InsightPriorityCritical InsightPriority = "critical"
	InsightPriorityHigh     InsightPriority = "high"
	InsightPriorityModerate InsightPriority = "moderate"
	InsightPriorityLow      InsightPriority = "low"
)

// Rank orders priorities, higher first.
func (p InsightPriority) Rank() int {
	switch p {
	case InsightPriorityCritical:
		return 3
	case InsightPriorityHigh:
		return 2
	case InsightPriorityModerate:
		return 1
	}
	return 0
}

// HealthInsight is a display-ready wrapper around any Tier-1 finding.
type HealthInsight struct {
	ID         string          `json:"id"`
	Category   InsightCategory `json:"category"`
	Priority   InsightPriority `json:"priority"`
	Title      string          `json:"title"`
	Summary    string          `json:"summary"`
	Actionable bool            `json:"actionable"`
	SourceRef  string          `json:"source_ref,omitempty"`
}

var insightNamespace = uuid.MustParse("6f1d1f0e-3b7a-4a55-9a43-3f5b9c2e8d10")

// NewHealthInsight creates an insight whose ID is derived from its category
// and source reference, so the same finding always gets the same ID.
func NewHealthInsight(category InsightCategory, priority InsightPriority, title, summary, sourceRef string, actionable bool) HealthInsight {
	return HealthInsight{
		ID:         uuid.NewSHA1(insightNamespace, []byte(string(category)+"|"+sourceRef+"|"+title)).String(),
		Category:   category,
		Priority:   priority,
		Title:      title,
		Summary:    summary,
		Actionable: actionable,
		SourceRef:  sourceRef,
	}
}
