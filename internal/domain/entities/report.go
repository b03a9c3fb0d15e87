package entities

import "time"

// ReportNarrative is a ready narrative as shown in a report.
type ReportNarrative struct {
	Kind        NarrativeKind `json:"kind"`
	Subject     string        `json:"subject,omitempty"`
	Text        string        `json:"text"`
	WasModified bool          `json:"was_modified"`
}

// ReportQuestion is a doctor question as shown in a report. The question
// is listed bare; the notes the guardrail attached travel alongside it.
type ReportQuestion struct {
	Topic        string `json:"topic"`
	Question     string `json:"question"`
	Disclaimer   string `json:"disclaimer"`
	CallToAction string `json:"call_to_action,omitempty"`
}

// ReportExplanation is an explanation as shown in a report.
type ReportExplanation struct {
	Topic string `json:"topic"`
	Text  string `json:"text"`
}

// PreVisitReport is assembled fresh per request from already-produced parts.
type PreVisitReport struct {
	ID           string               `json:"id"`
	PatientID    string               `json:"patient_id"`
	GeneratedAt  time.Time            `json:"generated_at"`
	Demographics *PatientDemographics `json:"demographics,omitempty"`
	AgeYears     *int                 `json:"age_years,omitempty"`

	Insights             []HealthInsight       `json:"insights,omitempty"`
	LabFlags             []LabAbnormalFlag     `json:"lab_flags,omitempty"`
	LabTrends            []LabTrend            `json:"lab_trends,omitempty"`
	CareGaps             []CareGap             `json:"care_gaps,omitempty"`
	DrugInteractions     []DrugInteraction     `json:"drug_interactions,omitempty"`
	SourceConflictAlerts []SourceConflictAlert `json:"source_conflict_alerts,omitempty"`
	VitalCorrelations    []VitalCorrelation    `json:"vital_correlations,omitempty"`
	AnalyzedAt           *time.Time            `json:"analyzed_at,omitempty"`

	Narratives   []ReportNarrative   `json:"narratives,omitempty"`
	Explanations []ReportExplanation `json:"explanations,omitempty"`
	Questions    []ReportQuestion    `json:"questions,omitempty"`

	Disclaimer string `json:"disclaimer"`
}

// HasTier1 reports whether the report carries Tier-1 sections.
func (r *PreVisitReport) HasTier1() bool {
	return r.AnalyzedAt != nil
}
