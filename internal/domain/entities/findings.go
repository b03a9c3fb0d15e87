package entities

import "time"

// Severity grades a finding.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// Rank orders severities, higher is worse. Unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeveritySevere:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMild:
		return 1
	}
	return 0
}

// IsValid checks if the severity is one of the defined constants.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

// TrendDirection is the clinical reading of a series.
type TrendDirection string

const (
	TrendImproving     TrendDirection = "improving"
	TrendWorsening     TrendDirection = "worsening"
	TrendStable        TrendDirection = "stable"
	TrendIndeterminate TrendDirection = "indeterminate"
)

// Movement is the raw numeric direction of a series.
type Movement string

const (
	MovementRising  Movement = "rising"
	MovementFalling Movement = "falling"
	MovementFlat    Movement = "flat"
)

// LabAbnormalFlag marks a lab result outside its reference range.
type LabAbnormalFlag struct {
	ResultID      string     `json:"result_id"`
	Code          string     `json:"code,omitempty"`
	Name          string     `json:"name"`
	Value         float64    `json:"value"`
	Unit          string     `json:"unit,omitempty"`
	ReferenceLow  *float64   `json:"reference_low,omitempty"`
	ReferenceHigh *float64   `json:"reference_high,omitempty"`
	Direction     string     `json:"direction"` // high or low
	Severity      Severity   `json:"severity"`
	ObservedAt    *time.Time `json:"observed_at,omitempty"`
	SourceSystem  string     `json:"source_system,omitempty"`
}

// TrendPoint is one observation in a series.
type TrendPoint struct {
	ResultID   string    `json:"result_id"`
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// LabTrend is the direction of one analyte across time.
type LabTrend struct {
	AnalyteKey string         `json:"analyte_key"`
	Code       string         `json:"code,omitempty"`
	Name       string         `json:"name"`
	Unit       string         `json:"unit,omitempty"`
	Direction  TrendDirection `json:"direction"`
	Movement   Movement       `json:"movement"`
	Delta      float64        `json:"delta"`
	Points     []TrendPoint   `json:"points"`
}

// Earliest returns the first point of the trend.
func (t LabTrend) Earliest() TrendPoint {
	if len(t.Points) == 0 {
		return TrendPoint{}
	}
	return t.Points[0]
}

// Latest returns the last point of the trend.
func (t LabTrend) Latest() TrendPoint {
	if len(t.Points) == 0 {
		return TrendPoint{}
	}
	return t.Points[len(t.Points)-1]
}

// CareGap is a recommended preventive action with no recent evidence.
type CareGap struct {
	RuleID          string     `json:"rule_id"`
	Category        string     `json:"category"` // screening or immunization
	Action          string     `json:"action"`
	Justification   string     `json:"justification"`
	IntervalMonths  int        `json:"interval_months"`
	LastPerformedAt *time.Time `json:"last_performed_at,omitempty"`
}

// DrugInteraction is a known interaction between two active medications.
// MedicationA sorts before MedicationB.
type DrugInteraction struct {
	MedicationA    string   `json:"medication_a"`
	MedicationB    string   `json:"medication_b"`
	MedicationIDs  []string `json:"medication_ids"`
	Severity       Severity `json:"severity"`
	Mechanism      string   `json:"mechanism"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// SourceConflictAlert renders a Conflict for the patient.
type SourceConflictAlert struct {
	ConflictID        string          `json:"conflict_id"`
	Domain            string          `json:"domain"`
	Field             string          `json:"field,omitempty"`
	Message           string          `json:"message"`
	SourceValues      []ConflictValue `json:"source_values"`
	RecommendedAction string          `json:"recommended_action"`
}

// VitalCorrelation links a vital sign trend to a medication change.
type VitalCorrelation struct {
	VitalType        string    `json:"vital_type"`
	Movement         Movement  `json:"movement"`
	Delta            float64   `json:"delta"`
	Unit             string    `json:"unit,omitempty"`
	SeriesStart      time.Time `json:"series_start"`
	SeriesEnd        time.Time `json:"series_end"`
	MedicationID     string    `json:"medication_id"`
	MedicationName   string    `json:"medication_name"`
	MedicationChange time.Time `json:"medication_change"`
	Association      string    `json:"association"`
	Summary          string    `json:"summary"`
}

// Tier1Findings is the output of one or more rule evaluators.
type Tier1Findings struct {
	LabFlags             []LabAbnormalFlag     `json:"lab_flags"`
	LabTrends            []LabTrend            `json:"lab_trends"`
	CareGaps             []CareGap             `json:"care_gaps"`
	DrugInteractions     []DrugInteraction     `json:"drug_interactions"`
	SourceConflictAlerts []SourceConflictAlert `json:"source_conflict_alerts"`
	VitalCorrelations    []VitalCorrelation    `json:"vital_correlations"`
}

// Merge appends other's findings to f, preserving order.
func (f *Tier1Findings) Merge(other Tier1Findings) {
	f.LabFlags = append(f.LabFlags, other.LabFlags...)
	f.LabTrends = append(f.LabTrends, other.LabTrends...)
	f.CareGaps = append(f.CareGaps, other.CareGaps...)
	f.DrugInteractions = append(f.DrugInteractions, other.DrugInteractions...)
	f.SourceConflictAlerts = append(f.SourceConflictAlerts, other.SourceConflictAlerts...)
	f.VitalCorrelations = append(f.VitalCorrelations, other.VitalCorrelations...)
}

// Count returns the total number of findings.
func (f Tier1Findings) Count() int {
	return len(f.LabFlags) + len(f.LabTrends) + len(f.CareGaps) +
		len(f.DrugInteractions) + len(f.SourceConflictAlerts) + len(f.VitalCorrelations)
}

// Tier1Results is the bundle produced by one analysis run. It is not
// modified after the orchestrator returns it.
type Tier1Results struct {
	PatientID string `json:"patient_id"`
	Tier1Findings
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// TrendFor returns the trend for an analyte key, code or name.
func (r *Tier1Results) TrendFor(analyte string) (LabTrend, bool) {
	if r == nil {
		return LabTrend{}, false
	}
	for _, t := range r.LabTrends {
		if t.AnalyteKey == analyte || (t.Code != "" && t.Code == analyte) || t.Name == analyte {
			return t, true
		}
	}
	return LabTrend{}, false
}
