package entities

import (
	"strings"
	"time"
)

// Medication statuses reported by the reconciliation layer.
const (
	MedicationStatusActive    = "active"
	MedicationStatusStopped   = "stopped"
	MedicationStatusCompleted = "completed"
	MedicationStatusOnHold    = "on-hold"
	MedicationStatusUnknown   = "unknown"
)

// Sex values used in demographics and care gap rules.
const (
	SexMale    = "male"
	SexFemale  = "female"
	SexOther   = "other"
	SexUnknown = "unknown"
)

// Vital sign types.
const (
	VitalSystolicBP       = "systolic_bp"
	VitalDiastolicBP      = "diastolic_bp"
	VitalHeartRate        = "heart_rate"
	VitalWeight           = "weight"
	VitalBMI              = "bmi"
	VitalRespiratoryRate  = "respiratory_rate"
	VitalTemperature      = "temperature"
	VitalOxygenSaturation = "oxygen_saturation"
)

// Provenance is embedded in every merged entity.
type Provenance struct {
	SourceSystem string   `json:"source_system"`
	Sources      []string `json:"sources,omitempty"`
}

// MergedMedication is a medication reconciled across source systems.
type MergedMedication struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Code       string     `json:"code,omitempty"`
	Ingredient string     `json:"ingredient,omitempty"`
	Dose       string     `json:"dose,omitempty"`
	Route      string     `json:"route,omitempty"`
	Frequency  string     `json:"frequency,omitempty"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	ChangedAt  *time.Time `json:"changed_at,omitempty"`
	Provenance
}

// IsActive reports whether the medication is currently being taken as of t.
// An unknown status with no end date counts as active.
func (m MergedMedication) IsActive(t time.Time) bool {
	status := strings.ToLower(strings.TrimSpace(m.Status))
	switch status {
	case MedicationStatusStopped, MedicationStatusCompleted, "entered-in-error", "cancelled":
		return false
	}
	if m.EndedAt != nil && !m.EndedAt.IsZero() && m.EndedAt.Before(t) {
		return false
	}
	return status == MedicationStatusActive || status == MedicationStatusOnHold || status == "" || status == MedicationStatusUnknown
}

// LastChange returns the most recent start or change time, or nil.
func (m MergedMedication) LastChange() *time.Time {
	if m.ChangedAt != nil && !m.ChangedAt.IsZero() {
		if m.StartedAt == nil || m.ChangedAt.After(*m.StartedAt) {
			return m.ChangedAt
		}
	}
	if m.StartedAt != nil && !m.StartedAt.IsZero() {
		return m.StartedAt
	}
	return nil
}

// MergedLabResult is a laboratory observation.
type MergedLabResult struct {
	ID             string     `json:"id"`
	PatientID      string     `json:"patient_id,omitempty"`
	Code           string     `json:"code,omitempty"`
	Name           string     `json:"name"`
	Value          *float64   `json:"value,omitempty"`
	ValueText      string     `json:"value_text,omitempty"`
	Unit           string     `json:"unit,omitempty"`
	ReferenceLow   *float64   `json:"reference_low,omitempty"`
	ReferenceHigh  *float64   `json:"reference_high,omitempty"`
	Interpretation string     `json:"interpretation,omitempty"`
	Status         string     `json:"status,omitempty"`
	ObservedAt     *time.Time `json:"observed_at,omitempty"`
	Provenance
}

// MergedVital is a vital sign observation.
type MergedVital struct {
	ID         string     `json:"id"`
	PatientID  string     `json:"patient_id,omitempty"`
	Type       string     `json:"type"`
	Code       string     `json:"code,omitempty"`
	Value      *float64   `json:"value,omitempty"`
	Unit       string     `json:"unit,omitempty"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
	Provenance
}

// MergedAllergy is an allergy or intolerance.
type MergedAllergy struct {
	ID         string     `json:"id"`
	Substance  string     `json:"substance"`
	Code       string     `json:"code,omitempty"`
	Reaction   string     `json:"reaction,omitempty"`
	Severity   string     `json:"severity,omitempty"`
	Status     string     `json:"status,omitempty"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
	Provenance
}

// MergedCondition is a problem-list entry.
type MergedCondition struct {
	ID             string     `json:"id"`
	Code           string     `json:"code,omitempty"`
	Name           string     `json:"name"`
	ClinicalStatus string     `json:"clinical_status,omitempty"`
	OnsetAt        *time.Time `json:"onset_at,omitempty"`
	RecordedAt     *time.Time `json:"recorded_at,omitempty"`
	Provenance
}

// IsActive reports whether the condition should count as present.
func (c MergedCondition) IsActive() bool {
	switch strings.ToLower(strings.TrimSpace(c.ClinicalStatus)) {
	case "resolved", "inactive", "remission", "entered-in-error", "refuted":
		return false
	}
	return true
}

// MergedImmunization is an administered vaccine.
type MergedImmunization struct {
	ID          string     `json:"id"`
	VaccineCode string     `json:"vaccine_code,omitempty"`
	Name        string     `json:"name"`
	Status      string     `json:"status,omitempty"`
	OccurredAt  *time.Time `json:"occurred_at,omitempty"`
	Provenance
}

// MergedEncounter is a visit, including any procedures performed.
type MergedEncounter struct {
	ID          string     `json:"id"`
	Type        string     `json:"type,omitempty"`
	Code        string     `json:"code,omitempty"`
	Description string     `json:"description,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Procedures  []string   `json:"procedures,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Provenance
}

// ConflictValue is one source's version of a disputed fact.
type ConflictValue struct {
	Source     string     `json:"source"`
	Value      string     `json:"value"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// Conflict records disagreement between sources about the same clinical fact.
type Conflict struct {
	ID          string          `json:"id"`
	Domain      string          `json:"domain"`
	Field       string          `json:"field,omitempty"`
	ResourceID  string          `json:"resource_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Values      []ConflictValue `json:"values"`
}

// MergedRecord is the reconciled, read-only view of one patient's record.
type MergedRecord struct {
	PatientID     string               `json:"patient_id"`
	Medications   []MergedMedication   `json:"medications,omitempty"`
	LabResults    []MergedLabResult    `json:"lab_results,omitempty"`
	Vitals        []MergedVital        `json:"vitals,omitempty"`
	Allergies     []MergedAllergy      `json:"allergies,omitempty"`
	Conditions    []MergedCondition    `json:"conditions,omitempty"`
	Immunizations []MergedImmunization `json:"immunizations,omitempty"`
	Encounters    []MergedEncounter    `json:"encounters,omitempty"`
	Conflicts     []Conflict           `json:"conflicts,omitempty"`
}

// PatientDemographics carries the fields needed by age/sex based rules.
type PatientDemographics struct {
	PatientID string     `json:"patient_id"`
	Name      string     `json:"name,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Sex       string     `json:"sex,omitempty"`
}

// AgeAt returns whole years of age at t. ok is false when the birth date is unknown
// or lies after t.
func (d *PatientDemographics) AgeAt(t time.Time) (age int, ok bool) {
	if d == nil || d.BirthDate == nil || d.BirthDate.IsZero() || d.BirthDate.After(t) {
		return 0, false
	}
	b := d.BirthDate.UTC()
	t = t.UTC()
	age = t.Year() - b.Year()
	if t.Month() < b.Month() || (t.Month() == b.Month() && t.Day() < b.Day()) {
		age--
	}
	return age, true
}

// NormalizedSex returns the lowercased sex or SexUnknown.
func (d *PatientDemographics) NormalizedSex() string {
	if d == nil {
		return SexUnknown
	}
	switch s := strings.ToLower(strings.TrimSpace(d.Sex)); s {
	case "m", SexMale:
		return SexMale
	case "f", SexFemale:
		return SexFemale
	case SexOther:
		return SexOther
	default:
		return SexUnknown
	}
}
