package entities

import (
	"time"

	"github.com/zatekoja/patientinsights/internal/evaluation"
)

// NarrativeKind is one of the Tier-2 narrative use cases.
type NarrativeKind string

const (
	NarrativeKindLabTrend          NarrativeKind = "lab_trend"
	NarrativeKindHealthSnapshot    NarrativeKind = "health_snapshot"
	NarrativeKindMedicationSummary NarrativeKind = "medication_summary"
)

// IsValid checks if the kind is one of the defined constants.
func (k NarrativeKind) IsValid() bool {
	switch k {
	case NarrativeKindLabTrend, NarrativeKindHealthSnapshot, NarrativeKindMedicationSummary:
		return true
	}
	return false
}

// OutputKind maps a narrative kind to the guardrail context kind.
func (k NarrativeKind) OutputKind() evaluation.OutputKind {
	switch k {
	case NarrativeKindLabTrend:
		return evaluation.OutputKindLabTrendNarrative
	case NarrativeKindMedicationSummary:
		return evaluation.OutputKindMedicationSummary
	default:
		return evaluation.OutputKindHealthSnapshot
	}
}

// NarrativeStatus reports whether a narrative could be produced.
type NarrativeStatus string

const (
	NarrativeStatusReady       NarrativeStatus = "ready"
	NarrativeStatusUnavailable NarrativeStatus = "unavailable"
)

// CachedNarrative is a guarded narrative stored under the fingerprint of its inputs.
type CachedNarrative struct {
	Key         string                     `json:"key"`
	Fingerprint string                     `json:"fingerprint"`
	PatientID   string                     `json:"patient_id"`
	Kind        NarrativeKind              `json:"kind"`
	Subject     string                     `json:"subject,omitempty"`
	Output      evaluation.GuardedAIOutput `json:"output"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// NarrativeResult is the outcome of one narrative request.
type NarrativeResult struct {
	Kind        NarrativeKind               `json:"kind"`
	Subject     string                      `json:"subject,omitempty"`
	Key         string                      `json:"key,omitempty"`
	Fingerprint string                      `json:"fingerprint,omitempty"`
	Status      NarrativeStatus             `json:"status"`
	Retryable   bool                        `json:"retryable,omitempty"`
	Output      *evaluation.GuardedAIOutput `json:"output,omitempty"`
	CreatedAt   *time.Time                  `json:"created_at,omitempty"`
	FromCache   bool                        `json:"from_cache"`
}

// Ready reports whether the result carries usable output.
func (r NarrativeResult) Ready() bool {
	return r.Status == NarrativeStatusReady && r.Output != nil
}

// NarrativeFromCached builds a ready result from a cache entry.
func NarrativeFromCached(c *CachedNarrative, fromCache bool) NarrativeResult {
	out := c.Output
	created := c.CreatedAt
	return NarrativeResult{
		Kind:        c.Kind,
		Subject:     c.Subject,
		Key:         c.Key,
		Fingerprint: c.Fingerprint,
		Status:      NarrativeStatusReady,
		Output:      &out,
		CreatedAt:   &created,
		FromCache:   fromCache,
	}
}

// UnavailableNarrative marks a narrative that could not be generated.
func UnavailableNarrative(kind NarrativeKind, subject string) NarrativeResult {
	return NarrativeResult{
		Kind:      kind,
		Subject:   subject,
		Status:    NarrativeStatusUnavailable,
		Retryable: true,
	}
}

// Tier2Results holds the narratives generated for one record.
type Tier2Results struct {
	PatientID  string            `json:"patient_id"`
	Narratives []NarrativeResult `json:"narratives"`
}

// Ready returns only the narratives that were produced.
func (r *Tier2Results) Ready() []NarrativeResult {
	if r == nil {
		return nil
	}
	var out []NarrativeResult
	for _, n := range r.Narratives {
		if n.Ready() {
			out = append(out, n)
		}
	}
	return out
}
