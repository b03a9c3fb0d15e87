package rules

import (
	"math"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// LabAbnormalityEvaluator flags results outside their reference range.
type LabAbnormalityEvaluator struct {
	policy *Policy
}

func NewLabAbnormalityEvaluator(policy *Policy) *LabAbnormalityEvaluator {
	return &LabAbnormalityEvaluator{policy: policy}
}

func (e *LabAbnormalityEvaluator) Name() string { return "lab_abnormality" }

func (e *LabAbnormalityEvaluator) Evaluate(in Input) entities.Tier1Findings {
	var findings entities.Tier1Findings
	if in.Record == nil {
		return findings
	}

	for _, lab := range in.Record.LabResults {
		value, ok := finite(lab.Value)
		if !ok {
			continue
		}
		low, high := e.rangeFor(lab)
		if low == nil && high == nil {
			continue
		}
		if low != nil && high != nil && *low > *high {
			continue
		}

		var direction string
		var excess, boundary float64
		switch {
		case high != nil && value > *high:
			direction, excess, boundary = "high", value-*high, *high
		case low != nil && value < *low:
			direction, excess, boundary = "low", *low-value, *low
		default:
			continue
		}

		span := math.Abs(boundary)
		if low != nil && high != nil && *high > *low {
			span = *high - *low
		}

		findings.LabFlags = append(findings.LabFlags, entities.LabAbnormalFlag{
			ResultID:      lab.ID,
			Code:          lab.Code,
			Name:          lab.Name,
			Value:         value,
			Unit:          lab.Unit,
			ReferenceLow:  copyFloat(low),
			ReferenceHigh: copyFloat(high),
			Direction:     direction,
			Severity:      e.severity(excess, span),
			ObservedAt:    copyTime(lab.ObservedAt),
			SourceSystem:  lab.SourceSystem,
		})
	}
	return findings
}

// rangeFor prefers the range reported with the result and falls back to
// the policy table by code.
func (e *LabAbnormalityEvaluator) rangeFor(lab entities.MergedLabResult) (*float64, *float64) {
	low, lowOK := finite(lab.ReferenceLow)
	high, highOK := finite(lab.ReferenceHigh)
	if lowOK || highOK {
		return optional(low, lowOK), optional(high, highOK)
	}
	if r, ok := e.policy.RangeFor(lab.Code); ok {
		low, lowOK = finite(r.Low)
		high, highOK = finite(r.High)
		return optional(low, lowOK), optional(high, highOK)
	}
	return nil, nil
}

func (e *LabAbnormalityEvaluator) severity(excess, span float64) entities.Severity {
	if span <= 0 {
		return entities.SeverityModerate
	}
	ratio := excess / span
	switch {
	case ratio >= e.policy.LabSeverity.CriticalSpanMultiple:
		return entities.SeverityCritical
	case ratio >= e.policy.LabSeverity.ModerateSpanMultiple:
		return entities.SeverityModerate
	default:
		return entities.SeverityMild
	}
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
