// Package rules holds the Tier-1 evaluators. Each evaluator is pure and
// total: it never mutates its input, never fails, and returns empty
// findings for nil or empty records.
package rules

import (
	"time"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// Input is one immutable snapshot handed to every evaluator in a run.
type Input struct {
	Record       *entities.MergedRecord
	Demographics *entities.PatientDemographics
	AsOf         time.Time
}

// Evaluator scans a snapshot for one category of finding.
type Evaluator interface {
	Name() string
	Evaluate(in Input) entities.Tier1Findings
}

// DefaultEvaluators returns the registered evaluators in run order. New
// rules are added here.
func DefaultEvaluators(policy *Policy) []Evaluator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return []Evaluator{
		NewLabAbnormalityEvaluator(policy),
		NewLabTrendEvaluator(policy),
		NewCareGapEvaluator(policy),
		NewDrugInteractionEvaluator(policy),
		NewSourceConflictEvaluator(policy),
		NewVitalCorrelationEvaluator(policy),
	}
}
