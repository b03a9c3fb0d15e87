package rules

import (
	"fmt"
	"strings"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// SourceConflictEvaluator renders each reconciliation conflict as an alert.
// It never creates conflicts of its own.
type SourceConflictEvaluator struct {
	policy *Policy
}

func NewSourceConflictEvaluator(policy *Policy) *SourceConflictEvaluator {
	return &SourceConflictEvaluator{policy: policy}
}

func (e *SourceConflictEvaluator) Name() string { return "source_conflicts" }

func (e *SourceConflictEvaluator) Evaluate(in Input) entities.Tier1Findings {
	var findings entities.Tier1Findings
	if in.Record == nil {
		return findings
	}

	for _, c := range in.Record.Conflicts {
		values := make([]entities.ConflictValue, len(c.Values))
		for i, v := range c.Values {
			values[i] = entities.ConflictValue{Source: v.Source, Value: v.Value, RecordedAt: copyTime(v.RecordedAt)}
		}
		findings.SourceConflictAlerts = append(findings.SourceConflictAlerts, entities.SourceConflictAlert{
			ConflictID:        c.ID,
			Domain:            c.Domain,
			Field:             c.Field,
			Message:           conflictMessage(c),
			SourceValues:      values,
			RecommendedAction: e.policy.ConflictAction(c.Domain),
		})
	}
	return findings
}

func conflictMessage(c entities.Conflict) string {
	subject := strings.TrimSpace(c.Description)
	if subject == "" {
		subject = strings.ReplaceAll(strings.TrimSpace(c.Domain), "_", " ")
	}
	if subject == "" {
		subject = "this item"
	}
	if c.Field != "" {
		subject = fmt.Sprintf("the %s of %s", strings.ReplaceAll(c.Field, "_", " "), subject)
	}

	if len(c.Values) == 0 {
		return fmt.Sprintf("Your records disagree about %s.", subject)
	}
	parts := make([]string, 0, len(c.Values))
	for _, v := range c.Values {
		source := v.Source
		if source == "" {
			source = "An unnamed source"
		}
		value := v.Value
		if value == "" {
			value = "no value"
		}
		parts = append(parts, fmt.Sprintf("%s reports %s", source, value))
	}
	return fmt.Sprintf("Your records disagree about %s: %s.", subject, strings.Join(parts, "; "))
}
