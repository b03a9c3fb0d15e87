package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// CareGapEvaluator compares the preventive care table with the record.
type CareGapEvaluator struct {
	policy *Policy
}

func NewCareGapEvaluator(policy *Policy) *CareGapEvaluator {
	return &CareGapEvaluator{policy: policy}
}

func (e *CareGapEvaluator) Name() string { return "care_gaps" }

func (e *CareGapEvaluator) Evaluate(in Input) entities.Tier1Findings {
	var findings entities.Tier1Findings
	if in.Record == nil {
		return findings
	}

	for _, rule := range e.policy.CareGaps {
		if !e.applies(rule, in) {
			continue
		}

		last := latestEvidence(in.Record, rule.Evidence, in.AsOf)
		if last != nil && (rule.IntervalMonths == 0 || !last.AddDate(0, rule.IntervalMonths, 0).Before(in.AsOf)) {
			continue
		}

		justification := rule.Justification
		if last == nil {
			justification = strings.TrimSpace(justification + " No record of this was found.")
		} else {
			justification = strings.TrimSpace(fmt.Sprintf("%s The most recent record is from %s.", justification, last.Format("January 2006")))
		}

		findings.CareGaps = append(findings.CareGaps, entities.CareGap{
			RuleID:          rule.ID,
			Category:        rule.Category,
			Action:          rule.Action,
			Justification:   justification,
			IntervalMonths:  rule.IntervalMonths,
			LastPerformedAt: last,
		})
	}
	return findings
}

func (e *CareGapEvaluator) applies(rule CareGapRule, in Input) bool {
	if rule.Sex != "" && in.Demographics.NormalizedSex() != rule.Sex {
		return false
	}
	if rule.AgeBounded() {
		age, ok := in.Demographics.AgeAt(in.AsOf)
		if !ok {
			return false
		}
		if rule.MinAge != nil && age < *rule.MinAge {
			return false
		}
		if rule.MaxAge != nil && age > *rule.MaxAge {
			return false
		}
	}
	if len(rule.RequiresConditions) > 0 && !hasCondition(in.Record, rule.RequiresConditions) {
		return false
	}
	if len(rule.ExcludesConditions) > 0 && hasCondition(in.Record, rule.ExcludesConditions) {
		return false
	}
	return true
}

func hasCondition(record *entities.MergedRecord, keywords []string) bool {
	for _, c := range record.Conditions {
		if !c.IsActive() {
			continue
		}
		if containsAnyKeyword(keywords, c.Name) || matchesCode(keywords, c.Code) {
			return true
		}
	}
	return false
}

// latestEvidence returns the most recent qualifying event at or before asOf.
func latestEvidence(record *entities.MergedRecord, ev CareGapEvidence, asOf time.Time) *time.Time {
	var latest *time.Time
	consider := func(t *time.Time) {
		at, ok := validTime(t)
		if !ok || at.After(asOf) {
			return
		}
		if latest == nil || at.After(*latest) {
			latest = &at
		}
	}

	for _, source := range ev.Sources {
		switch source {
		case "encounter":
			for _, enc := range record.Encounters {
				texts := append([]string{enc.Type, enc.Description, enc.Reason}, enc.Procedures...)
				codes := append([]string{enc.Code}, enc.Procedures...)
				if containsAnyKeyword(ev.Keywords, texts...) || matchesCode(ev.Codes, codes...) {
					if enc.StartedAt != nil {
						consider(enc.StartedAt)
					} else {
						consider(enc.EndedAt)
					}
				}
			}
		case "immunization":
			for _, imm := range record.Immunizations {
				switch strings.ToLower(imm.Status) {
				case "not-done", "entered-in-error":
					continue
				}
				if containsAnyKeyword(ev.Keywords, imm.Name) || matchesCode(ev.Codes, imm.VaccineCode) {
					consider(imm.OccurredAt)
				}
			}
		case "lab_result":
			for _, lab := range record.LabResults {
				if containsAnyKeyword(ev.Keywords, lab.Name) || matchesCode(ev.Codes, lab.Code) {
					consider(lab.ObservedAt)
				}
			}
		}
	}
	return latest
}
