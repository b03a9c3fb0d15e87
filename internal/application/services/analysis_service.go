package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/infrastructure/observability"
	"github.com/zatekoja/patientinsights/internal/rules"
)

// AnalysisService runs the Tier-1 rule evaluators against a record snapshot.
type AnalysisService struct {
	evaluators []rules.Evaluator
	now        func() time.Time
}

// NewAnalysisService creates an analysis service. A nil clock uses time.Now.
func NewAnalysisService(evaluators []rules.Evaluator, clock func() time.Time) *AnalysisService {
	if clock == nil {
		clock = time.Now
	}
	return &AnalysisService{
		evaluators: evaluators,
		now:        clock,
	}
}

// Analyze evaluates every registered rule once against the same snapshot
// and point in time. It never fails; an empty record yields empty findings.
func (s *AnalysisService) Analyze(record *entities.MergedRecord, demographics *entities.PatientDemographics) *entities.Tier1Results {
	asOf := s.now().UTC()
	runID := uuid.NewString()
	started := time.Now()

	in := rules.Input{Record: record, Demographics: demographics, AsOf: asOf}
	var findings entities.Tier1Findings
	for _, e := range s.evaluators {
		findings.Merge(e.Evaluate(in))
	}

	results := &entities.Tier1Results{
		PatientID:     patientIDOf(record, demographics),
		Tier1Findings: nonNil(findings),
		AnalyzedAt:    asOf,
	}

	observability.GetLogger().Debug().
		Str("run_id", runID).
		Str("patient_id", results.PatientID).
		Int("evaluators", len(s.evaluators)).
		Int("findings", findings.Count()).
		Dur("duration", time.Since(started)).
		Msg("tier-1 analysis complete")

	return results
}

func patientIDOf(record *entities.MergedRecord, demographics *entities.PatientDemographics) string {
	if record != nil && record.PatientID != "" {
		return record.PatientID
	}
	if demographics != nil {
		return demographics.PatientID
	}
	return ""
}

// nonNil replaces nil slices so results always serialize as arrays.
func nonNil(f entities.Tier1Findings) entities.Tier1Findings {
	if f.LabFlags == nil {
		f.LabFlags = []entities.LabAbnormalFlag{}
	}
	if f.LabTrends == nil {
		f.LabTrends = []entities.LabTrend{}
	}
	if f.CareGaps == nil {
		f.CareGaps = []entities.CareGap{}
	}
	if f.DrugInteractions == nil {
		f.DrugInteractions = []entities.DrugInteraction{}
	}
	if f.SourceConflictAlerts == nil {
		f.SourceConflictAlerts = []entities.SourceConflictAlert{}
	}
	if f.VitalCorrelations == nil {
		f.VitalCorrelations = []entities.VitalCorrelation{}
	}
	return f
}

// Insights converts Tier-1 findings into display-ready insights, highest
// priority first. Within a priority, category order then title decide.
func Insights(results *entities.Tier1Results) []entities.HealthInsight {
	if results == nil {
		return []entities.HealthInsight{}
	}
	out := make([]entities.HealthInsight, 0, results.Count())

	for _, d := range results.DrugInteractions {
		summary := d.Mechanism
		if d.Recommendation != "" {
			summary = strings.TrimSpace(summary + " " + d.Recommendation)
		}
		out = append(out, entities.NewHealthInsight(
			entities.InsightCategoryDrugInteraction,
			priorityForSeverity(d.Severity),
			fmt.Sprintf("Possible interaction between %s and %s", d.MedicationA, d.MedicationB),
			summary,
			"interaction:"+d.MedicationA+"|"+d.MedicationB,
			true,
		))
	}

	for _, f := range results.LabFlags {
		out = append(out, entities.NewHealthInsight(
			entities.InsightCategoryLabAbnormality,
			priorityForSeverity(f.Severity),
			fmt.Sprintf("%s is %s", f.Name, f.Direction),
			labFlagSummary(f),
			"lab:"+f.ResultID,
			true,
		))
	}

	for _, g := range results.CareGaps {
		out = append(out, entities.NewHealthInsight(
			entities.InsightCategoryCareGap,
			entities.InsightPriorityModerate,
			g.Action+" may be due",
			g.Justification,
			"care_gap:"+g.RuleID,
			true,
		))
	}

	for _, c := range results.SourceConflictAlerts {
		subject := strings.ReplaceAll(c.Domain, "_", " ")
		out = append(out, entities.NewHealthInsight(
			entities.InsightCategorySourceConflict,
			entities.InsightPriorityModerate,
			"Your records disagree about a "+subject,
			strings.TrimSpace(c.Message+" "+c.RecommendedAction),
			"conflict:"+c.ConflictID,
			true,
		))
	}

	for _, t := range results.LabTrends {
		priority := entities.InsightPriorityLow
		if t.Direction == entities.TrendWorsening {
			priority = entities.InsightPriorityModerate
		}
		out = append(out, entities.NewHealthInsight(
			entities.InsightCategoryLabTrend,
			priority,
			fmt.Sprintf("%s is %s", t.Name, t.Direction),
			trendSummary(t),
			"trend:"+t.AnalyteKey,
			t.Direction == entities.TrendWorsening,
		))
	}

	for _, v := range results.VitalCorrelations {
		out = append(out, entities.NewHealthInsight(
			entities.InsightCategoryVitalCorrelation,
			entities.InsightPriorityLow,
			fmt.Sprintf("Your %s changed after a change to %s", rules.VitalLabel(v.VitalType), v.MedicationName),
			v.Summary,
			"vital:"+v.VitalType+"|"+v.MedicationID,
			false,
		))
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if a.Category.Order() != b.Category.Order() {
			return a.Category.Order() < b.Category.Order()
		}
		return a.Title < b.Title
	})
	return out
}

func priorityForSeverity(s entities.Severity) entities.InsightPriority {
	switch s {
	case entities.SeverityCritical:
		return entities.InsightPriorityCritical
	case entities.SeveritySevere:
		return entities.InsightPriorityHigh
	case entities.SeverityModerate:
		return entities.InsightPriorityModerate
	}
	return entities.InsightPriorityLow
}

func labFlagSummary(f entities.LabAbnormalFlag) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s result was %s", f.Name, withUnit(f.Value, f.Unit))
	if f.ObservedAt != nil {
		fmt.Fprintf(&b, " on %s", f.ObservedAt.Format("January 2, 2006"))
	}
	if f.Direction == "high" {
		b.WriteString(", above")
	} else {
		b.WriteString(", below")
	}
	b.WriteString(" the reference range")
	switch {
	case f.ReferenceLow != nil && f.ReferenceHigh != nil:
		fmt.Fprintf(&b, " of %s to %s", formatNumber(*f.ReferenceLow), withUnit(*f.ReferenceHigh, f.Unit))
	case f.ReferenceHigh != nil:
		fmt.Fprintf(&b, " of up to %s", withUnit(*f.ReferenceHigh, f.Unit))
	case f.ReferenceLow != nil:
		fmt.Fprintf(&b, " of at least %s", withUnit(*f.ReferenceLow, f.Unit))
	}
	b.WriteString(".")
	return b.String()
}

func trendSummary(t entities.LabTrend) string {
	first, last := t.Earliest(), t.Latest()
	return fmt.Sprintf("Your %s went from %s on %s to %s on %s across %d results.",
		t.Name,
		withUnit(first.Value, t.Unit), first.ObservedAt.Format("January 2, 2006"),
		withUnit(last.Value, t.Unit), last.ObservedAt.Format("January 2, 2006"),
		len(t.Points))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func withUnit(v float64, unit string) string {
	if unit == "" {
		return formatNumber(v)
	}
	return formatNumber(v) + " " + unit
}
