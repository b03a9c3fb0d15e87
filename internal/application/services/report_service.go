package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/evaluation"
	"github.com/zatekoja/patientinsights/internal/infrastructure/observability"
)

var reportNamespace = uuid.MustParse("0b6e1c55-2f4d-4f0e-8d9e-7a61c3b0f2a4")

// ReportInput collects whatever tiers have already been produced. Any of
// them may be absent.
type ReportInput struct {
	PatientID    string
	Demographics *entities.PatientDemographics
	Tier1        *entities.Tier1Results
	Tier2        *entities.Tier2Results
	Explanations []entities.HealthExplanation
	Questions    []entities.DoctorQuestion
	GeneratedAt  time.Time
}

// AssembleReport builds a pre-visit report from already-produced parts. It
// performs no I/O and makes no model calls; the same input always yields
// the same report.
func AssembleReport(in ReportInput) *entities.PreVisitReport {
	report := &entities.PreVisitReport{
		PatientID:    reportPatientID(in),
		GeneratedAt:  in.GeneratedAt.UTC(),
		Demographics: in.Demographics,
		Disclaimer:   evaluation.ReportDisclaimer,
	}
	report.ID = reportID(report.PatientID, report.GeneratedAt, in.Tier1)

	if age, ok := in.Demographics.AgeAt(in.GeneratedAt); ok {
		report.AgeYears = &age
	}

	if in.Tier1 != nil {
		analyzedAt := in.Tier1.AnalyzedAt
		report.AnalyzedAt = &analyzedAt
		report.Insights = Insights(in.Tier1)
		report.LabFlags = in.Tier1.LabFlags
		report.LabTrends = in.Tier1.LabTrends
		report.CareGaps = in.Tier1.CareGaps
		report.DrugInteractions = in.Tier1.DrugInteractions
		report.SourceConflictAlerts = in.Tier1.SourceConflictAlerts
		report.VitalCorrelations = in.Tier1.VitalCorrelations
	}

	for _, n := range in.Tier2.Ready() {
		report.Narratives = append(report.Narratives, entities.ReportNarrative{
			Kind:        n.Kind,
			Subject:     n.Subject,
			Text:        n.Output.Text(),
			WasModified: n.Output.WasModified(),
		})
	}

	for _, e := range in.Explanations {
		if e.Output.IsZero() {
			continue
		}
		report.Explanations = append(report.Explanations, entities.ReportExplanation{
			Topic: e.Topic,
			Text:  e.Output.Text(),
		})
	}

	for _, q := range in.Questions {
		if q.Question.IsZero() {
			continue
		}
		report.Questions = append(report.Questions, entities.ReportQuestion{
			Topic:        q.Topic,
			Question:     q.Question.Body(),
			Disclaimer:   q.Question.Disclaimer(),
			CallToAction: q.Question.CallToAction(),
		})
	}

	return report
}

// ReportOptions selects what goes into a freshly built report. Absent
// Include flags mean true.
type ReportOptions struct {
	Record            *entities.MergedRecord
	Demographics      *entities.PatientDemographics
	Topics            []string
	IncludeNarratives *bool
	IncludeQuestions  *bool
}

// ReportService produces every tier for one record and assembles the
// pre-visit report. Generated parts are best effort: a narrative or question
// that could not be produced is left out and the report is still returned.
type ReportService struct {
	analysis   *AnalysisService
	narratives *NarrativeService
	explainer  *ExplainerService
	now        func() time.Time
}

// NewReportService creates a report service. narratives and explainer may
// be nil, in which case reports carry Tier-1 content only.
func NewReportService(analysis *AnalysisService, narratives *NarrativeService, explainer *ExplainerService) *ReportService {
	return &ReportService{
		analysis:   analysis,
		narratives: narratives,
		explainer:  explainer,
		now:        time.Now,
	}
}

// SetClock replaces the clock used for the report timestamp.
func (s *ReportService) SetClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Build analyzes the record, generates the requested model content and
// assembles the report.
func (s *ReportService) Build(ctx context.Context, opts ReportOptions) *entities.PreVisitReport {
	results := s.analysis.Analyze(opts.Record, opts.Demographics)
	in := ReportInput{
		PatientID:    results.PatientID,
		Demographics: opts.Demographics,
		Tier1:        results,
		GeneratedAt:  s.now(),
	}

	if enabled(opts.IncludeNarratives) && s.narratives != nil {
		in.Tier2 = s.narratives.GenerateAll(ctx, opts.Record, results)
	}
	if enabled(opts.IncludeQuestions) && s.explainer != nil {
		questions, err := s.explainer.GenerateQuestions(ctx, QuestionsRequest{
			PatientID: results.PatientID,
			Topics:    opts.Topics,
			Results:   results,
		})
		if err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).
				Str("patient_id", results.PatientID).
				Msg("report built without doctor questions")
		} else {
			in.Questions = questions
		}
	}

	return AssembleReport(in)
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}

func reportPatientID(in ReportInput) string {
	switch {
	case in.PatientID != "":
		return in.PatientID
	case in.Tier1 != nil && in.Tier1.PatientID != "":
		return in.Tier1.PatientID
	case in.Tier2 != nil && in.Tier2.PatientID != "":
		return in.Tier2.PatientID
	case in.Demographics != nil:
		return in.Demographics.PatientID
	}
	return ""
}

func reportID(patientID string, generatedAt time.Time, tier1 *entities.Tier1Results) string {
	seed := patientID + "|" + generatedAt.Format(time.RFC3339Nano)
	if tier1 != nil {
		seed += "|" + tier1.AnalyzedAt.UTC().Format(time.RFC3339Nano)
	}
	return uuid.NewSHA1(reportNamespace, []byte(seed)).String()
}
