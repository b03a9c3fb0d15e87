package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/domain/providers"
	"github.com/zatekoja/patientinsights/internal/evaluation"
	"github.com/zatekoja/patientinsights/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/patientinsights/pkg/errors"
	"github.com/zatekoja/patientinsights/pkg/fingerprint"
)

var (
	// ErrNarrativeUnavailable is returned when a narrative could not be
	// generated. It wraps the underlying model error.
	ErrNarrativeUnavailable = errors.New("narrative unavailable")
)

// ModelCallConfig bounds every model call made by the Tier-2 and Tier-3 services.
type ModelCallConfig struct {
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

func (c ModelCallConfig) withDefaults() ModelCallConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 600
	}
	return c
}

// NarrativeRequest asks for one narrative kind. Analyte is required for
// lab_trend.
type NarrativeRequest struct {
	Kind    entities.NarrativeKind
	Analyte string
	Record  *entities.MergedRecord
	Results *entities.Tier1Results
}

// NarrativeService produces Tier-2 narratives. A narrative is generated at
// most once per input fingerprint: cache hits return without a model call
// and concurrent misses for the same key share one call.
type NarrativeService struct {
	model      providers.ModelProvider
	cache      *NarrativeCache
	guardrails *evaluation.Guardrails
	config     ModelCallConfig
	flight     singleflight.Group
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewNarrativeService creates a narrative service.
func NewNarrativeService(
	model providers.ModelProvider,
	cache *NarrativeCache,
	guardrails *evaluation.Guardrails,
	config ModelCallConfig,
) *NarrativeService {
	return &NarrativeService{
		model:      model,
		cache:      cache,
		guardrails: guardrails,
		config:     config.withDefaults(),
		now:        time.Now,
	}
}

// SetMetrics attaches otel instruments.
func (s *NarrativeService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// SetClock replaces the clock used for timestamps and medication status.
func (s *NarrativeService) SetClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Cache returns the narrative cache owned by the service.
func (s *NarrativeService) Cache() *NarrativeCache {
	return s.cache
}

// Generate produces the narrative named by req.Kind.
func (s *NarrativeService) Generate(ctx context.Context, req NarrativeRequest) (entities.NarrativeResult, error) {
	switch req.Kind {
	case entities.NarrativeKindLabTrend:
		if req.Analyte == "" {
			return entities.NarrativeResult{}, apperrors.NewValidationError("analyte is required for lab_trend narratives")
		}
		trend, ok := req.Results.TrendFor(req.Analyte)
		if !ok {
			return entities.NarrativeResult{}, apperrors.NotFoundf("no lab trend for analyte %q", req.Analyte)
		}
		return s.LabTrend(ctx, req.Results.PatientID, trend, flagsForTrend(req.Results, trend))
	case entities.NarrativeKindHealthSnapshot:
		return s.HealthSnapshot(ctx, req.Results)
	case entities.NarrativeKindMedicationSummary:
		return s.MedicationSummary(ctx, req.Record, req.Results)
	default:
		return entities.NarrativeResult{}, apperrors.Validationf("unknown narrative kind: %q", req.Kind)
	}
}

// LabTrend narrates a single analyte trend.
func (s *NarrativeService) LabTrend(ctx context.Context, patientID string, trend entities.LabTrend, flags []entities.LabAbnormalFlag) (entities.NarrativeResult, error) {
	input := labTrendInput{Trend: trend, Flags: flags}
	return s.narrate(ctx, narrationJob{
		patientID:   patientID,
		kind:        entities.NarrativeKindLabTrend,
		subject:     trend.AnalyteKey,
		input:       input,
		instruction: labTrendInstruction,
		actionable:  trend.Direction == entities.TrendWorsening || len(flags) > 0,
	})
}

// HealthSnapshot narrates the whole Tier-1 result.
func (s *NarrativeService) HealthSnapshot(ctx context.Context, results *entities.Tier1Results) (entities.NarrativeResult, error) {
	if results == nil {
		return entities.NarrativeResult{}, apperrors.NewValidationError("tier-1 results are required for a health snapshot")
	}
	input := healthSnapshotInput{Findings: results.Tier1Findings}
	return s.narrate(ctx, narrationJob{
		patientID:   results.PatientID,
		kind:        entities.NarrativeKindHealthSnapshot,
		input:       input,
		instruction: healthSnapshotInstruction,
		actionable:  len(results.DrugInteractions) > 0 || len(results.CareGaps) > 0 || len(results.LabFlags) > 0,
	})
}

// MedicationSummary narrates the active medication list and its interactions.
func (s *NarrativeService) MedicationSummary(ctx context.Context, record *entities.MergedRecord, results *entities.Tier1Results) (entities.NarrativeResult, error) {
	input := medicationSummaryInput{Medications: activeMedicationLines(record, s.now())}
	if results != nil {
		input.Interactions = results.DrugInteractions
	}
	return s.narrate(ctx, narrationJob{
		patientID:   patientIDOf(record, nil),
		kind:        entities.NarrativeKindMedicationSummary,
		input:       input,
		instruction: medicationSummaryInstruction,
		actionable:  len(input.Interactions) > 0,
	})
}

// GenerateAll produces every applicable narrative concurrently. A failed
// narrative is reported as unavailable and never fails the whole set.
func (s *NarrativeService) GenerateAll(ctx context.Context, record *entities.MergedRecord, results *entities.Tier1Results) *entities.Tier2Results {
	type task struct {
		kind    entities.NarrativeKind
		subject string
		run     func(context.Context) (entities.NarrativeResult, error)
	}

	tasks := []task{
		{kind: entities.NarrativeKindHealthSnapshot, run: func(ctx context.Context) (entities.NarrativeResult, error) {
			return s.HealthSnapshot(ctx, results)
		}},
		{kind: entities.NarrativeKindMedicationSummary, run: func(ctx context.Context) (entities.NarrativeResult, error) {
			return s.MedicationSummary(ctx, record, results)
		}},
	}
	if results != nil {
		for _, trend := range results.LabTrends {
			if trend.Direction == entities.TrendStable {
				continue
			}
			tasks = append(tasks, task{kind: entities.NarrativeKindLabTrend, subject: trend.AnalyteKey, run: func(ctx context.Context) (entities.NarrativeResult, error) {
				return s.LabTrend(ctx, results.PatientID, trend, flagsForTrend(results, trend))
			}})
		}
	}

	out := &entities.Tier2Results{
		PatientID:  patientIDOf(record, nil),
		Narratives: make([]entities.NarrativeResult, len(tasks)),
	}
	if out.PatientID == "" && results != nil {
		out.PatientID = results.PatientID
	}

	var g errgroup.Group
	g.SetLimit(4)
	for i, t := range tasks {
		g.Go(func() error {
			result, err := t.run(ctx)
			if err != nil {
				observability.LoggerFromContext(ctx).Warn().
					Err(err).
					Str("patient_id", out.PatientID).
					Str("kind", string(t.kind)).
					Msg("narrative unavailable")
				result = entities.UnavailableNarrative(t.kind, t.subject)
			}
			out.Narratives[i] = result
			return nil
		})
	}
	_ = g.Wait()

	return out
}

type narrationJob struct {
	patientID   string
	kind        entities.NarrativeKind
	subject     string
	input       any
	instruction string
	actionable  bool
}

func (s *NarrativeService) narrate(ctx context.Context, job narrationJob) (entities.NarrativeResult, error) {
	fp, err := fingerprint.Of(job.kind, job.input)
	if err != nil {
		return entities.NarrativeResult{}, apperrors.NewInternalError("failed to fingerprint narrative input", err)
	}
	key := NarrativeKey(job.patientID, job.kind, fp)
	logger := observability.LoggerFromContext(ctx).With().
		Str("patient_id", job.patientID).
		Str("kind", string(job.kind)).
		Str("fingerprint", fingerprint.Short(fp, 12)).
		Logger()

	cached, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		observability.RecordCacheHit(ctx, s.metrics, string(job.kind))
		return entities.NarrativeFromCached(cached, true), nil
	case errors.Is(err, providers.ErrCacheMiss):
		observability.RecordCacheMiss(ctx, s.metrics, string(job.kind))
	default:
		observability.RecordCacheMiss(ctx, s.metrics, string(job.kind))
		logger.Warn().Err(err).Msg("narrative cache read failed, generating")
	}

	ch := s.flight.DoChan(key, func() (any, error) {
		return s.produce(context.WithoutCancel(ctx), key, fp, job)
	})

	select {
	case <-ctx.Done():
		return entities.UnavailableNarrative(job.kind, job.subject), fmt.Errorf("%w: %w", ErrNarrativeUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return entities.UnavailableNarrative(job.kind, job.subject), fmt.Errorf("%w: %w", ErrNarrativeUnavailable, res.Err)
		}
		logger.Debug().Bool("shared", res.Shared).Msg("narrative generated")
		return entities.NarrativeFromCached(res.Val.(*entities.CachedNarrative), false), nil
	}
}

// produce runs once per key at a time, on a context detached from any
// single caller.
func (s *NarrativeService) produce(ctx context.Context, key, fp string, job narrationJob) (*entities.CachedNarrative, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "narrative.generate")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("narrative.kind", string(job.kind)),
		attribute.String("narrative.fingerprint", fingerprint.Short(fp, 12)),
	)

	// A caller that missed just before another flight stored the entry.
	if cached, err := s.cache.peek(ctx, key); err == nil {
		return cached, nil
	}

	prompt, err := buildPrompt(job.instruction, job.input)
	if err != nil {
		return nil, err
	}

	oc := evaluation.OutputContext{Kind: job.kind.OutputKind(), Topic: job.subject, Actionable: job.actionable}
	output, err := completeGuarded(ctx, s.model, s.guardrails, s.config, prompt, oc, s.metrics)
	s.cache.recordModelCall()
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	narrative := &entities.CachedNarrative{
		Key:         key,
		Fingerprint: fp,
		PatientID:   job.patientID,
		Kind:        job.kind,
		Subject:     job.subject,
		Output:      output,
		CreatedAt:   s.now().UTC(),
	}

	if output.Declined() {
		return narrative, nil
	}
	if err := s.cache.Store(ctx, narrative); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("patient_id", job.patientID).Msg("failed to cache narrative")
	}
	return narrative, nil
}

// completeGuarded calls the model and passes its text through the guardrail.
// A declined request yields the declined fallback output; any other failure
// is returned wrapped in providers.ErrModelUnavailable.
func completeGuarded(
	ctx context.Context,
	model providers.ModelProvider,
	guardrails *evaluation.Guardrails,
	config ModelCallConfig,
	prompt string,
	oc evaluation.OutputContext,
	metrics *observability.Metrics,
) (evaluation.GuardedAIOutput, error) {
	resp, err := model.Complete(ctx, providers.ModelRequest{
		Prompt:         prompt,
		SystemPreamble: providers.SafetyPreamble,
		MaxTokens:      config.MaxTokens,
		Temperature:    config.Temperature,
	})
	if err != nil {
		if errors.Is(err, providers.ErrModelDeclined) {
			observability.RecordGuardrailIntervention(ctx, metrics, string(oc.Kind), []string{"declined"})
			return guardrails.FilterDeclined(oc), nil
		}
		if !errors.Is(err, providers.ErrModelUnavailable) {
			err = fmt.Errorf("%w: %w", providers.ErrModelUnavailable, err)
		}
		return evaluation.GuardedAIOutput{}, apperrors.NewExternalError("language model call failed", err)
	}

	output := guardrails.Filter(resp.Text, oc)
	if output.WasModified() {
		violations := output.Violations()
		names := make([]string, 0, len(violations))
		for _, v := range violations {
			names = append(names, string(v))
		}
		observability.RecordGuardrailIntervention(ctx, metrics, string(oc.Kind), names)
	}
	return output, nil
}
