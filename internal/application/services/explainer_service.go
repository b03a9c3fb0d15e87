package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
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

// ErrExplanationUnavailable is returned when a Tier-3 answer could not be
// generated. It wraps the underlying model error.
var ErrExplanationUnavailable = errors.New("explanation unavailable")

// derivedQuestionTopics caps the topics taken from insights when none are given.
const derivedQuestionTopics = 5

var requestValidator = validator.New()

// ExplanationRequest asks for a plain-language explanation of one record
// item or a free topic.
type ExplanationRequest struct {
	PatientID    string                 `json:"patient_id"`
	ResourceType entities.ResourceType  `json:"resource_type" validate:"required,oneof=lab_result medication condition vital immunization finding topic"`
	ResourceID   string                 `json:"resource_id"`
	Topic        string                 `json:"topic" validate:"required_if=ResourceType topic,required_if=ResourceType finding,max=200"`
	Record       *entities.MergedRecord `json:"record,omitempty"`
}

// QuestionsRequest asks for doctor-visit questions, one per topic. With no
// topics the highest-priority insights are used.
type QuestionsRequest struct {
	PatientID string                 `json:"patient_id"`
	Topics    []string               `json:"topics" validate:"max=10,dive,required,max=200"`
	Results   *entities.Tier1Results `json:"results,omitempty"`
}

// ExplainerService answers Tier-3 requests. Answers are never cached;
// identical concurrent requests share one model call.
type ExplainerService struct {
	model      providers.ModelProvider
	guardrails *evaluation.Guardrails
	config     ModelCallConfig
	flight     singleflight.Group
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewExplainerService creates an explainer.
func NewExplainerService(model providers.ModelProvider, guardrails *evaluation.Guardrails, config ModelCallConfig) *ExplainerService {
	return &ExplainerService{
		model:      model,
		guardrails: guardrails,
		config:     config.withDefaults(),
		now:        time.Now,
	}
}

// SetMetrics attaches otel instruments.
func (s *ExplainerService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// SetClock replaces the clock used for GeneratedAt.
func (s *ExplainerService) SetClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Explain explains one record item or topic.
func (s *ExplainerService) Explain(ctx context.Context, req ExplanationRequest) (*entities.HealthExplanation, error) {
	if err := requestValidator.Struct(req); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	resource, topic, err := resolveResource(req)
	if err != nil {
		return nil, err
	}
	if req.Topic != "" {
		topic = req.Topic
	}

	input := explanationInput{
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Topic:        topic,
		Resource:     resource,
	}
	oc := evaluation.OutputContext{
		Kind:       evaluation.OutputKindExplanation,
		Topic:      topic,
		Actionable: req.ResourceType == entities.ResourceTypeFinding,
	}

	output, err := s.answer(ctx, "explain", req.PatientID, explanationInstruction, input, oc)
	if err != nil {
		return nil, err
	}
	return &entities.HealthExplanation{
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Topic:        topic,
		Output:       output,
		GeneratedAt:  s.now().UTC(),
	}, nil
}

// GenerateQuestions produces one guarded question per topic, in topic
// order. Topics whose generation failed are left out; an error is returned
// only when no question could be produced.
func (s *ExplainerService) GenerateQuestions(ctx context.Context, req QuestionsRequest) ([]entities.DoctorQuestion, error) {
	if err := requestValidator.Struct(req); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	topics := req.Topics
	contexts := make([]string, len(topics))
	if len(topics) == 0 {
		for _, insight := range Insights(req.Results) {
			if len(topics) == derivedQuestionTopics {
				break
			}
			topics = append(topics, insight.Title)
			contexts = append(contexts, insight.Summary)
		}
	}
	if len(topics) == 0 {
		return []entities.DoctorQuestion{}, nil
	}

	questions := make([]*entities.DoctorQuestion, len(topics))
	errs := make([]error, len(topics))

	var g errgroup.Group
	g.SetLimit(4)
	for i, topic := range topics {
		g.Go(func() error {
			input := questionInput{Topic: strings.TrimSpace(topic), Context: contexts[i]}
			oc := evaluation.OutputContext{Kind: evaluation.OutputKindDoctorQuestion, Topic: input.Topic}
			output, err := s.answer(ctx, "question", req.PatientID, questionInstruction, input, oc)
			if err != nil {
				errs[i] = err
				return nil
			}
			questions[i] = &entities.DoctorQuestion{Topic: input.Topic, Question: output}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]entities.DoctorQuestion, 0, len(topics))
	for _, q := range questions {
		if q != nil {
			out = append(out, *q)
		}
	}
	if len(out) == 0 {
		return nil, errors.Join(errs...)
	}
	if failed := len(topics) - len(out); failed > 0 {
		observability.LoggerFromContext(ctx).Warn().
			Str("patient_id", req.PatientID).
			Int("failed", failed).
			Msg("some doctor questions were unavailable")
	}
	return out, nil
}

// answer single-flights one Tier-3 model call. The caller is released as
// soon as its own context ends; the shared call keeps running on a
// detached context bounded by the model timeout.
func (s *ExplainerService) answer(ctx context.Context, prefix, patientID, instruction string, input any, oc evaluation.OutputContext) (evaluation.GuardedAIOutput, error) {
	fp, err := fingerprint.Of(prefix, patientID, input)
	if err != nil {
		return evaluation.GuardedAIOutput{}, apperrors.NewInternalError("failed to fingerprint request", err)
	}
	key := prefix + ":" + fp

	ch := s.flight.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Timeout)
		defer cancel()

		ctx, span := observability.StartSpan(ctx, "explainer."+prefix)
		defer span.End()
		observability.SetSpanAttributes(span, attribute.String("output.kind", string(oc.Kind)))

		prompt, err := buildPrompt(instruction, input)
		if err != nil {
			return nil, err
		}
		output, err := completeGuarded(ctx, s.model, s.guardrails, s.config, prompt, oc, s.metrics)
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		return output, nil
	})

	select {
	case <-ctx.Done():
		return evaluation.GuardedAIOutput{}, fmt.Errorf("%w: %w", ErrExplanationUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return evaluation.GuardedAIOutput{}, fmt.Errorf("%w: %w", ErrExplanationUnavailable, res.Err)
		}
		return res.Val.(evaluation.GuardedAIOutput), nil
	}
}

// resolveResource finds the referenced item in the record and returns it
// with a default topic.
func resolveResource(req ExplanationRequest) (any, string, error) {
	switch req.ResourceType {
	case entities.ResourceTypeTopic, entities.ResourceTypeFinding:
		return nil, req.Topic, nil
	}
	if req.ResourceID == "" {
		return nil, "", apperrors.NewValidationError("resource_id is required to explain a " + string(req.ResourceType))
	}
	if req.Record == nil {
		return nil, "", apperrors.NewValidationError("record is required to explain a " + string(req.ResourceType))
	}

	r := req.Record
	switch req.ResourceType {
	case entities.ResourceTypeLabResult:
		for _, lab := range r.LabResults {
			if lab.ID == req.ResourceID {
				return lab, lab.Name, nil
			}
		}
	case entities.ResourceTypeMedication:
		for _, med := range r.Medications {
			if med.ID == req.ResourceID {
				return med, med.Name, nil
			}
		}
	case entities.ResourceTypeCondition:
		for _, c := range r.Conditions {
			if c.ID == req.ResourceID {
				return c, c.Name, nil
			}
		}
	case entities.ResourceTypeVital:
		for _, v := range r.Vitals {
			if v.ID == req.ResourceID {
				return v, v.Type, nil
			}
		}
	case entities.ResourceTypeImmunization:
		for _, im := range r.Immunizations {
			if im.ID == req.ResourceID {
				return im, im.Name, nil
			}
		}
	}
	return nil, "", apperrors.NotFoundf("%s %s not found in record", req.ResourceType, req.ResourceID)
}
