package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/patientinsights/internal/application/services"
	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// Explainer answers Tier-3 requests.
type Explainer interface {
	Explain(ctx context.Context, req services.ExplanationRequest) (*entities.HealthExplanation, error)
	GenerateQuestions(ctx context.Context, req services.QuestionsRequest) ([]entities.DoctorQuestion, error)
}

type questionsRequest struct {
	PatientID    string                        `json:"patient_id"`
	Topics       []string                      `json:"topics"`
	Record       *entities.MergedRecord        `json:"record,omitempty"`
	Demographics *entities.PatientDemographics `json:"demographics,omitempty"`
}

type questionsResponse struct {
	PatientID string                    `json:"patient_id,omitempty"`
	Questions []entities.DoctorQuestion `json:"questions"`
	Count     int                       `json:"count"`
}

// ExplanationHandler serves uncached, on-demand explanations and questions.
type ExplanationHandler struct {
	analyzer  Analyzer
	explainer Explainer
}

// NewExplanationHandler creates a new explanation handler
func NewExplanationHandler(analyzer Analyzer, explainer Explainer) *ExplanationHandler {
	return &ExplanationHandler{analyzer: analyzer, explainer: explainer}
}

// Explain handles POST /api/v1/explanations
func (h *ExplanationHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var req services.ExplanationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if req.PatientID == "" && req.Record != nil {
		req.PatientID = req.Record.PatientID
	}

	explanation, err := h.explainer.Explain(r.Context(), req)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, explanation)
}

// Questions handles POST /api/v1/questions. With no topics, the record's
// highest-priority insights are used.
func (h *ExplanationHandler) Questions(w http.ResponseWriter, r *http.Request) {
	var req questionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	q := services.QuestionsRequest{PatientID: req.PatientID, Topics: req.Topics}
	if req.Record != nil {
		q.Results = h.analyzer.Analyze(req.Record, req.Demographics)
		if q.PatientID == "" {
			q.PatientID = q.Results.PatientID
		}
	}

	questions, err := h.explainer.GenerateQuestions(r.Context(), q)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, questionsResponse{
		PatientID: q.PatientID,
		Questions: questions,
		Count:     len(questions),
	})
}
