package handlers

import (
	"net/http"

	"github.com/zatekoja/patientinsights/internal/application/services"
	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// Analyzer runs the Tier-1 rule evaluators.
type Analyzer interface {
	Analyze(record *entities.MergedRecord, demographics *entities.PatientDemographics) *entities.Tier1Results
}

// recordRequest is the common body of every record-driven endpoint.
type recordRequest struct {
	Record       *entities.MergedRecord       `json:"record" validate:"required"`
	Demographics *entities.PatientDemographics `json:"demographics,omitempty"`
}

type analysisResponse struct {
	Results  *entities.Tier1Results   `json:"results"`
	Insights []entities.HealthInsight `json:"insights"`
}

// AnalysisHandler serves deterministic Tier-1 analysis.
type AnalysisHandler struct {
	analyzer Analyzer
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analyzer Analyzer) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer}
}

// Analyze handles POST /api/v1/analysis
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	results := h.analyzer.Analyze(req.Record, req.Demographics)
	respondWithJSON(w, http.StatusOK, analysisResponse{
		Results:  results,
		Insights: services.Insights(results),
	})
}
