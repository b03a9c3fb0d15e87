package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zatekoja/patientinsights/internal/application/services"
	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/patientinsights/pkg/errors"
)

// NarrativeGenerator produces cached Tier-2 narratives.
type NarrativeGenerator interface {
	Generate(ctx context.Context, req services.NarrativeRequest) (entities.NarrativeResult, error)
	GenerateAll(ctx context.Context, record *entities.MergedRecord, results *entities.Tier1Results) *entities.Tier2Results
}

// PatientInvalidator drops every cached narrative for a patient.
type PatientInvalidator interface {
	InvalidatePatient(ctx context.Context, patientID string) (int, error)
}

// StatsSource reports narrative cache counters.
type StatsSource interface {
	Stats() services.CacheStats
}

type narrativeRequest struct {
	recordRequest
	Analyte string `json:"analyte,omitempty"`
}

// NarrativeHandler serves Tier-2 narratives and cache maintenance.
type NarrativeHandler struct {
	analyzer    Analyzer
	narratives  NarrativeGenerator
	invalidator PatientInvalidator
	stats       StatsSource
}

// NewNarrativeHandler creates a new narrative handler
func NewNarrativeHandler(analyzer Analyzer, narratives NarrativeGenerator, invalidator PatientInvalidator, stats StatsSource) *NarrativeHandler {
	return &NarrativeHandler{
		analyzer:    analyzer,
		narratives:  narratives,
		invalidator: invalidator,
		stats:       stats,
	}
}

// GenerateAll handles POST /api/v1/narratives
func (h *NarrativeHandler) GenerateAll(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	results := h.analyzer.Analyze(req.Record, req.Demographics)
	respondWithJSON(w, http.StatusOK, h.narratives.GenerateAll(r.Context(), req.Record, results))
}

// Generate handles POST /api/v1/narratives/{kind}
func (h *NarrativeHandler) Generate(w http.ResponseWriter, r *http.Request) {
	kind := entities.NarrativeKind(chi.URLParam(r, "kind"))
	if !kind.IsValid() {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("unknown narrative kind: %q", kind))
		return
	}

	var req narrativeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	results := h.analyzer.Analyze(req.Record, req.Demographics)
	narrative, err := h.narratives.Generate(r.Context(), services.NarrativeRequest{
		Kind:    kind,
		Analyte: strings.TrimSpace(req.Analyte),
		Record:  req.Record,
		Results: results,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, narrative)
}

// InvalidatePatient handles DELETE /api/v1/narratives/patients/{patientID}
func (h *NarrativeHandler) InvalidatePatient(w http.ResponseWriter, r *http.Request) {
	patientID := strings.TrimSpace(chi.URLParam(r, "patientID"))
	if patientID == "" {
		respondWithAppError(w, r, apperrors.NewValidationError("patient ID is required"))
		return
	}

	removed, err := h.invalidator.InvalidatePatient(r.Context(), patientID)
	if err != nil {
		respondWithAppError(w, r, apperrors.NewInternalError("failed to invalidate narratives", err))
		return
	}

	observability.LoggerFromContext(r.Context()).Info().
		Str("patient_id", patientID).
		Int("removed", removed).
		Msg("narratives invalidated")
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"removed":    removed,
	})
}

// CacheStats handles GET /api/v1/cache/stats
func (h *NarrativeHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.stats.Stats())
}
