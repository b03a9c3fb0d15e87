package handlers

import (
	"bytes"
	"context"
	"net/http"

	"github.com/zatekoja/patientinsights/internal/application/services"
	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/export"
	apperrors "github.com/zatekoja/patientinsights/pkg/errors"
)

// ReportBuilder produces a pre-visit report for one record.
type ReportBuilder interface {
	Build(ctx context.Context, opts services.ReportOptions) *entities.PreVisitReport
}

type reportRequest struct {
	recordRequest
	Topics            []string `json:"topics,omitempty" validate:"max=10,dive,required,max=200"`
	IncludeNarratives *bool    `json:"include_narratives,omitempty"`
	IncludeQuestions  *bool    `json:"include_questions,omitempty"`
}

// ReportHandler serves pre-visit reports in JSON, Markdown or HTML.
type ReportHandler struct {
	reports ReportBuilder
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports ReportBuilder) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// PreVisit handles POST /api/v1/reports/pre-visit?format=json|markdown|html
func (h *ReportHandler) PreVisit(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondWithAppError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	var req reportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	report := h.reports.Build(r.Context(), services.ReportOptions{
		Record:            req.Record,
		Demographics:      req.Demographics,
		Topics:            req.Topics,
		IncludeNarratives: req.IncludeNarratives,
		IncludeQuestions:  req.IncludeQuestions,
	})

	var buf bytes.Buffer
	if err := export.Write(&buf, report, format); err != nil {
		respondWithAppError(w, r, apperrors.NewInternalError("failed to render report", err))
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
