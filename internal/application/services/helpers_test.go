package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zatekoja/patientinsights/internal/adapters/cache"
	"github.com/zatekoja/patientinsights/internal/application/services"
	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/domain/providers"
	"github.com/zatekoja/patientinsights/internal/evaluation"
)

var fixedNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

const safeText = "Your hemoglobin A1c went from 6.1% to 7.2% over the past year."

// MockModel is a scripted ModelProvider. When gate is set, calls block until
// it is closed.
type MockModel struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	system  []string
	text    string
	err     error
	gate    chan struct{}
	entered chan struct{}
	respond func(prompt string) (string, error)
}

func NewMockModel(text string) *MockModel {
	return &MockModel{text: text}
}

func (m *MockModel) Complete(ctx context.Context, req providers.ModelRequest) (*providers.ModelResponse, error) {
	m.mu.Lock()
	m.calls++
	m.prompts = append(m.prompts, req.Prompt)
	m.system = append(m.system, req.SystemPreamble)
	text, err, gate, entered, respond := m.text, m.err, m.gate, m.entered, m.respond
	m.mu.Unlock()

	if respond != nil {
		text, err = respond(req.Prompt)
	}

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &providers.ModelResponse{Text: text, Model: "mock"}, nil
}

func (m *MockModel) SetResponse(text string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.err = err
}

// RespondWith computes each answer from the prompt.
func (m *MockModel) RespondWith(fn func(prompt string) (string, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respond = fn
}

// Block makes subsequent calls wait until the returned release func runs.
func (m *MockModel) Block() (entered <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	m.entered = make(chan struct{}, 64)
	gate := m.gate
	var once sync.Once
	return m.entered, func() { once.Do(func() { close(gate) }) }
}

func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// SystemPreambles returns the system preamble of every call so far.
func (m *MockModel) SystemPreambles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.system...)
}

func newGuardrails(t *testing.T) *evaluation.Guardrails {
	t.Helper()
	g, err := evaluation.NewGuardrails(evaluation.GuardrailConfig{})
	require.NoError(t, err)
	return g
}

func newNarrativeService(t *testing.T, model providers.ModelProvider) (*services.NarrativeService, *cache.MemoryAdapter) {
	t.Helper()
	store := cache.NewMemoryAdapter()
	svc := services.NewNarrativeService(model, services.NewNarrativeCache(store), newGuardrails(t), services.ModelCallConfig{Timeout: 5 * time.Second})
	svc.SetClock(func() time.Time { return fixedNow })
	return svc, store
}

func ptr[T any](v T) *T { return &v }

func day(year int, month time.Month, d int) *time.Time {
	t := time.Date(year, month, d, 9, 0, 0, 0, time.UTC)
	return &t
}

func a1cTrend() entities.LabTrend {
	return entities.LabTrend{
		AnalyteKey: "4548-4",
		Code:       "4548-4",
		Name:       "Hemoglobin A1c",
		Unit:       "%",
		Direction:  entities.TrendWorsening,
		Movement:   entities.MovementRising,
		Delta:      1.1,
		Points: []entities.TrendPoint{
			{ResultID: "lab-1", Value: 6.1, ObservedAt: *day(2024, time.June, 1)},
			{ResultID: "lab-2", Value: 7.2, ObservedAt: *day(2025, time.May, 20)},
		},
	}
}

func sampleRecord() *entities.MergedRecord {
	return &entities.MergedRecord{
		PatientID: "patient-1",
		Medications: []entities.MergedMedication{
			{ID: "med-1", Name: "Lisinopril 10 MG Oral Tablet", Ingredient: "lisinopril", Status: "active", StartedAt: day(2023, time.January, 10), Provenance: entities.Provenance{SourceSystem: "epic"}},
			{ID: "med-2", Name: "Spironolactone 25 MG Oral Tablet", Ingredient: "spironolactone", Status: "active", StartedAt: day(2024, time.March, 2), Provenance: entities.Provenance{SourceSystem: "cerner"}},
			{ID: "med-3", Name: "Amoxicillin 500 MG", Status: "completed", StartedAt: day(2022, time.April, 1)},
		},
		LabResults: []entities.MergedLabResult{
			{ID: "lab-1", Code: "4548-4", Name: "Hemoglobin A1c", Value: ptr(6.1), Unit: "%", ObservedAt: day(2024, time.June, 1), Provenance: entities.Provenance{SourceSystem: "epic"}},
			{ID: "lab-2", Code: "4548-4", Name: "Hemoglobin A1c", Value: ptr(7.2), Unit: "%", ObservedAt: day(2025, time.May, 20), Provenance: entities.Provenance{SourceSystem: "epic"}},
		},
		Conditions: []entities.MergedCondition{
			{ID: "cond-1", Name: "Type 2 diabetes mellitus", ClinicalStatus: "active"},
		},
	}
}

func sampleResults() *entities.Tier1Results {
	return &entities.Tier1Results{
		PatientID: "patient-1",
		Tier1Findings: entities.Tier1Findings{
			LabFlags: []entities.LabAbnormalFlag{{
				ResultID: "lab-2", Code: "4548-4", Name: "Hemoglobin A1c", Value: 7.2, Unit: "%",
				ReferenceHigh: ptr(5.6), Direction: "high", Severity: entities.SeverityModerate,
			}},
			LabTrends: []entities.LabTrend{a1cTrend()},
			CareGaps:  []entities.CareGap{},
			DrugInteractions: []entities.DrugInteraction{{
				MedicationA: "lisinopril", MedicationB: "spironolactone", MedicationIDs: []string{"med-1", "med-2"},
				Severity: entities.SeveritySevere, Mechanism: "Both raise potassium levels.",
			}},
			SourceConflictAlerts: []entities.SourceConflictAlert{},
			VitalCorrelations:    []entities.VitalCorrelation{},
		},
		AnalyzedAt: fixedNow,
	}
}
