package rules

import (
	"time"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

var asOf = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func day(year int, month time.Month, d int) *time.Time {
	t := time.Date(year, month, d, 9, 0, 0, 0, time.UTC)
	return &t
}

func lab(id, code, name string, value float64, unit string, low, high *float64, at *time.Time) entities.MergedLabResult {
	return entities.MergedLabResult{
		ID:            id,
		Code:          code,
		Name:          name,
		Value:         ptr(value),
		Unit:          unit,
		ReferenceLow:  low,
		ReferenceHigh: high,
		ObservedAt:    at,
		Provenance:    entities.Provenance{SourceSystem: "epic"},
	}
}

func med(id, name, status string, started *time.Time) entities.MergedMedication {
	return entities.MergedMedication{
		ID:         id,
		Name:       name,
		Status:     status,
		StartedAt:  started,
		Provenance: entities.Provenance{SourceSystem: "epic"},
	}
}

func vital(id, vitalType string, value float64, unit string, at *time.Time) entities.MergedVital {
	return entities.MergedVital{ID: id, Type: vitalType, Value: ptr(value), Unit: unit, ObservedAt: at}
}

func patient(birth *time.Time, sex string) *entities.PatientDemographics {
	return &entities.PatientDemographics{PatientID: "p-1", BirthDate: birth, Sex: sex}
}
