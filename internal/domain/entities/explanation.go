package entities

import (
	"time"

	"github.com/zatekoja/patientinsights/internal/evaluation"
)

// ResourceType is the kind of record item a Tier-3 explanation is about.
type ResourceType string

const (
	ResourceTypeLabResult    ResourceType = "lab_result"
	ResourceTypeMedication   ResourceType = "medication"
	ResourceTypeCondition    ResourceType = "condition"
	ResourceTypeVital        ResourceType = "vital"
	ResourceTypeImmunization ResourceType = "immunization"
	ResourceTypeFinding      ResourceType = "finding"
	ResourceTypeTopic        ResourceType = "topic"
)

// HealthExplanation is a plain-language explanation of one resource or topic.
type HealthExplanation struct {
	ResourceType ResourceType               `json:"resource_type"`
	ResourceID   string                     `json:"resource_id,omitempty"`
	Topic        string                     `json:"topic"`
	Output       evaluation.GuardedAIOutput `json:"output"`
	GeneratedAt  time.Time                  `json:"generated_at"`
}

// DoctorQuestion is a suggested question for the next clinician visit.
type DoctorQuestion struct {
	Topic    string                     `json:"topic"`
	Question evaluation.GuardedAIOutput `json:"question"`
}
