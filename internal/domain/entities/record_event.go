package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RecordEventType represents the type of merged record event
type RecordEventType string

const (
	RecordEventTypeUpdated     RecordEventType = "record_updated"
	RecordEventTypeReconciled  RecordEventType = "record_reconciled"
	RecordEventTypeInvalidated RecordEventType = "record_invalidated"
)

// RecordEvent is published by the reconciliation layer when a patient's
// merged record changes.
type RecordEvent struct {
	ID        string          `json:"id"`
	PatientID string          `json:"patient_id"`
	EventType RecordEventType `json:"event_type"`
	Domains   []string        `json:"domains,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewRecordEvent creates a new record event
func NewRecordEvent(patientID string, eventType RecordEventType, domains []string) *RecordEvent {
	return &RecordEvent{
		ID:        uuid.NewString(),
		PatientID: patientID,
		EventType: eventType,
		Domains:   domains,
		Timestamp: time.Now().UTC(),
	}
}

// IsValid checks if the event type is one of the defined constants.
func (t RecordEventType) IsValid() bool {
	switch t {
	case RecordEventTypeUpdated, RecordEventTypeReconciled, RecordEventTypeInvalidated:
		return true
	}
	return false
}

// Validate rejects events a subscriber cannot act on.
func (e *RecordEvent) Validate() error {
	if e.PatientID == "" {
		return errors.New("record event has no patient_id")
	}
	if !e.EventType.IsValid() {
		return errors.New("record event has unknown event_type " + string(e.EventType))
	}
	return nil
}
