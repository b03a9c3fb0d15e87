package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

func TestSourceConflicts_OneAlertPerConflict(t *testing.T) {
	e := NewSourceConflictEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{Conflicts: []entities.Conflict{
		{
			ID:          "c1",
			Domain:      "medication",
			Field:       "dose",
			Description: "Lisinopril",
			Values: []entities.ConflictValue{
				{Source: "SystemA", Value: "10mg"},
				{Source: "SystemB", Value: "20mg"},
			},
		},
	}}

	alerts := e.Evaluate(Input{Record: record, AsOf: asOf}).SourceConflictAlerts

	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, "c1", alert.ConflictID)
	assert.Contains(t, alert.Message, "SystemA reports 10mg")
	assert.Contains(t, alert.Message, "SystemB reports 20mg")
	assert.Equal(t, "Your records disagree about the dose of Lisinopril: SystemA reports 10mg; SystemB reports 20mg.", alert.Message)
	assert.Len(t, alert.SourceValues, 2)
	assert.Contains(t, alert.RecommendedAction, "doctor")
}

func TestSourceConflicts_PreservesOrderAndFallsBack(t *testing.T) {
	e := NewSourceConflictEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{Conflicts: []entities.Conflict{
		{ID: "c2", Domain: "allergy", Values: []entities.ConflictValue{{Source: "A", Value: "penicillin"}, {Source: "B"}}},
		{ID: "c3", Domain: "insurance_plan"},
	}}

	alerts := e.Evaluate(Input{Record: record, AsOf: asOf}).SourceConflictAlerts

	require.Len(t, alerts, 2)
	assert.Equal(t, "c2", alerts[0].ConflictID)
	assert.Contains(t, alerts[0].Message, "B reports no value")
	assert.Equal(t, DefaultPolicy().ConflictActions["allergy"], alerts[0].RecommendedAction)
	assert.Equal(t, "c3", alerts[1].ConflictID)
	assert.Equal(t, "Your records disagree about insurance plan.", alerts[1].Message)
	assert.Equal(t, DefaultPolicy().ConflictActions["default"], alerts[1].RecommendedAction)
}

func TestSourceConflicts_DoesNotAliasInput(t *testing.T) {
	e := NewSourceConflictEvaluator(DefaultPolicy())
	record := &entities.MergedRecord{Conflicts: []entities.Conflict{
		{ID: "c1", Domain: "medication", Values: []entities.ConflictValue{{Source: "A", Value: "1"}, {Source: "B", Value: "2"}}},
	}}

	alerts := e.Evaluate(Input{Record: record, AsOf: asOf}).SourceConflictAlerts
	alerts[0].SourceValues[0].Value = "changed"

	assert.Equal(t, "1", record.Conflicts[0].Values[0].Value)
}
