package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// Narrative inputs are fingerprinted as-is; any field added here changes
// every cache key for that kind.

type labTrendInput struct {
	Trend entities.LabTrend          `json:"trend"`
	Flags []entities.LabAbnormalFlag `json:"flags,omitempty"`
}

type healthSnapshotInput struct {
	Findings entities.Tier1Findings `json:"findings"`
}

type medicationLine struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Dose      string     `json:"dose,omitempty"`
	Route     string     `json:"route,omitempty"`
	Frequency string     `json:"frequency,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

type medicationSummaryInput struct {
	Medications  []medicationLine           `json:"medications"`
	Interactions []entities.DrugInteraction `json:"interactions,omitempty"`
}

type explanationInput struct {
	ResourceType entities.ResourceType `json:"resource_type"`
	ResourceID   string                `json:"resource_id,omitempty"`
	Topic        string                `json:"topic"`
	Resource     any                   `json:"resource,omitempty"`
}

type questionInput struct {
	Topic   string `json:"topic"`
	Context string `json:"context,omitempty"`
}

const (
	labTrendInstruction = "Write a short, plain-language paragraph for a patient describing how this lab value has changed over time. " +
		"Describe the values and dates. Do not diagnose, do not suggest doses, and do not suggest starting or stopping medication."

	healthSnapshotInstruction = "Write a short, plain-language overview for a patient summarizing the findings below from their health records. " +
		"Mention the most important items first. Do not diagnose, do not suggest doses, and do not suggest starting or stopping medication."

	medicationSummaryInstruction = "Write a short, plain-language summary for a patient listing their current medications and any noted interactions. " +
		"Do not suggest doses and do not suggest starting, stopping or changing any medication."

	explanationInstruction = "Explain the following item from a patient's health record in plain language at about an eighth-grade reading level. " +
		"Describe what it is and why it is commonly measured or used. Do not diagnose and do not give treatment advice."

	questionInstruction = "Write one clear question the patient could ask their doctor at the next visit about the topic below. " +
		"Reply with the question only."
)

func buildPrompt(instruction string, data any) (string, error) {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt data: %w", err)
	}
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nRecord data (JSON):\n")
	b.Write(payload)
	return b.String(), nil
}

func activeMedicationLines(record *entities.MergedRecord, asOf time.Time) []medicationLine {
	if record == nil {
		return []medicationLine{}
	}
	lines := make([]medicationLine, 0, len(record.Medications))
	for _, m := range record.Medications {
		if !m.IsActive(asOf) {
			continue
		}
		lines = append(lines, medicationLine{
			ID:        m.ID,
			Name:      m.Name,
			Dose:      m.Dose,
			Route:     m.Route,
			Frequency: m.Frequency,
			StartedAt: m.StartedAt,
		})
	}
	return lines
}

func flagsForTrend(results *entities.Tier1Results, trend entities.LabTrend) []entities.LabAbnormalFlag {
	if results == nil {
		return nil
	}
	ids := make(map[string]struct{}, len(trend.Points))
	for _, p := range trend.Points {
		ids[p.ResultID] = struct{}{}
	}
	var flags []entities.LabAbnormalFlag
	for _, f := range results.LabFlags {
		if _, ok := ids[f.ResultID]; ok {
			flags = append(flags, f)
		}
	}
	return flags
}
