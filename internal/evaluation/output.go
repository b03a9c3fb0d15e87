package evaluation

import (
	"encoding/json"
	"strings"
)

// OutputKind identifies what a piece of model text is for. It selects the
// disclaimer and fallback message.
type OutputKind string

const (
	OutputKindLabTrendNarrative OutputKind = "lab_trend_narrative"
	OutputKindHealthSnapshot    OutputKind = "health_snapshot"
	OutputKindMedicationSummary OutputKind = "medication_summary"
	OutputKindExplanation       OutputKind = "explanation"
	OutputKindDoctorQuestion    OutputKind = "doctor_question"
)

// OutputContext describes the request a piece of model text answers.
type OutputContext struct {
	Kind       OutputKind `json:"kind"`
	Topic      string     `json:"topic,omitempty"`
	Actionable bool       `json:"actionable,omitempty"`
}

// GuardedAIOutput is model text that has passed through Guardrails.Filter.
// The zero value is empty and carries no disclaimer; callers obtain real
// values only from the filter.
type GuardedAIOutput struct {
	body         string
	disclaimer   string
	callToAction string
	modified     bool
	declined     bool
	violations   []Violation
	context      OutputContext
}

// Body returns the screened text without disclaimer or call-to-action.
func (o GuardedAIOutput) Body() string { return o.body }

// Disclaimer returns the fixed disclaimer for the output's kind.
func (o GuardedAIOutput) Disclaimer() string { return o.disclaimer }

// CallToAction returns the provider-contact line, if one was appended.
func (o GuardedAIOutput) CallToAction() string { return o.callToAction }

// WasModified reports whether the filter replaced or rewrote the body.
func (o GuardedAIOutput) WasModified() bool { return o.modified }

// Declined reports whether the model refused to answer.
func (o GuardedAIOutput) Declined() bool { return o.declined }

// Context returns the context the output was filtered for.
func (o GuardedAIOutput) Context() OutputContext { return o.context }

// Violations returns the categories that triggered a replacement.
func (o GuardedAIOutput) Violations() []Violation {
	out := make([]Violation, len(o.violations))
	copy(out, o.violations)
	return out
}

// IsZero reports whether o was never produced by the filter.
func (o GuardedAIOutput) IsZero() bool {
	return o.body == "" && o.disclaimer == ""
}

// Text is the complete user-facing string.
func (o GuardedAIOutput) Text() string {
	parts := make([]string, 0, 3)
	if o.body != "" {
		parts = append(parts, o.body)
	}
	if o.disclaimer != "" {
		parts = append(parts, o.disclaimer)
	}
	if o.callToAction != "" {
		parts = append(parts, o.callToAction)
	}
	return strings.Join(parts, "\n\n")
}

type guardedAIOutputJSON struct {
	Text         string        `json:"text"`
	Body         string        `json:"body"`
	Disclaimer   string        `json:"disclaimer"`
	CallToAction string        `json:"call_to_action,omitempty"`
	WasModified  bool          `json:"was_modified"`
	Declined     bool          `json:"declined,omitempty"`
	Violations   []Violation   `json:"violations,omitempty"`
	Context      OutputContext `json:"context"`
}

// MarshalJSON implements json.Marshaler.
func (o GuardedAIOutput) MarshalJSON() ([]byte, error) {
	return json.Marshal(guardedAIOutputJSON{
		Text:         o.Text(),
		Body:         o.body,
		Disclaimer:   o.disclaimer,
		CallToAction: o.callToAction,
		WasModified:  o.modified,
		Declined:     o.declined,
		Violations:   o.violations,
		Context:      o.context,
	})
}

// UnmarshalJSON rehydrates an output previously produced by MarshalJSON,
// as read back from the narrative cache.
func (o *GuardedAIOutput) UnmarshalJSON(data []byte) error {
	var raw guardedAIOutputJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = GuardedAIOutput{
		body:         raw.Body,
		disclaimer:   raw.Disclaimer,
		callToAction: raw.CallToAction,
		modified:     raw.WasModified,
		declined:     raw.Declined,
		violations:   raw.Violations,
		context:      raw.Context,
	}
	return nil
}
