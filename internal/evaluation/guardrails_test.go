package evaluation

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuardrails(t *testing.T, config GuardrailConfig) *Guardrails {
	t.Helper()
	g, err := NewGuardrails(config)
	require.NoError(t, err)
	return g
}

func TestGuardrails_BlocksDiagnosisLanguage(t *testing.T) {
	g := newTestGuardrails(t, GuardrailConfig{})
	raw := "Based on these numbers, you have type 2 diabetes."

	out := g.Filter(raw, OutputContext{Kind: OutputKindExplanation})

	assert.True(t, out.WasModified())
	assert.Equal(t, FallbackMessage(OutputKindExplanation), out.Body())
	assert.Equal(t, Disclaimer(OutputKindExplanation), out.Disclaimer())
	assert.Contains(t, out.Text(), Disclaimer(OutputKindExplanation))
	assert.NotContains(t, out.Text(), "type 2 diabetes")
	assert.Equal(t, []Violation{ViolationDiagnosis}, out.Violations())
}

func TestGuardrails_ScreenCategories(t *testing.T) {
	g := newTestGuardrails(t, GuardrailConfig{})

	tests := []struct {
		name string
		text string
		want []Violation
	}{
		{"safe", "Your cholesterol has gone down since last spring.", nil},
		{"empty", "   ", []Violation{ViolationEmpty}},
		{"confirms", "These results confirm that you have an infection.", []Violation{ViolationDiagnosis}},
		{"dosing", "Take 500 mg twice a day with food.", []Violation{ViolationDosing}},
		{"medication change", "You should stop taking your lisinopril.", []Violation{ViolationMedicationChange}},
		{"out of scope", "As an AI language model I cannot see you.", []Violation{ViolationOutOfScope}},
		{"discourages care", "There is no need to see your doctor about this.", []Violation{ViolationOutOfScope}},
		{"dose and stop", "Stop taking your statin and take 20 mg of aspirin.", []Violation{ViolationDosing, ViolationMedicationChange}},
		{"condition adjective", "You are diabetic.", []Violation{ViolationDiagnosis}},
		{"contraction", "You're probably hypertensive.", []Violation{ViolationDiagnosis}},
		{"plain-language condition", "You have high blood pressure.", []Violation{ViolationDiagnosis}},
		{"prediabetes", "You have prediabetes.", []Violation{ViolationDiagnosis}},
		{"consistent with", "Your results are consistent with chronic kidney disease.", []Violation{ViolationDiagnosis}},
		{"unit-less dosing", "Take two tablets every morning.", []Violation{ViolationDosing}},
		{"reading mention", "Your blood pressure readings were higher in March than in January.", nil},
		{"no signs", "Your records show no signs of infection.", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Screen(tt.text))
		})
	}
}

func TestGuardrails_SafeTextPassesThrough(t *testing.T) {
	g := newTestGuardrails(t, GuardrailConfig{})
	raw := "Your A1C readings have moved from 7.9 to 6.8 over the past year."

	out := g.Filter(raw, OutputContext{Kind: OutputKindLabTrendNarrative})

	assert.False(t, out.WasModified())
	assert.Equal(t, raw, out.Body())
	assert.Empty(t, out.CallToAction())
	assert.Empty(t, out.Violations())
	assert.Equal(t, raw+"\n\n"+Disclaimer(OutputKindLabTrendNarrative), out.Text())
}

func TestGuardrails_CallToActionForActionableContent(t *testing.T) {
	g := newTestGuardrails(t, GuardrailConfig{})

	out := g.Filter("Two of your medicines are listed as having a known interaction.", OutputContext{Kind: OutputKindMedicationSummary})
	assert.Equal(t, ProviderCallToAction, out.CallToAction())

	out = g.Filter("Your blood pressure has been steady.", OutputContext{Kind: OutputKindHealthSnapshot, Actionable: true})
	assert.Equal(t, ProviderCallToAction, out.CallToAction())
	assert.True(t, strings.HasSuffix(out.Text(), ProviderCallToAction))
}

func TestGuardrails_StripsFences(t *testing.T) {
	g := newTestGuardrails(t, GuardrailConfig{})

	out := g.Filter("```markdown\nYour potassium is steady.\n```", OutputContext{Kind: OutputKindHealthSnapshot})

	assert.True(t, out.WasModified())
	assert.Equal(t, "Your potassium is steady.", out.Body())
}

func TestGuardrails_ClampsLongOutput(t *testing.T) {
	g := newTestGuardrails(t, GuardrailConfig{MaxOutputChars: 60})
	raw := "Your kidney function has been steady. Your sodium has been steady too and nothing else changed."

	out := g.Filter(raw, OutputContext{Kind: OutputKindHealthSnapshot})

	assert.True(t, out.WasModified())
	assert.Equal(t, "Your kidney function has been steady.", out.Body())
}

func TestGuardrails_ClampsAtWordBoundary(t *testing.T) {
	g := newTestGuardrails(t, GuardrailConfig{MaxOutputChars: 20})

	out := g.Filter("one two three four five six seven", OutputContext{Kind: OutputKindHealthSnapshot})

	assert.Equal(t, "one two three four...", out.Body())
}

func TestGuardrails_ExtraPatterns(t *testing.T) {
	g := newTestGuardrails(t, GuardrailConfig{
		ExtraPatterns: map[Violation][]string{ViolationOutOfScope: {`\bhoroscope\b`}},
	})

	assert.Equal(t, []Violation{ViolationOutOfScope}, g.Screen("Your horoscope suggests rest."))
}

func TestNewGuardrails_RejectsBadPatterns(t *testing.T) {
	_, err := NewGuardrails(GuardrailConfig{ExtraPatterns: map[Violation][]string{ViolationDosing: {`(`}}})
	assert.Error(t, err)

	_, err = NewGuardrails(GuardrailConfig{ExtraPatterns: map[Violation][]string{"made_up": {`x`}}})
	assert.Error(t, err)
}

func TestGuardrails_FilterDeclined(t *testing.T) {
	g := newTestGuardrails(t, GuardrailConfig{})

	out := g.FilterDeclined(OutputContext{Kind: OutputKindExplanation, Topic: "lab:a1c"})

	assert.True(t, out.Declined())
	assert.True(t, out.WasModified())
	assert.Equal(t, FallbackMessage(OutputKindExplanation), out.Body())
	assert.Equal(t, "lab:a1c", out.Context().Topic)
}

func TestGuardedAIOutput_JSONRoundTrip(t *testing.T) {
	g := newTestGuardrails(t, GuardrailConfig{})
	out := g.Filter("You might have heart failure.", OutputContext{Kind: OutputKindHealthSnapshot})

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"was_modified":true`)

	var back GuardedAIOutput
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, out, back)
}

func TestGuardedAIOutput_ZeroValue(t *testing.T) {
	var out GuardedAIOutput
	assert.True(t, out.IsZero())
	assert.Empty(t, out.Text())
}

func TestNewGuardrailConfig(t *testing.T) {
	cfg := NewGuardrailConfig(500, map[string][]string{"out_of_scope": {`\bhoroscope\b`}})

	assert.Equal(t, 500, cfg.MaxOutputChars)
	assert.Equal(t, []string{`\bhoroscope\b`}, cfg.ExtraPatterns[ViolationOutOfScope])
	assert.Nil(t, NewGuardrailConfig(0, nil).ExtraPatterns)
}

func TestGoldenCases_ShippedSetPasses(t *testing.T) {
	cases, err := LoadGoldenCases(filepath.Join("..", "..", "config", "guardrail_golden.yaml"))
	require.NoError(t, err)
	require.NoError(t, ValidateGoldenCases(cases))

	summary := NewRunner(newTestGuardrails(t, GuardrailConfig{})).Run(cases)

	assert.Equal(t, summary.TotalCases, summary.Passed, "failures: %+v", summary.Failures)
	assert.Equal(t, 1.0, summary.BlockRecall)
	assert.Equal(t, 0.0, summary.FalsePositiveRate)
}
