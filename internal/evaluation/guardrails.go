package evaluation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Violation names a category of disallowed content.
type Violation string

const (
	ViolationEmpty            Violation = "empty_output"
	ViolationDiagnosis        Violation = "diagnosis_language"
	ViolationDosing           Violation = "dosing_instruction"
	ViolationMedicationChange Violation = "medication_change"
	ViolationOutOfScope       Violation = "out_of_scope"
)

// IsValid checks if the violation is one of the defined constants.
func (v Violation) IsValid() bool {
	switch v {
	case ViolationEmpty, ViolationDiagnosis, ViolationDosing, ViolationMedicationChange, ViolationOutOfScope:
		return true
	}
	return false
}

// IsValid checks if the kind is one of the defined constants.
func (k OutputKind) IsValid() bool {
	switch k {
	case OutputKindLabTrendNarrative, OutputKindHealthSnapshot, OutputKindMedicationSummary,
		OutputKindExplanation, OutputKindDoctorQuestion:
		return true
	}
	return false
}

// ReportDisclaimer is printed once on every pre-visit report.
const ReportDisclaimer = "This report summarizes information from your health records for discussion with your care team. " +
	"It is not a diagnosis or a treatment plan."

// ProviderCallToAction is appended when content touches an actionable finding.
const ProviderCallToAction = "Please contact your healthcare provider to discuss this before making any changes to your care."

const (
	narrativeDisclaimer   = "This summary was generated automatically from your records and is for information only. It is not medical advice."
	explanationDisclaimer = "This explanation is general health information, not medical advice. Your provider knows your full history."
	questionDisclaimer    = "These are suggested questions only. Your provider can help decide what matters for you."
)

// conditionTerms names conditions the filter must never attribute to the
// reader, in clinical and plain-language forms.
const conditionTerms = `disease|disorder|syndrome|cancer|carcinoma|tumou?r|diabetes|pre-?diabetes|infection|failure|deficiency|` +
	`hypertension|high blood pressure|high cholesterol|hyperlipidemia|anemia|anaemia|hypothyroidism|hyperthyroidism|obesity`

var defaultPatterns = map[Violation][]string{
	ViolationDiagnosis: {
		`\byou (?:most )?(?:likely |probably |definitely |may |might |could )?(?:have|are suffering from|suffer from|are developing)\s+(?:an?\s+)?(?:[\w-]+\s+){0,3}?(?:` + conditionTerms + `)\b`,
		`\byou(?:'re| are) (?:most )?(?:likely |probably |definitely )?(?:an? )?(?:diabetic|pre-?diabetic|hypertensive|anemic|anaemic|obese|hypothyroid|hyperthyroid|asthmatic|insulin[- ]resistant)\b`,
		`\b(?:consistent with|suggestive of|indicative of|diagnostic of)\s+(?:an?\s+)?(?:[\w-]+\s+){0,3}?(?:` + conditionTerms + `)\b`,
		`\b(?:this|these results?|your results?|it) (?:clearly )?(?:indicates?|confirms?|proves?|means?) (?:that )?you (?:have|are)\b`,
		`\b(?:i|we) (?:can )?diagnose\b`,
		`\byour diagnosis is\b`,
	},
	ViolationDosing: {
		`\b(?:take|increase|decrease|reduce|double|halve|use)\s+(?:[\w-]+\s+){0,3}?\d+(?:\.\d+)?\s*(?:mg|mcg|µg|g|ml|units?|iu|tablets?|pills?|capsules?)\b`,
		`\b\d+(?:\.\d+)?\s*(?:mg|mcg|ml|units?|tablets?|pills?|capsules?)\s+(?:once|twice|three times|every|per|a)\s+(?:a\s+)?(?:day|daily|night|hours?|week)\b`,
		`\b(?:take|use|chew|inhale)\s+(?:\d+|one|two|three|four|five|half(?: a)?|an? (?:extra|additional))\s+(?:tablets?|pills?|capsules?|puffs?|drops?|doses?)\b`,
	},
	ViolationMedicationChange: {
		`\b(?:stop|discontinue|quit|skip|pause)\s+(?:taking\s+)?(?:your|the|this|that|all)\b`,
		`\b(?:start|begin)\s+taking\b`,
		`\byou should (?:stop|start|switch|increase|decrease|reduce|double|lower|raise)\b`,
		`\bswitch(?:ing)? (?:your (?:medication|medicine|prescription)|to a different (?:medication|drug))\b`,
	},
	ViolationOutOfScope: {
		`\b(?:ignore|disregard) (?:all |any |the |previous |prior )*(?:instructions|prompts?)\b`,
		`\bas an? (?:ai|language model)\b`,
		`\bsystem prompt\b`,
		`\b(?:legal|financial|investment) advice\b`,
		`\b(?:no need to|don't need to|do not need to) (?:see|consult|contact|talk to) (?:a |your )?(?:doctor|physician|provider|clinician)\b`,
	},
}

var screenOrder = []Violation{ViolationDiagnosis, ViolationDosing, ViolationMedicationChange, ViolationOutOfScope}

var actionablePattern = regexp.MustCompile(`(?i)\b(?:interact(?:ion|ions|s)?|care gaps?|screening|vaccin\w*|immuni[sz]\w*|abnormal|out of range|outside (?:the|its|your) (?:normal|reference) range|conflict(?:ing)?)\b`)

var fencePattern = regexp.MustCompile("(?s)^```[\\w-]*\\s*\n?(.*?)\\s*```$")

type GuardrailConfig struct {
	MaxOutputChars int
	ExtraPatterns  map[Violation][]string
}

// NewGuardrailConfig builds a config from category names as they appear in
// configuration files. Unknown names are rejected later by NewGuardrails.
func NewGuardrailConfig(maxOutputChars int, extraPatterns map[string][]string) GuardrailConfig {
	cfg := GuardrailConfig{MaxOutputChars: maxOutputChars}
	if len(extraPatterns) > 0 {
		cfg.ExtraPatterns = make(map[Violation][]string, len(extraPatterns))
		for category, patterns := range extraPatterns {
			cfg.ExtraPatterns[Violation(category)] = patterns
		}
	}
	return cfg
}

type Guardrails struct {
	config   GuardrailConfig
	patterns map[Violation][]*regexp.Regexp
}

func NewGuardrails(config GuardrailConfig) (*Guardrails, error) {
	if config.MaxOutputChars <= 0 {
		config.MaxOutputChars = 2000
	}

	patterns := make(map[Violation][]*regexp.Regexp, len(defaultPatterns))
	for category, exprs := range defaultPatterns {
		for _, expr := range exprs {
			patterns[category] = append(patterns[category], regexp.MustCompile("(?i)"+expr))
		}
	}
	for category, exprs := range config.ExtraPatterns {
		if !category.IsValid() || category == ViolationEmpty {
			return nil, fmt.Errorf("unknown guardrail category %q", category)
		}
		for _, expr := range exprs {
			re, err := regexp.Compile("(?i)" + expr)
			if err != nil {
				return nil, fmt.Errorf("invalid %s pattern %q: %w", category, expr, err)
			}
			patterns[category] = append(patterns[category], re)
		}
	}

	return &Guardrails{config: config, patterns: patterns}, nil
}

// Screen returns the violation categories found in text, in a fixed order.
func (g *Guardrails) Screen(text string) []Violation {
	if strings.TrimSpace(text) == "" {
		return []Violation{ViolationEmpty}
	}
	var found []Violation
	for _, category := range screenOrder {
		for _, re := range g.patterns[category] {
			if re.MatchString(text) {
				found = append(found, category)
				break
			}
		}
	}
	return found
}

// Filter is the only way model text becomes a GuardedAIOutput. It screens
// the text, rewrites its formatting, then appends the disclaimer and, when
// the content is actionable, the provider call-to-action.
func (g *Guardrails) Filter(raw string, oc OutputContext) GuardedAIOutput {
	out := GuardedAIOutput{context: oc}

	body, rewritten := g.rewrite(raw)
	if violations := g.Screen(body); len(violations) > 0 {
		out.body = FallbackMessage(oc.Kind)
		out.modified = true
		out.violations = violations
	} else {
		out.body = body
		out.modified = rewritten
	}

	out.disclaimer = Disclaimer(oc.Kind)
	if oc.Actionable || actionablePattern.MatchString(out.body) {
		out.callToAction = ProviderCallToAction
	}
	return out
}

// FilterDeclined builds the output returned when the model refused to answer.
func (g *Guardrails) FilterDeclined(oc OutputContext) GuardedAIOutput {
	return GuardedAIOutput{
		body:         FallbackMessage(oc.Kind),
		disclaimer:   Disclaimer(oc.Kind),
		callToAction: ProviderCallToAction,
		modified:     true,
		declined:     true,
		context:      oc,
	}
}

func (g *Guardrails) rewrite(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	modified := false

	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
		modified = true
	}

	if clamped, ok := clamp(text, g.config.MaxOutputChars); ok {
		text = clamped
		modified = true
	}
	return text, modified
}

// clamp cuts text to at most limit runes, preferring the last sentence end
// in the second half of the window, then the last space.
func clamp(text string, limit int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	window := runes[:limit]

	for i := len(window) - 1; i >= limit/2; i-- {
		switch window[i] {
		case '.', '!', '?':
			return string(window[:i+1]), true
		}
	}
	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return strings.TrimRightFunc(string(window[:i]), unicode.IsSpace) + "...", true
		}
	}
	return string(window) + "...", true
}

// Disclaimer returns the fixed disclaimer for a kind of output.
func Disclaimer(kind OutputKind) string {
	switch kind {
	case OutputKindExplanation:
		return explanationDisclaimer
	case OutputKindDoctorQuestion:
		return questionDisclaimer
	default:
		return narrativeDisclaimer
	}
}

// FallbackMessage is the safe text that replaces blocked or missing output.
func FallbackMessage(kind OutputKind) string {
	switch kind {
	case OutputKindLabTrendNarrative:
		return "We could not prepare a summary of this lab trend. Your results are listed above and your provider can walk you through them."
	case OutputKindHealthSnapshot:
		return "We could not prepare a health summary right now. Your findings are listed in this report for you to review with your provider."
	case OutputKindMedicationSummary:
		return "We could not prepare a medication summary right now. Please review your medication list with your provider or pharmacist."
	case OutputKindDoctorQuestion:
		return "What should I know about this, and is there anything I should watch for?"
	default:
		return "We cannot provide an explanation for this item. Your provider is the best person to explain what it means for you."
	}
}
