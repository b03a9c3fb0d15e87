package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

const classPrefix = "class:"

// Policy holds every threshold and knowledge table the evaluators use.
type Policy struct {
	LabSeverity       LabSeverityPolicy  `yaml:"lab_severity"`
	ReferenceRanges   []ReferenceRange   `yaml:"reference_ranges" validate:"dive"`
	LabTrend          LabTrendPolicy     `yaml:"lab_trend"`
	AnalytePolarity   []AnalytePolarity  `yaml:"analyte_polarity" validate:"dive"`
	CareGaps          []CareGapRule      `yaml:"care_gaps" validate:"dive"`
	IngredientAliases map[string]string  `yaml:"ingredient_aliases"`
	DrugClasses       []DrugClass        `yaml:"drug_classes" validate:"dive"`
	Interactions      []InteractionRule  `yaml:"interactions" validate:"dive"`
	VitalTrend        VitalTrendPolicy   `yaml:"vital_trend"`
	VitalAssociations []VitalAssociation `yaml:"vital_associations" validate:"dive"`
	ConflictActions   map[string]string  `yaml:"conflict_actions"`

	ranges    map[string]ReferenceRange
	polarity  map[string]string
	classes   map[string][]string
	known     map[string]struct{}
	maxKeyLen int
}

// LabSeverityPolicy grades an out-of-range value by how far it lies beyond
// the nearest boundary, measured in multiples of the range span.
type LabSeverityPolicy struct {
	ModerateSpanMultiple float64 `yaml:"moderate_span_multiple" validate:"gt=0"`
	CriticalSpanMultiple float64 `yaml:"critical_span_multiple" validate:"gtfield=ModerateSpanMultiple"`
}

// ReferenceRange supplies a range for results that arrive without one.
type ReferenceRange struct {
	Code string   `yaml:"code" validate:"required"`
	Name string   `yaml:"name"`
	Unit string   `yaml:"unit"`
	Low  *float64 `yaml:"low"`
	High *float64 `yaml:"high"`
}

// LabTrendPolicy sets the noise band inside which a change counts as stable.
type LabTrendPolicy struct {
	RelativeNoise float64            `yaml:"relative_noise" validate:"gte=0"`
	AbsoluteNoise float64            `yaml:"absolute_noise" validate:"gte=0"`
	Overrides     map[string]float64 `yaml:"overrides"`
}

// AnalytePolarity says which direction of change is an improvement.
type AnalytePolarity struct {
	Code   string `yaml:"code" validate:"required"`
	Better string `yaml:"better" validate:"oneof=lower higher"`
}

// CareGapEvidence describes what counts as the preventive action having happened.
type CareGapEvidence struct {
	Sources  []string `yaml:"sources" validate:"min=1,dive,oneof=encounter immunization lab_result"`
	Keywords []string `yaml:"keywords"`
	Codes    []string `yaml:"codes"`
}

// CareGapRule is one row of the preventive care table.
type CareGapRule struct {
	ID                 string          `yaml:"id" validate:"required"`
	Category           string          `yaml:"category" validate:"oneof=screening immunization"`
	Action             string          `yaml:"action" validate:"required"`
	Justification      string          `yaml:"justification"`
	MinAge             *int            `yaml:"min_age" validate:"omitempty,gte=0"`
	MaxAge             *int            `yaml:"max_age" validate:"omitempty,gte=0"`
	Sex                string          `yaml:"sex" validate:"omitempty,oneof=male female"`
	RequiresConditions []string        `yaml:"requires_conditions"`
	ExcludesConditions []string        `yaml:"excludes_conditions"`
	IntervalMonths     int             `yaml:"interval_months" validate:"gte=0"`
	Evidence           CareGapEvidence `yaml:"evidence"`
}

// AgeBounded reports whether the rule depends on the patient's age.
func (r CareGapRule) AgeBounded() bool {
	return r.MinAge != nil || r.MaxAge != nil
}

// DrugClass groups ingredient keys.
type DrugClass struct {
	Name    string   `yaml:"name" validate:"required"`
	Members []string `yaml:"members" validate:"min=1"`
}

// InteractionRule is one entry of the interaction table. A and B are
// ingredient keys or "class:<name>".
type InteractionRule struct {
	A              string `yaml:"a" validate:"required"`
	B              string `yaml:"b" validate:"required"`
	Severity       string `yaml:"severity" validate:"oneof=mild moderate severe critical"`
	Mechanism      string `yaml:"mechanism" validate:"required"`
	Recommendation string `yaml:"recommendation"`
}

// VitalTrendPolicy sets per-vital noise and medication proximity.
type VitalTrendPolicy struct {
	ProximityDays int                `yaml:"proximity_days" validate:"gte=0"`
	Noise         map[string]float64 `yaml:"noise"`
}

// VitalAssociation is a known pharmacologic effect of a drug on a vital sign.
type VitalAssociation struct {
	Drug   string `yaml:"drug" validate:"required"`
	Vital  string `yaml:"vital" validate:"required"`
	Effect string `yaml:"effect" validate:"oneof=increase decrease"`
}

var validate = validator.New()

// DefaultPolicy returns the embedded policy tables.
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rule policy is invalid: %v", err))
	}
	return p
}

// LoadPolicy reads a policy file. An empty path returns DefaultPolicy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates policy YAML.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	for _, rule := range p.CareGaps {
		if rule.MinAge != nil && rule.MaxAge != nil && *rule.MinAge > *rule.MaxAge {
			return nil, fmt.Errorf("invalid policy: care gap %q has min_age above max_age", rule.ID)
		}
	}
	p.index()
	return &p, nil
}

func (p *Policy) index() {
	p.ranges = make(map[string]ReferenceRange, len(p.ReferenceRanges))
	for _, r := range p.ReferenceRanges {
		p.ranges[r.Code] = r
	}

	p.polarity = make(map[string]string, len(p.AnalytePolarity))
	for _, a := range p.AnalytePolarity {
		p.polarity[a.Code] = a.Better
	}

	p.classes = make(map[string][]string)
	p.known = make(map[string]struct{})
	remember := func(key string) {
		key = normalizeDrugName(key)
		if key == "" || strings.HasPrefix(key, classPrefix) {
			return
		}
		p.known[key] = struct{}{}
		if n := len(strings.Fields(key)); n > p.maxKeyLen {
			p.maxKeyLen = n
		}
	}
	for _, c := range p.DrugClasses {
		for _, m := range c.Members {
			key := normalizeDrugName(m)
			p.classes[key] = append(p.classes[key], c.Name)
			remember(key)
		}
	}
	for alias, target := range p.IngredientAliases {
		remember(alias)
		remember(target)
	}
	for _, rule := range p.Interactions {
		remember(rule.A)
		remember(rule.B)
	}
	for _, a := range p.VitalAssociations {
		remember(a.Drug)
	}
	for key := range p.classes {
		sort.Strings(p.classes[key])
	}
}

// RangeFor returns the configured reference range for a LOINC code.
func (p *Policy) RangeFor(code string) (ReferenceRange, bool) {
	r, ok := p.ranges[code]
	return r, ok
}

// PolarityFor returns "lower" or "higher" for an analyte code, or "".
func (p *Policy) PolarityFor(code string) string {
	return p.polarity[code]
}

// TrendNoise returns the stable band for an analyte whose series starts at earliest.
func (p *Policy) TrendNoise(analyteKey string, earliest float64) float64 {
	if v, ok := p.LabTrend.Overrides[analyteKey]; ok {
		return v
	}
	noise := p.LabTrend.RelativeNoise * abs(earliest)
	if noise < p.LabTrend.AbsoluteNoise {
		noise = p.LabTrend.AbsoluteNoise
	}
	return noise
}

// ConflictAction returns the recommended action for a conflict domain.
func (p *Policy) ConflictAction(domain string) string {
	if a, ok := p.ConflictActions[strings.ToLower(domain)]; ok && a != "" {
		return a
	}
	if a, ok := p.ConflictActions["default"]; ok && a != "" {
		return a
	}
	return "Confirm this information with your doctor."
}

// IngredientKey maps a medication name to its ingredient key. The longest
// known leading phrase wins; brand names resolve through the alias table.
// Unknown names fall back to their first word.
func (p *Policy) IngredientKey(name string) string {
	words := strings.Fields(normalizeDrugName(name))
	if len(words) == 0 {
		return ""
	}
	for start := 0; start < len(words); start++ {
		limit := len(words) - start
		if limit > p.maxKeyLen {
			limit = p.maxKeyLen
		}
		for n := limit; n >= 1; n-- {
			candidate := strings.Join(words[start:start+n], " ")
			if target, ok := p.IngredientAliases[candidate]; ok {
				return normalizeDrugName(target)
			}
			if _, ok := p.known[candidate]; ok {
				return candidate
			}
		}
	}
	return words[0]
}

// Identities returns the ingredient key plus "class:<name>" for each class it
// belongs to.
func (p *Policy) Identities(ingredient string) []string {
	if ingredient == "" {
		return nil
	}
	out := []string{ingredient}
	for _, c := range p.classes[ingredient] {
		out = append(out, classPrefix+c)
	}
	return out
}

// normalizeDrugName lowercases and replaces anything that is not a letter
// or the class prefix separator with a space.
func normalizeDrugName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if strings.HasPrefix(name, classPrefix) {
		return name
	}
	var b strings.Builder
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
