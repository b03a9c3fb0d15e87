package rules

import (
	"sort"
	"strings"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// DrugInteractionEvaluator checks every unordered pair of active
// medications against the interaction table.
type DrugInteractionEvaluator struct {
	policy *Policy
}

func NewDrugInteractionEvaluator(policy *Policy) *DrugInteractionEvaluator {
	return &DrugInteractionEvaluator{policy: policy}
}

func (e *DrugInteractionEvaluator) Name() string { return "drug_interactions" }

type activeIngredient struct {
	key        string
	name       string
	ids        []string
	identities map[string]struct{}
}

func (e *DrugInteractionEvaluator) Evaluate(in Input) entities.Tier1Findings {
	var findings entities.Tier1Findings
	if in.Record == nil {
		return findings
	}

	ingredients := e.activeIngredients(in)
	for i := 0; i < len(ingredients); i++ {
		for j := i + 1; j < len(ingredients); j++ {
			rule, ok := e.lookup(ingredients[i], ingredients[j])
			if !ok {
				continue
			}
			a, b := ingredients[i], ingredients[j]
			if strings.ToLower(b.name) < strings.ToLower(a.name) {
				a, b = b, a
			}
			ids := append(append([]string{}, a.ids...), b.ids...)
			findings.DrugInteractions = append(findings.DrugInteractions, entities.DrugInteraction{
				MedicationA:    a.name,
				MedicationB:    b.name,
				MedicationIDs:  ids,
				Severity:       entities.Severity(rule.Severity),
				Mechanism:      rule.Mechanism,
				Recommendation: rule.Recommendation,
			})
		}
	}

	sort.SliceStable(findings.DrugInteractions, func(i, j int) bool {
		x, y := findings.DrugInteractions[i], findings.DrugInteractions[j]
		if x.Severity.Rank() != y.Severity.Rank() {
			return x.Severity.Rank() > y.Severity.Rank()
		}
		if !strings.EqualFold(x.MedicationA, y.MedicationA) {
			return strings.ToLower(x.MedicationA) < strings.ToLower(y.MedicationA)
		}
		return strings.ToLower(x.MedicationB) < strings.ToLower(y.MedicationB)
	})
	return findings
}

// activeIngredients collapses active medications to one entry per
// ingredient key, sorted by key.
func (e *DrugInteractionEvaluator) activeIngredients(in Input) []*activeIngredient {
	byKey := make(map[string]*activeIngredient)
	for _, med := range in.Record.Medications {
		if !med.IsActive(in.AsOf) {
			continue
		}
		key := ingredientOf(e.policy, med)
		if key == "" {
			continue
		}
		if existing, ok := byKey[key]; ok {
			existing.ids = append(existing.ids, med.ID)
			continue
		}
		ai := &activeIngredient{key: key, name: displayName(med), ids: []string{med.ID}, identities: make(map[string]struct{})}
		for _, id := range e.policy.Identities(key) {
			ai.identities[id] = struct{}{}
		}
		byKey[key] = ai
	}

	out := make([]*activeIngredient, 0, len(byKey))
	for _, ai := range byKey {
		out = append(out, ai)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// lookup returns the most severe rule matching the pair in either order.
func (e *DrugInteractionEvaluator) lookup(x, y *activeIngredient) (InteractionRule, bool) {
	var best InteractionRule
	found := false
	for _, rule := range e.policy.Interactions {
		a, b := strings.ToLower(rule.A), strings.ToLower(rule.B)
		if !(x.has(a) && y.has(b)) && !(x.has(b) && y.has(a)) {
			continue
		}
		if !found || entities.Severity(rule.Severity).Rank() > entities.Severity(best.Severity).Rank() {
			best = rule
			found = true
		}
	}
	return best, found
}

func (a *activeIngredient) has(identity string) bool {
	_, ok := a.identities[identity]
	return ok
}

func ingredientOf(policy *Policy, med entities.MergedMedication) string {
	if strings.TrimSpace(med.Ingredient) != "" {
		return policy.IngredientKey(med.Ingredient)
	}
	return policy.IngredientKey(med.Name)
}

func displayName(med entities.MergedMedication) string {
	if name := strings.TrimSpace(med.Name); name != "" {
		return name
	}
	return strings.TrimSpace(med.Ingredient)
}
