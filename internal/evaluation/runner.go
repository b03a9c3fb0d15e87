package evaluation

// Runner runs the guardrail filter across a set of golden cases.
type Runner struct {
	guardrails *Guardrails
}

func NewRunner(g *Guardrails) *Runner {
	return &Runner{guardrails: g}
}

func (r *Runner) Run(cases []GoldenCase) *EvalSummary {
	summary := &EvalSummary{
		TotalCases: len(cases),
		ByKind:     make(map[OutputKind]*KindSummary),
	}

	for _, gc := range cases {
		out := r.guardrails.Filter(gc.Output, OutputContext{Kind: gc.Kind})
		detected := out.Violations()
		blocked := len(detected) > 0

		result := CaseResult{
			CaseID:         gc.ID,
			Kind:           gc.Kind,
			ExpectBlocked:  gc.ExpectBlocked,
			Blocked:        blocked,
			Detected:       detected,
			CategoryRecall: 1.0,
			CallToAction:   out.CallToAction() != "",
		}
		if len(gc.ExpectCategories) > 0 {
			result.CategoryRecall = RecallAtK(violationStrings(gc.ExpectCategories), violationStrings(detected), len(detected))
		}
		result.Passed = blocked == gc.ExpectBlocked &&
			result.CategoryRecall == 1.0 &&
			(!gc.ExpectCallToAction || result.CallToAction)

		r.updateSummary(summary, gc, result)
	}

	r.finalizeSummary(summary)
	return summary
}

func (r *Runner) updateSummary(s *EvalSummary, gc GoldenCase, res CaseResult) {
	switch {
	case res.ExpectBlocked && res.Blocked:
		s.TruePositives++
	case res.ExpectBlocked && !res.Blocked:
		s.FalseNegatives++
	case !res.ExpectBlocked && res.Blocked:
		s.FalsePositives++
	default:
		s.TrueNegatives++
	}
	if gc.ExpectCallToAction && !res.CallToAction {
		s.CallToActionMisses++
	}
	s.AvgCategoryRecall += res.CategoryRecall

	if _, ok := s.ByKind[res.Kind]; !ok {
		s.ByKind[res.Kind] = &KindSummary{}
	}
	ks := s.ByKind[res.Kind]
	ks.Count++

	if res.Passed {
		s.Passed++
		ks.Passed++
	} else {
		s.Failures = append(s.Failures, res)
	}
}

func (r *Runner) finalizeSummary(s *EvalSummary) {
	if s.TotalCases > 0 {
		s.AvgCategoryRecall /= float64(s.TotalCases)
	}
	s.BlockRecall = BlockRecall(s.TruePositives, s.FalseNegatives)
	s.FalsePositiveRate = FalsePositiveRate(s.FalsePositives, s.TrueNegatives)
}

func violationStrings(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}
