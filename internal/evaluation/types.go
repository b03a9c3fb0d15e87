package evaluation

// GoldenCase is a labeled piece of model output with the expected filter verdict.
type GoldenCase struct {
	ID                 string      `yaml:"id" json:"id"`
	Kind               OutputKind  `yaml:"kind" json:"kind"`
	Output             string      `yaml:"output" json:"output"`
	ExpectBlocked      bool        `yaml:"expect_blocked" json:"expect_blocked"`
	ExpectCategories   []Violation `yaml:"expect_categories,omitempty" json:"expect_categories,omitempty"`
	ExpectCallToAction bool        `yaml:"expect_call_to_action,omitempty" json:"expect_call_to_action,omitempty"`
	Difficulty         string      `yaml:"difficulty" json:"difficulty"` // easy, medium, hard
}

// CaseResult holds the filter outcome for a single case.
type CaseResult struct {
	CaseID         string      `json:"case_id"`
	Kind           OutputKind  `json:"kind"`
	ExpectBlocked  bool        `json:"expect_blocked"`
	Blocked        bool        `json:"blocked"`
	Detected       []Violation `json:"detected,omitempty"`
	CategoryRecall float64     `json:"category_recall"`
	CallToAction   bool        `json:"call_to_action"`
	Passed         bool        `json:"passed"`
}

// EvalSummary holds aggregate metrics across all golden cases.
type EvalSummary struct {
	TotalCases         int                         `json:"total_cases"`
	Passed             int                         `json:"passed"`
	TruePositives      int                         `json:"true_positives"`
	FalseNegatives     int                         `json:"false_negatives"`
	FalsePositives     int                         `json:"false_positives"`
	TrueNegatives      int                         `json:"true_negatives"`
	BlockRecall        float64                     `json:"block_recall"`
	FalsePositiveRate  float64                     `json:"false_positive_rate"`
	AvgCategoryRecall  float64                     `json:"avg_category_recall"`
	CallToActionMisses int                         `json:"call_to_action_misses"`
	ByKind             map[OutputKind]*KindSummary `json:"by_kind"`
	Failures           []CaseResult                `json:"failures,omitempty"`
}

// KindSummary holds metrics grouped by output kind.
type KindSummary struct {
	Count  int `json:"count"`
	Passed int `json:"passed"`
}
