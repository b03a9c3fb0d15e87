package evaluation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadGoldenCases reads and parses a golden case set from a YAML or JSON file.
func LoadGoldenCases(path string) ([]GoldenCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden cases file: %w", err)
	}

	var cases []GoldenCase
	if err := yaml.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse golden cases: %w", err)
	}

	return cases, nil
}

var validDifficulties = map[string]bool{
	"easy":   true,
	"medium": true,
	"hard":   true,
}

// ValidateGoldenCases checks that all golden cases have required fields and valid values.
func ValidateGoldenCases(cases []GoldenCase) error {
	seen := make(map[string]struct{}, len(cases))

	for i, c := range cases {
		if c.ID == "" {
			return fmt.Errorf("case at index %d: missing id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("case at index %d: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = struct{}{}

		if !c.Kind.IsValid() {
			return fmt.Errorf("case %q: invalid kind %q", c.ID, c.Kind)
		}
		for _, v := range c.ExpectCategories {
			if !v.IsValid() {
				return fmt.Errorf("case %q: invalid category %q", c.ID, v)
			}
		}
		if len(c.ExpectCategories) > 0 && !c.ExpectBlocked {
			return fmt.Errorf("case %q: categories given but expect_blocked is false", c.ID)
		}
		if !validDifficulties[c.Difficulty] {
			return fmt.Errorf("case %q: invalid difficulty %q (must be easy/medium/hard)", c.ID, c.Difficulty)
		}
	}

	return nil
}
