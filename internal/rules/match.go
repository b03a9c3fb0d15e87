package rules

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// containsKeyword reports whether keyword occurs in text as a whole word or
// phrase, ignoring case.
func containsKeyword(text, keyword string) bool {
	text = strings.ToLower(text)
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" || text == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], keyword)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(keyword)
		if isBoundary(text, start-1) && isBoundary(text, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	r := rune(text[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func containsAnyKeyword(keywords []string, texts ...string) bool {
	for _, kw := range keywords {
		for _, t := range texts {
			if containsKeyword(t, kw) {
				return true
			}
		}
	}
	return false
}

func matchesCode(codes []string, candidates ...string) bool {
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		for _, cand := range candidates {
			if strings.EqualFold(strings.TrimSpace(cand), c) {
				return true
			}
		}
	}
	return false
}

func finite(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

func validTime(t *time.Time) (time.Time, bool) {
	if t == nil || t.IsZero() {
		return time.Time{}, false
	}
	return *t, true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
