package rules

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// LabTrendEvaluator computes the direction of each analyte with at least
// two dated numeric results.
type LabTrendEvaluator struct {
	policy *Policy
}

func NewLabTrendEvaluator(policy *Policy) *LabTrendEvaluator {
	return &LabTrendEvaluator{policy: policy}
}

func (e *LabTrendEvaluator) Name() string { return "lab_trend" }

type labSeriesKey struct {
	patientID string
	analyte   string
}

type labPoint struct {
	lab   entities.MergedLabResult
	value float64
	at    time.Time
}

// AnalyteKey is the grouping key for a result: its code, else its
// normalized name.
func AnalyteKey(lab entities.MergedLabResult) string {
	if code := strings.TrimSpace(lab.Code); code != "" {
		return code
	}
	return strings.Join(strings.Fields(strings.ToLower(lab.Name)), " ")
}

func (e *LabTrendEvaluator) Evaluate(in Input) entities.Tier1Findings {
	var findings entities.Tier1Findings
	if in.Record == nil {
		return findings
	}

	groups := make(map[labSeriesKey][]labPoint)
	for _, lab := range in.Record.LabResults {
		value, ok := finite(lab.Value)
		if !ok {
			continue
		}
		at, ok := validTime(lab.ObservedAt)
		if !ok {
			continue
		}
		analyte := AnalyteKey(lab)
		if analyte == "" {
			continue
		}
		patientID := lab.PatientID
		if patientID == "" {
			patientID = in.Record.PatientID
		}
		key := labSeriesKey{patientID: patientID, analyte: analyte}
		groups[key] = append(groups[key], labPoint{lab: lab, value: value, at: at})
	}

	keys := make([]labSeriesKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].analyte != keys[j].analyte {
			return keys[i].analyte < keys[j].analyte
		}
		return keys[i].patientID < keys[j].patientID
	})

	for _, key := range keys {
		if trend, ok := e.trend(key.analyte, groups[key]); ok {
			findings.LabTrends = append(findings.LabTrends, trend)
		}
	}
	return findings
}

func (e *LabTrendEvaluator) trend(analyte string, points []labPoint) (entities.LabTrend, bool) {
	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].at.Equal(points[j].at) {
			return points[i].at.Before(points[j].at)
		}
		return points[i].lab.ID < points[j].lab.ID
	})

	// Only compare results reported in the unit of the latest one.
	latestUnit := points[len(points)-1].lab.Unit
	series := points[:0:0]
	for _, p := range points {
		if p.lab.Unit == "" || latestUnit == "" || strings.EqualFold(p.lab.Unit, latestUnit) {
			series = append(series, p)
		}
	}
	if len(series) < 2 {
		return entities.LabTrend{}, false
	}

	first, last := series[0], series[len(series)-1]
	delta := last.value - first.value
	noise := e.policy.TrendNoise(analyte, first.value)

	movement := entities.MovementFlat
	switch {
	case math.Abs(delta) <= noise:
	case delta > 0:
		movement = entities.MovementRising
	default:
		movement = entities.MovementFalling
	}

	trend := entities.LabTrend{
		AnalyteKey: analyte,
		Code:       last.lab.Code,
		Name:       last.lab.Name,
		Unit:       latestUnit,
		Movement:   movement,
		Delta:      round(delta, 4),
		Direction:  e.direction(analyte, movement, first, last),
		Points:     make([]entities.TrendPoint, 0, len(series)),
	}
	for _, p := range series {
		trend.Points = append(trend.Points, entities.TrendPoint{ResultID: p.lab.ID, Value: p.value, ObservedAt: p.at.UTC()})
	}
	return trend, true
}

func (e *LabTrendEvaluator) direction(analyte string, movement entities.Movement, first, last labPoint) entities.TrendDirection {
	if movement == entities.MovementFlat {
		return entities.TrendStable
	}

	code := last.lab.Code
	if code == "" {
		code = analyte
	}
	switch e.policy.PolarityFor(code) {
	case "lower":
		if movement == entities.MovementFalling {
			return entities.TrendImproving
		}
		return entities.TrendWorsening
	case "higher":
		if movement == entities.MovementRising {
			return entities.TrendImproving
		}
		return entities.TrendWorsening
	}

	low, high := NewLabAbnormalityEvaluator(e.policy).rangeFor(last.lab)
	if low == nil || high == nil || *high <= *low {
		return entities.TrendIndeterminate
	}
	mid := (*low + *high) / 2
	before, after := math.Abs(first.value-mid), math.Abs(last.value-mid)
	switch {
	case after < before:
		return entities.TrendImproving
	case after > before:
		return entities.TrendWorsening
	default:
		return entities.TrendIndeterminate
	}
}
