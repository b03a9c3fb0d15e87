package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
)

// VitalCorrelationEvaluator links a vital sign trend to a medication that
// was started or changed near it. A correlation needs all three: a trend
// beyond noise, an active medication changed within the window, and a known
// association whose expected effect matches the trend.
type VitalCorrelationEvaluator struct {
	policy *Policy
}

func NewVitalCorrelationEvaluator(policy *Policy) *VitalCorrelationEvaluator {
	return &VitalCorrelationEvaluator{policy: policy}
}

func (e *VitalCorrelationEvaluator) Name() string { return "vital_correlations" }

type vitalSeries struct {
	vitalType string
	unit      string
	first     time.Time
	last      time.Time
	delta     float64
	movement  entities.Movement
}

func (e *VitalCorrelationEvaluator) Evaluate(in Input) entities.Tier1Findings {
	var findings entities.Tier1Findings
	if in.Record == nil || len(in.Record.Medications) == 0 {
		return findings
	}

	proximity := time.Duration(e.policy.VitalTrend.ProximityDays) * 24 * time.Hour
	for _, series := range e.series(in.Record.Vitals) {
		for _, med := range in.Record.Medications {
			if !med.IsActive(in.AsOf) {
				continue
			}
			change := med.LastChange()
			if change == nil || change.Before(series.first.Add(-proximity)) || change.After(series.last) {
				continue
			}
			association, ok := e.association(med, series)
			if !ok {
				continue
			}
			findings.VitalCorrelations = append(findings.VitalCorrelations, entities.VitalCorrelation{
				VitalType:        series.vitalType,
				Movement:         series.movement,
				Delta:            series.delta,
				Unit:             series.unit,
				SeriesStart:      series.first,
				SeriesEnd:        series.last,
				MedicationID:     med.ID,
				MedicationName:   displayName(med),
				MedicationChange: change.UTC(),
				Association:      association,
				Summary:          correlationSummary(series, displayName(med)),
			})
		}
	}
	return findings
}

// series builds one trend per vital type, sorted by type.
func (e *VitalCorrelationEvaluator) series(vitals []entities.MergedVital) []vitalSeries {
	type point struct {
		value float64
		at    time.Time
		unit  string
	}
	byType := make(map[string][]point)
	for _, v := range vitals {
		value, ok := finite(v.Value)
		if !ok {
			continue
		}
		at, ok := validTime(v.ObservedAt)
		if !ok {
			continue
		}
		vt := strings.ToLower(strings.TrimSpace(v.Type))
		if vt == "" {
			continue
		}
		byType[vt] = append(byType[vt], point{value: value, at: at, unit: v.Unit})
	}

	types := make([]string, 0, len(byType))
	for vt := range byType {
		types = append(types, vt)
	}
	sort.Strings(types)

	var out []vitalSeries
	for _, vt := range types {
		points := byType[vt]
		if len(points) < 2 {
			continue
		}
		sort.SliceStable(points, func(i, j int) bool { return points[i].at.Before(points[j].at) })
		first, last := points[0], points[len(points)-1]
		delta := last.value - first.value
		if math.Abs(delta) <= e.policy.VitalTrend.Noise[vt] {
			continue
		}
		movement := entities.MovementRising
		if delta < 0 {
			movement = entities.MovementFalling
		}
		out = append(out, vitalSeries{
			vitalType: vt,
			unit:      last.unit,
			first:     first.at.UTC(),
			last:      last.at.UTC(),
			delta:     round(delta, 2),
			movement:  movement,
		})
	}
	return out
}

// association returns the drug or class that explains the trend, if any.
func (e *VitalCorrelationEvaluator) association(med entities.MergedMedication, series vitalSeries) (string, bool) {
	identities := e.policy.Identities(ingredientOf(e.policy, med))
	for _, a := range e.policy.VitalAssociations {
		if !strings.EqualFold(a.Vital, series.vitalType) {
			continue
		}
		expected := entities.MovementFalling
		if a.Effect == "increase" {
			expected = entities.MovementRising
		}
		if expected != series.movement {
			continue
		}
		for _, id := range identities {
			if strings.EqualFold(id, a.Drug) {
				return strings.TrimPrefix(strings.ToLower(a.Drug), classPrefix), true
			}
		}
	}
	return "", false
}

var vitalLabels = map[string]string{
	entities.VitalSystolicBP:       "systolic blood pressure",
	entities.VitalDiastolicBP:      "diastolic blood pressure",
	entities.VitalHeartRate:        "heart rate",
	entities.VitalWeight:           "weight",
	entities.VitalBMI:              "BMI",
	entities.VitalRespiratoryRate:  "breathing rate",
	entities.VitalTemperature:      "temperature",
	entities.VitalOxygenSaturation: "oxygen level",
}

// VitalLabel returns a readable name for a vital type.
func VitalLabel(vitalType string) string {
	if l, ok := vitalLabels[vitalType]; ok {
		return l
	}
	return strings.ReplaceAll(vitalType, "_", " ")
}

func correlationSummary(s vitalSeries, medication string) string {
	verb := "rose"
	if s.movement == entities.MovementFalling {
		verb = "fell"
	}
	unit := ""
	if s.unit != "" {
		unit = " " + s.unit
	}
	return fmt.Sprintf("Your %s %s by %g%s between %s and %s, around the time %s was started or changed.",
		VitalLabel(s.vitalType), verb, math.Abs(s.delta), unit,
		s.first.Format("Jan 2, 2006"), s.last.Format("Jan 2, 2006"), medication)
}
