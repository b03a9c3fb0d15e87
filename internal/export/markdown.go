package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zatekoja/patientinsights/internal/domain/entities"
	"github.com/zatekoja/patientinsights/internal/rules"
)

const reportTitle = "Pre-visit health summary"

var narrativeTitles = map[entities.NarrativeKind]string{
	entities.NarrativeKindHealthSnapshot:    "Health snapshot",
	entities.NarrativeKindMedicationSummary: "Your medications",
	entities.NarrativeKindLabTrend:          "Lab trend",
}

// Markdown renders the report as GitHub-flavored Markdown. Empty sections
// are omitted.
func Markdown(r *entities.PreVisitReport) string {
	var b strings.Builder
	if r == nil {
		return ""
	}

	fmt.Fprintf(&b, "# %s\n\n", reportTitle)
	writeHeader(&b, r)

	if len(r.Insights) > 0 {
		b.WriteString("## Things to discuss\n\n")
		for _, in := range r.Insights {
			fmt.Fprintf(&b, "- **%s** (%s priority): %s\n", inline(in.Title), in.Priority, inline(in.Summary))
		}
		b.WriteString("\n")
	}

	if len(r.DrugInteractions) > 0 {
		b.WriteString("## Medication interactions\n\n")
		b.WriteString("| Medications | Severity | Details |\n|---|---|---|\n")
		for _, d := range r.DrugInteractions {
			details := strings.TrimSpace(d.Mechanism + " " + d.Recommendation)
			fmt.Fprintf(&b, "| %s + %s | %s | %s |\n", cell(d.MedicationA), cell(d.MedicationB), d.Severity, cell(details))
		}
		b.WriteString("\n")
	}

	if len(r.LabFlags) > 0 {
		b.WriteString("## Lab results outside the reference range\n\n")
		b.WriteString("| Test | Result | Reference range | Date |\n|---|---|---|---|\n")
		for _, f := range r.LabFlags {
			fmt.Fprintf(&b, "| %s | %s (%s) | %s | %s |\n",
				cell(f.Name), cell(withUnit(f.Value, f.Unit)), f.Direction, cell(rangeText(f.ReferenceLow, f.ReferenceHigh, f.Unit)), date(f.ObservedAt))
		}
		b.WriteString("\n")
	}

	if len(r.LabTrends) > 0 {
		b.WriteString("## Lab trends\n\n")
		b.WriteString("| Test | First | Latest | Direction |\n|---|---|---|---|\n")
		for _, t := range r.LabTrends {
			first, last := t.Earliest(), t.Latest()
			fmt.Fprintf(&b, "| %s | %s on %s | %s on %s | %s |\n",
				cell(t.Name),
				cell(withUnit(first.Value, t.Unit)), first.ObservedAt.Format(time.DateOnly),
				cell(withUnit(last.Value, t.Unit)), last.ObservedAt.Format(time.DateOnly),
				t.Direction)
		}
		b.WriteString("\n")
	}

	if len(r.CareGaps) > 0 {
		b.WriteString("## Preventive care that may be due\n\n")
		for _, g := range r.CareGaps {
			fmt.Fprintf(&b, "- **%s**: %s\n", inline(g.Action), inline(g.Justification))
		}
		b.WriteString("\n")
	}

	if len(r.SourceConflictAlerts) > 0 {
		b.WriteString("## Records that disagree\n\n")
		for _, c := range r.SourceConflictAlerts {
			fmt.Fprintf(&b, "- %s %s\n", inline(c.Message), inline(c.RecommendedAction))
		}
		b.WriteString("\n")
	}

	if len(r.VitalCorrelations) > 0 {
		b.WriteString("## Vital sign changes\n\n")
		for _, v := range r.VitalCorrelations {
			fmt.Fprintf(&b, "- **%s**: %s\n", rules.VitalLabel(v.VitalType), inline(v.Summary))
		}
		b.WriteString("\n")
	}

	if len(r.Narratives) > 0 {
		b.WriteString("## Summaries\n\n")
		for _, n := range r.Narratives {
			title := narrativeTitles[n.Kind]
			if n.Subject != "" {
				title += ": " + n.Subject
			}
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", inline(title), paragraphs(n.Text))
		}
	}

	if len(r.Explanations) > 0 {
		b.WriteString("## Explanations\n\n")
		for _, e := range r.Explanations {
			fmt.Fprintf(&b, "### %s\n\n%s\n\n", inline(e.Topic), paragraphs(e.Text))
		}
	}

	if len(r.Questions) > 0 {
		b.WriteString("## Questions for your doctor\n\n")
		var notes []string
		seen := make(map[string]bool)
		for i, q := range r.Questions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, inline(q.Question))
			for _, note := range []string{q.Disclaimer, q.CallToAction} {
				if note != "" && !seen[note] {
					seen[note] = true
					notes = append(notes, note)
				}
			}
		}
		b.WriteString("\n")
		for _, note := range notes {
			fmt.Fprintf(&b, "_%s_\n\n", inline(note))
		}
	}

	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "> %s\n", inline(r.Disclaimer))
	return b.String()
}

func writeHeader(b *strings.Builder, r *entities.PreVisitReport) {
	fmt.Fprintf(b, "- **Patient:** %s\n", inline(r.PatientID))
	if r.Demographics != nil && r.Demographics.Name != "" {
		fmt.Fprintf(b, "- **Name:** %s\n", inline(r.Demographics.Name))
	}
	if r.AgeYears != nil {
		fmt.Fprintf(b, "- **Age:** %d\n", *r.AgeYears)
	}
	fmt.Fprintf(b, "- **Prepared:** %s\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	if r.AnalyzedAt != nil {
		fmt.Fprintf(b, "- **Records analyzed:** %s\n", r.AnalyzedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("\n")
}

var inlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// inline flattens text onto one line.
func inline(s string) string {
	return strings.TrimSpace(inlineReplacer.Replace(s))
}

// cell makes text safe inside a GFM table cell.
func cell(s string) string {
	return strings.ReplaceAll(inline(s), "|", `\|`)
}

// paragraphs keeps blank-line paragraph breaks and drops stray whitespace.
func paragraphs(s string) string {
	var parts []string
	for _, p := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

func withUnit(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if unit != "" {
		s += " " + unit
	}
	return s
}

func rangeText(low, high *float64, unit string) string {
	switch {
	case low != nil && high != nil:
		return strconv.FormatFloat(*low, 'f', -1, 64) + " to " + withUnit(*high, unit)
	case high != nil:
		return "up to " + withUnit(*high, unit)
	case low != nil:
		return "at least " + withUnit(*low, unit)
	}
	return "not reported"
}

func date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.DateOnly)
}
