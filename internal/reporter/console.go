package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"sarg-check/internal/model"
	"sarg-check/internal/report"
)

type ConsoleReporter struct {
	out io.Writer
}

func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleReporter{out: w}
}

func (r *ConsoleReporter) Report(reports []model.SegmentReport) error {
	totals := Tally(reports)
	if totals.Blocking+totals.Degrading+totals.Informational == 0 {
		fmt.Fprintf(r.out, "%s %d statements analyzed, all sargable.\n", color.GreenString("✔"), totals.Statements)
		return nil
	}

	for _, sr := range reports {
		if len(sr.Report.AllFindings()) == 0 {
			continue
		}
		// Format: file:line: [VERDICT] SQL
		fmt.Fprintf(r.out, "%s: [%s] %s\n", sr.Segment.Location, verdictColor(sr.Report.Sargability).Sprint(sr.Report.Sargability),
			color.CyanString(truncate(oneLine(sr.Segment.SQL), 80)))

		for _, c := range sr.Report.Clauses {
			for _, f := range c.Findings {
				r.finding(f)
			}
			if len(c.Findings) > 0 {
				line := fmt.Sprintf("\t%s: %s", c.Kind, c.Sargability)
				if c.AccessPath != "" {
					line += " via " + c.AccessPath
				}
				fmt.Fprintln(r.out, color.New(color.Faint).Sprint(line))
			}
		}
		for _, f := range sr.Report.Statement {
			r.finding(f)
		}
		fmt.Fprintln(r.out)
	}

	fmt.Fprintf(r.out, "%s %d statements analyzed: %d sargable, %d partially sargable, %d non-sargable.\n",
		summaryMark(totals), totals.Statements, totals.Sargable, totals.PartiallySargable, totals.NonSargable)
	fmt.Fprintf(r.out, "  findings: %d blocking, %d degrading, %d informational\n",
		totals.Blocking, totals.Degrading, totals.Informational)
	return nil
}

func (r *ConsoleReporter) finding(f model.Finding) {
	fmt.Fprintf(r.out, "\t%s %s %s\n", severityColor(f.Severity).Sprintf("[%s]", f.Label()), f.Expr, f.Message)
	if f.Index != "" {
		fmt.Fprintf(r.out, "\t\tIndex: %s\n", f.Index)
	}
	if f.Rewrite != "" {
		fmt.Fprintf(r.out, "\t\tSuggestion: %s\n", f.Rewrite)
	}
}

func severityColor(s model.Severity) *color.Color {
	switch s {
	case model.SeverityBlocks:
		return color.New(color.FgRed, color.Bold)
	case model.SeverityDegrades:
		return color.New(color.FgYellow, color.Bold)
	}
	return color.New(color.FgBlue, color.Bold)
}

func verdictColor(s model.Sargability) *color.Color {
	switch s {
	case model.NonSargable:
		return color.New(color.FgRed, color.Bold)
	case model.PartiallySargable:
		return color.New(color.FgYellow, color.Bold)
	}
	return color.New(color.FgGreen)
}

func summaryMark(t Totals) string {
	if t.NonSargable > 0 {
		return color.RedString("✘")
	}
	return color.YellowString("!")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// Totals aggregates verdicts and finding counts over many reports.
type Totals struct {
	Statements        int `json:"statements"`
	Sargable          int `json:"sargable"`
	PartiallySargable int `json:"partially_sargable"`
	NonSargable       int `json:"non_sargable"`
	report.Summary
}

// Tally computes the totals of reports.
func Tally(reports []model.SegmentReport) Totals {
	var t Totals
	for _, sr := range reports {
		t.Statements++
		switch sr.Report.Sargability {
		case model.NonSargable:
			t.NonSargable++
		case model.PartiallySargable:
			t.PartiallySargable++
		default:
			t.Sargable++
		}
		s := report.Summarize(sr.Report)
		t.Blocking += s.Blocking
		t.Degrading += s.Degrading
		t.Informational += s.Informational
	}
	return t
}
