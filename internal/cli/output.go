package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/bissquit/incident-impact/internal/impact"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	titleCase = cases.Title(language.English)
	printer   = message.NewPrinter(language.English)
)

// Table renders rows as aligned columns.
type Table struct {
	headers []string
	rows    [][]string
}

// NewTable creates a new table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cols ...string) {
	t.rows = append(t.rows, cols)
}

// Render writes the table to w.
func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(t.headers, "\t"))

	sep := make([]string, len(t.headers))
	for i, h := range t.headers {
		sep[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(sep, "\t"))

	for _, row := range t.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	return tw.Flush()
}

func printJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// severityLabel renders a severity for humans, e.g. "Critical".
func severityLabel(s domain.Severity) string {
	if s == "" {
		return "-"
	}
	return titleCase.String(string(s))
}

// money formats whole currency units with thousands separators.
func money(v int64) string {
	return printer.Sprintf("$%d", v)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func age(created, now time.Time) string {
	if created.IsZero() {
		return "-"
	}
	d := now.Sub(created)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m"
	case d < 48*time.Hour:
		return strconv.Itoa(int(d.Hours())) + "h"
	default:
		return strconv.Itoa(int(d.Hours()/24)) + "d"
	}
}

func renderIncidents(w io.Writer, incs []domain.Incident, now time.Time) error {
	t := NewTable("ID", "SEVERITY", "STATUS", "AGE", "ASSIGNED", "TITLE")
	for _, inc := range incs {
		assigned := "-"
		if inc.AssignedTo != nil && *inc.AssignedTo != "" {
			assigned = *inc.AssignedTo
		}
		t.AddRow(
			truncate(inc.ID, 8),
			severityLabel(inc.Severity),
			string(inc.Status),
			age(inc.CreatedAt, now),
			assigned,
			truncate(inc.Title, 48),
		)
	}
	return t.Render(w)
}

func renderReport(w io.Writer, report impact.Report) error {
	fmt.Fprintf(w, "Accrued cost:       %s (%d active)\n", money(report.Impact.Total), report.Impact.ActiveCount)
	fmt.Fprintf(w, "Cost per minute:    %s\n", money(report.Impact.PerMinute))
	fmt.Fprintf(w, "Potential savings:  %s (annual %s)\n", money(report.PotentialSavings), money(report.AnnualSavings))
	fmt.Fprintf(w, "Resolution rate:    %d%% (%s)\n", report.Analytics.ResolutionRate, report.Analytics.Trend)
	fmt.Fprintf(w, "Avg resolution:     %s\n\n", report.Analytics.AverageResolutionTime)

	t := NewTable("SEVERITY", "ACTIVE", "COST")
	for _, sev := range impact.Severities() {
		b := report.Breakdown[sev]
		t.AddRow(severityLabel(sev), strconv.Itoa(b.Count), money(b.Cost))
	}
	if err := t.Render(w); err != nil {
		return err
	}

	if len(report.Accruals) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	t = NewTable("ID", "SEVERITY", "ELAPSED", "COST", "TITLE")
	for _, a := range report.Accruals {
		t.AddRow(
			truncate(a.ID, 8),
			severityLabel(a.Severity),
			strconv.FormatInt(a.ElapsedMinutes, 10)+"m",
			money(a.Cost),
			truncate(a.Title, 48),
		)
	}
	return t.Render(w)
}
