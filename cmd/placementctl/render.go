package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/okian/placement/internal/domain/allocation"
	"github.com/okian/placement/internal/domain/model"
	"github.com/okian/placement/internal/domain/quota"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	okColor      = color.New(color.FgGreen)
)

func heading(w io.Writer, title string) {
	_, _ = headingColor.Fprintf(w, "\n=== %s ===\n", title)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	return table
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', 4, 64) }

func renderPlacements(w io.Writer, placements []model.Placement) {
	heading(w, "Placements")
	table := newTable(w, "Candidate", "Opportunity", "Group", "Score")
	for _, p := range placements {
		table.Append([]string{p.CandidateID, p.OpportunityID, p.Group.String(), formatFloat(p.Score)})
	}
	table.Render()
}

func renderQuotaReport(w io.Writer, report quota.Report) {
	heading(w, "Quota fulfillment")
	keys := make([]string, 0, len(report))
	for k := range report {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	table := newTable(w, "Quota", "Required", "Achieved", "Share %", "Met")
	for _, k := range keys {
		f := report[model.QuotaKey(k)]
		met := "yes"
		if !f.Met() {
			met = "no"
		}
		table.Append([]string{k, strconv.Itoa(f.Required), strconv.Itoa(f.Achieved), fmt.Sprintf("%.1f", f.Percentage), met})
	}
	table.Render()
}

func renderShortfalls(w io.Writer, shortfalls []allocation.Shortfall) {
	heading(w, "Quota shortfalls")
	table := newTable(w, "Quota", "Required", "Available", "Missing")
	for _, s := range shortfalls {
		table.Append([]string{s.Key.String(), strconv.Itoa(s.Required), strconv.Itoa(s.Available), strconv.Itoa(s.Missing())})
	}
	table.Render()
}

func renderCounts(w io.Writer, title, label string, counts map[string]int) {
	heading(w, title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	table := newTable(w, label, "Count")
	for _, k := range keys {
		name := k
		if name == "" {
			name = "(none)"
		}
		table.Append([]string{name, strconv.Itoa(counts[k])})
	}
	table.Render()
}

func renderWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		_, _ = warnColor.Fprintf(w, "warning: %s\n", msg)
	}
}
