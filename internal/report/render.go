package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"trivy-plugin-exposure-risk/internal/feed"
)

// Format of the rendered output.
type Format string

const (
	Table Format = "table"
	JSON  Format = "json"
	YAML  Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case Table, JSON, YAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q, expected table, json or yaml", s)
	}
}

// Render writes view to w. view is one of the *View types of this package.
func Render(w io.Writer, format Format, view any) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	case Table:
		return renderTable(w, view)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(w io.Writer, view any) error {
	var out string
	switch v := view.(type) {
	case AssessmentView:
		out = assessmentTable(v, nil)
	case RiskView:
		out = assessmentTable(v.AssessmentView, []table.Row{
			{"Asset value", fmt.Sprintf("%.4f", v.AssetValue)},
			{"Occurrence rate", fmt.Sprintf("%.4f", v.OccurrenceRate)},
			{"Risk", formatValue(v.Risk)},
		})
	case BatchView:
		out = batchTable(v)
	case TimelineView:
		out = timelineTable(v)
	case LEVView:
		out = levTable(v)
	default:
		return fmt.Errorf("cannot render %T as a table", view)
	}
	_, err := fmt.Fprintln(w, out)
	return err
}

func assessmentTable(v AssessmentView, extra []table.Row) string {
	tw := table.NewWriter()
	tw.SetTitle("%s on %s", v.CVE, v.Date)
	if v.Description != "" {
		tw.AppendRow(table.Row{"Description", text.WrapSoft(v.Description, 80)})
	}
	tw.AppendRows([]table.Row{
		{"Vector", orNotAvailable(v.Vector)},
		{"Severity", v.Severity},
		{"Impact (C/I/A)", fmt.Sprintf("%s/%s/%s", orDash(v.Confidentiality), orDash(v.Integrity), orDash(v.Availability))},
		{"Impact score", formatValue(v.Impact)},
	})
	tw.AppendSeparator()
	tw.AppendRows(probabilityRows(v.Probability))
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Exposure factor", formatValue(v.ExposureFactor)})
	if len(extra) > 0 {
		tw.AppendSeparator()
		tw.AppendRows(extra)
	}
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"Note", v.Caveat})
	if v.Error != "" {
		tw.AppendRow(table.Row{"Error", text.WrapSoft(v.Error, 80)})
	}
	return tw.Render()
}

func probabilityRows(p ProbabilityView) []table.Row {
	epssScore := "not available"
	if p.EPSS != nil {
		epssScore = fmt.Sprintf("%.4f (E:%s)", *p.EPSS, p.ExploitMaturity)
	} else if p.EPSSState == feed.Failed.String() {
		epssScore = "error"
	}
	kev := "no"
	switch {
	case p.KnownExploited:
		kev = "yes"
	case p.KEVState == feed.Failed.String():
		kev = "error"
	}
	return []table.Row{
		{"Disclosed", orNotAvailable(p.Disclosed)},
		{"EPSS", epssScore},
		{"KEV", kev},
		{"LEV", fmt.Sprintf("%.4f", p.LEV)},
		{"Composite probability", fmt.Sprintf("%.4f", p.Composite)},
	}
}

func batchTable(v BatchView) string {
	tw := table.NewWriter()
	tw.SetTitle("Batch risk on %s", v.Date)
	tw.AppendHeader(table.Row{"CVE", "Severity", "Impact", "Probability", "Exposure factor"})
	for _, a := range v.Assessments {
		tw.AppendRow(table.Row{a.CVE, a.Severity, formatValue(a.Impact), fmt.Sprintf("%.4f", a.Probability.Composite), formatValue(a.ExposureFactor)})
	}
	tw.AppendFooter(table.Row{"Mean EF", fmt.Sprintf("%.4f", v.MeanExposureFactor), "Asset value", fmt.Sprintf("%.4f", v.AssetValue), ""})
	tw.AppendFooter(table.Row{"Risk", fmt.Sprintf("%.4f", v.Risk), "Occurrence rate", fmt.Sprintf("%.4f", v.OccurrenceRate), ""})
	if len(v.Skipped) > 0 {
		tw.AppendFooter(table.Row{"Skipped", strings.Join(v.Skipped, ", "), "", "", ""})
	}
	return tw.Render()
}

func timelineTable(v TimelineView) string {
	tw := table.NewWriter()
	title := fmt.Sprintf("%s disclosed %s", v.CVE, v.Disclosed)
	if v.KEVAdded != "" {
		title += fmt.Sprintf(", known exploited since %s", v.KEVAdded)
	}
	tw.SetTitle("%s", title)
	tw.AppendHeader(table.Row{"Date", "Event", "Exposure factor"})
	for _, p := range v.Points {
		ef := formatValue(p.ExposureFactor)
		if p.Error != "" {
			ef += " (" + p.Error + ")"
		}
		tw.AppendRow(table.Row{p.Date, p.Kind, ef})
	}
	return tw.Render()
}

func levTable(v LEVView) string {
	tw := table.NewWriter()
	tw.SetTitle("%s cumulative exploitation probability on %s", v.CVE, v.Date)
	tw.AppendHeader(table.Row{"Date", "EPSS", "Weight"})
	for _, s := range v.Samples {
		tw.AppendRow(table.Row{formatDate(s.Date), fmt.Sprintf("%.4f", s.Value), fmt.Sprintf("%.4f", s.Weight)})
	}
	tw.AppendFooter(table.Row{"LEV", fmt.Sprintf("%.4f", v.Probability), fmt.Sprintf("%d of %d data points available", v.Retained, v.Attempted)})
	if v.Peak != nil {
		tw.AppendFooter(table.Row{"Peak", fmt.Sprintf("%.4f", v.Peak.Value), formatDate(v.Peak.Date)})
	}
	return tw.Render()
}

func orNotAvailable(s string) string {
	if s == "" {
		return "not available"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
