// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/pdiddy/gerberpack/internal/history"
	"github.com/pdiddy/gerberpack/pkg/types"
)

// renderTable draws rows under header in the rounded style. Columns listed
// in right (1-based) are right-aligned; headers always align left. Short
// rows are padded so every column renders.
func renderTable(header table.Row, rows []table.Row, right ...int) string {
	if len(header) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	for _, row := range rows {
		for len(row) < len(header) {
			row = append(row, "")
		}
		tw.AppendRow(row[:len(header)])
	}

	configs := make([]table.ColumnConfig, len(header))
	for i := range configs {
		configs[i] = table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
	}
	for _, n := range right {
		if n >= 1 && n <= len(configs) {
			configs[n-1].Align = text.AlignRight
		}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// renderSummary formats a run as a per-rule table followed by totals.
func renderSummary(s types.RunSummary) string {
	rows := make([]table.Row, 0, len(s.Outcomes))
	for _, o := range s.Outcomes {
		header := ""
		if o.HeaderInjected {
			header = "yes"
		}
		detail := strings.Join(o.Matches, ", ")
		if o.Error != "" {
			detail = o.Error
		}
		rows = append(rows, table.Row{o.Rule, o.Target, o.Status, o.Source, header, detail})
	}

	var b strings.Builder
	if len(rows) > 0 {
		b.WriteString(renderTable(
			table.Row{"Rule", "Target", "Status", "Source", "Header", "Matched"},
			rows))
		b.WriteString("\n")
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	fmt.Fprintf(&b, "Run %s: %s (%d matched, %d skipped, %d failed)\n",
		shortID(s.ID), s.State, s.Matched(), s.Skipped(), s.Failed())
	if s.Bundle != "" {
		fmt.Fprintf(&b, "Bundle: %s (%d entries)\n", s.Bundle, s.Entries)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.Error)
	}
	return b.String()
}

// renderRules lists a ruleset the way it was loaded.
func renderRules(rules []types.Rule) string {
	rows := make([]table.Row, 0, len(rules))
	for i, r := range rules {
		tokens := make([]string, 0, len(r.Tokens))
		for _, t := range r.Tokens {
			tokens = append(tokens, t.Field+"="+t.Value)
		}
		rows = append(rows, table.Row{
			i + 1,
			r.Name,
			r.Target,
			strings.Join(tokens, "\n"),
			strings.Join(r.Header, "\n"),
			r.HeaderID,
		})
	}
	return renderTable(
		table.Row{"#", "Name", "Target", "Tokens", "Header", "Header ID"},
		rows, 1)
}

// renderRuns lists history records, newest first.
func renderRuns(runs []history.RunRecord) string {
	rows := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, table.Row{
			shortID(r.ID),
			r.StartedAt.Local().Format(time.DateTime),
			r.State,
			r.Matched,
			r.Skipped,
			r.Failed,
			r.Bundle,
		})
	}
	return renderTable(
		table.Row{"Run", "Started", "State", "Matched", "Skipped", "Failed", "Bundle"},
		rows, 4, 5, 6)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
