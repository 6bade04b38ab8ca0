package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"callscore-go/internal/pipeline"
	"callscore-go/internal/types"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// renderSummary prints the counters of one run.
func renderSummary(res pipeline.Result) string {
	s := res.Summary
	rows := [][]string{
		{"calls", strconv.Itoa(s.Calls)},
		{"eligible", strconv.Itoa(s.Eligible())},
		{"too short", strconv.Itoa(s.TooShort)},
		{"downloaded", strconv.Itoa(s.Downloaded)},
		{"transcription errors", strconv.Itoa(s.TranscriptionErrors)},
		{"analyzed", strconv.Itoa(s.Analyzed)},
		{"analysis failed", strconv.Itoa(s.AnalysisFailed)},
		{"scored", strconv.Itoa(s.Scored)},
		{"duplicates", strconv.Itoa(s.Duplicates)},
		{"messaged", strconv.Itoa(s.Messaged)},
		{"already delivered", strconv.Itoa(s.AlreadyDelivered)},
		{"delivery failures", strconv.Itoa(s.DeliveryFailures)},
	}
	reasons := make([]string, 0, len(s.ByReason))
	for r := range s.ByReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		rows = append(rows, []string{r, strconv.Itoa(s.ByReason[types.Reason(r)])})
	}
	title := fmt.Sprintf("batch %s, run %s", res.Window.BatchKey, res.RunID)
	return title + "\n" + renderTable([]string{"Counter", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
