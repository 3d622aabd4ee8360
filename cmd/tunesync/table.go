package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"tunesync/internal/runstate"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func runHistoryTable(runs []runstate.RunState) string {
	headers := []string{"RUN ID", "TRACK", "STATUS", "STEP", "CONF", "ELAPSED"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		confidence := "-"
		elapsed := "-"
		if run.Result != nil {
			confidence = formatConfidence(run.Result.Confidence)
			elapsed = formatElapsed(run.Result.ElapsedSeconds)
		}
		rows = append(rows, []string{
			run.RunID,
			truncate(run.Request.Source.String(), 40),
			string(run.Status),
			string(run.CurrentStep),
			confidence,
			elapsed,
		})
	}
	return renderTable(headers, rows, aligns)
}

func formatConfidence(value float64) string {
	if value <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", value)
}
