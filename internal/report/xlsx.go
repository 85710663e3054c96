package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	behaviorSheet = "Behavior"
)

var summaryHeader = []string{
	"Label", "Partition", "Prompt", "Tasks", "Mean", "Min", "Max",
	"Pass Rate", "First Tool Rate", "Recency Tasks", "Live First", "Mean Tokens", "Cost USD",
}

var behaviorHeader = []string{"Label", "Partition", "First Tool", "Rollouts"}

func writeXLSX(summaries []Summary, w io.Writer) error {
	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()

	if err := file.SetSheetName(file.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := file.NewSheet(behaviorSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	if err := writeRow(file, summarySheet, 1, toAny(summaryHeader)); err != nil {
		return err
	}
	for i, s := range summaries {
		row := []any{
			s.Label, s.Partition, s.Fingerprint, s.Tasks, s.Mean, s.Min, s.Max,
			s.PassRate, s.FirstToolRate, s.Behavior.RecencyTasks, s.Behavior.LiveFirst, s.MeanTokens, s.TotalCostUSD,
		}
		if err := writeRow(file, summarySheet, i+2, row); err != nil {
			return err
		}
	}

	if err := writeRow(file, behaviorSheet, 1, toAny(behaviorHeader)); err != nil {
		return err
	}
	row := 2
	for _, s := range summaries {
		for _, name := range s.Behavior.firstTools() {
			if err := writeRow(file, behaviorSheet, row, []any{s.Label, s.Partition, name, s.Behavior.FirstTool[name]}); err != nil {
				return err
			}
			row++
		}
	}

	if err := file.SetColWidth(summarySheet, "A", "C", 24); err != nil {
		return fmt.Errorf("set width: %w", err)
	}
	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeRow(file *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("convert cell: %w", err)
		}
		if err := file.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("write %s: %w", cell, err)
		}
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
