package report

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/geograpy/geograpy/internal/tracker"
)

// Sheet names of the exported workbook.
const (
	ProgressSheet = "Progress"
	DailySheet    = "Daily XP"
)

// WriteWorkbook writes st as an XLSX workbook with a summary sheet, a
// daily XP sheet and a line chart of the daily series.
func WriteWorkbook(w io.Writer, st tracker.Stats) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ProgressSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeProgress(f, st); err != nil {
		return err
	}

	if _, err := f.NewSheet(DailySheet); err != nil {
		return fmt.Errorf("create daily sheet: %w", err)
	}
	if err := writeDaily(f, st); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// xpCell keeps XP numeric when it fits in an int64 and falls back to the
// exact decimal text otherwise.
func xpCell(n *big.Int) any {
	switch {
	case n == nil:
		return 0
	case n.IsInt64():
		return n.Int64()
	}
	return n.String()
}

func writeProgress(f *excelize.File, st tracker.Stats) error {
	rows := [][]any{
		{"User", st.UserID},
		{"Difficulty", st.Difficulty.Name},
		{"Difficulty key", st.DifficultyKey},
		{"Level", st.Progress.Level},
		{"Total XP", xpCell(st.Progress.TotalXP)},
		{"Current XP", xpCell(st.Progress.CurrentXP)},
		{"XP for next level", xpCell(st.Progress.XPForNext)},
		{"Progress %", st.Progress.ProgressPercentage},
		{"Exams completed", st.ExamsCompleted},
		{"Average accuracy %", st.AverageAccuracy},
		{"Last accuracy %", st.LastAccuracy},
		{"Correct answers", st.Lifetime.Correct},
		{"Questions answered", st.Lifetime.Total},
		{"Titles", strings.Join(st.Rewards.Titles, ", ")},
		{"Badges", strings.Join(st.Rewards.Badges, ", ")},
		{"Features", strings.Join(st.Rewards.Features, ", ")},
	}
	if st.NextUnlock > 0 {
		rows = append(rows, []any{"Next reward at level", st.NextUnlock})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ProgressSheet, cell, &row); err != nil {
			return fmt.Errorf("write progress row %d: %w", i+1, err)
		}
	}
	return f.SetColWidth(ProgressSheet, "A", "A", 22)
}

func writeDaily(f *excelize.File, st tracker.Stats) error {
	header := []any{"Date", "XP"}
	if err := f.SetSheetRow(DailySheet, "A1", &header); err != nil {
		return fmt.Errorf("write daily header: %w", err)
	}
	for i, d := range st.DailyXP {
		row := []any{d.Date, d.XP}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(DailySheet, cell, &row); err != nil {
			return fmt.Errorf("write daily row %d: %w", i+2, err)
		}
	}
	if len(st.DailyXP) == 0 {
		return nil
	}

	last := len(st.DailyXP) + 1
	sheet := "'" + DailySheet + "'"
	if err := f.AddChart(DailySheet, "D2", &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{{
			Name:       sheet + "!$B$1",
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", sheet, last),
			Values:     fmt.Sprintf("%s!$B$2:$B$%d", sheet, last),
		}},
		Title: []excelize.RichTextRun{{Text: "XP Ganada por Día"}},
	}); err != nil {
		return fmt.Errorf("add daily chart: %w", err)
	}
	return nil
}
