// Package export renders occurrence projections for spreadsheet tools.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"fintrack/internal/core"
)

const upcomingSheet = "Upcoming"

var upcomingHeader = []any{"Date", "Description", "Amount", "Kind", "Requires approval"}

// WriteUpcomingXLSX writes occurrences as a single-sheet workbook with a
// trailing total row.
func WriteUpcomingXLSX(w io.Writer, occurrences []core.Occurrence) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", upcomingSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(upcomingSheet, "A1", &upcomingHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, o := range occurrences {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{o.Date.String(), o.Description, o.Amount.InexactFloat64(), string(o.Kind), o.RequiresApproval}
		if err := f.SetSheetRow(upcomingSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if n := len(occurrences); n > 0 {
		totalRow := n + 2
		if err := f.SetCellValue(upcomingSheet, fmt.Sprintf("B%d", totalRow), "Total"); err != nil {
			return err
		}
		if err := f.SetCellFormula(upcomingSheet, fmt.Sprintf("C%d", totalRow), fmt.Sprintf("SUM(C2:C%d)", n+1)); err != nil {
			return fmt.Errorf("write total: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
