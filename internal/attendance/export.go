package attendance

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/clubhouse/internal/club"
)

const rosterSheet = "Roster"

var exportHeaders = []string{"Name", "Email", "Venmo", "Registered", "Tardies", "Absences", "Strikes", "Late", "Absent"}

// ExportXLSX writes the roster as a spreadsheet. The Late and Absent columns
// refer to date and are left blank when date is nil.
func ExportXLSX(users []club.User, date *club.Date) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(rosterSheet)
	if err != nil {
		return nil, fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("removing default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FF8A00"},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	f.SetColWidth(rosterSheet, "A", "C", 24)
	for i, h := range exportHeaders {
		f.SetCellValue(rosterSheet, cell(i, 1), h)
	}
	f.SetCellStyle(rosterSheet, cell(0, 1), cell(len(exportHeaders)-1, 1), headerStyle)

	for r, u := range users {
		row := r + 2
		values := []any{u.Name(), u.Email, u.Venmo, u.Registered, len(u.Tardies), len(u.Absences), len(u.Strikes)}
		if date != nil {
			values = append(values, yesNo(u.Tardy(*date)), yesNo(u.Absent(*date)))
		}
		for c, v := range values {
			f.SetCellValue(rosterSheet, cell(c, row), v)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf, nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
