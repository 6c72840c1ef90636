package export

import (
	"fmt"
	"io"
	"time"

	"medislot/pkg/model"

	"github.com/xuri/excelize/v2"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetName  = "Bookings"
	timeLayout = "2006-01-02 15:04"
)

var headers = []string{"Booking ID", "Status", "Slot start", "Slot end", "Patient", "Email", "Booked at", "Cancelled at"}

var columnWidths = map[string]float64{
	"A": 26, "B": 12, "C": 18, "D": 18, "E": 24, "F": 30, "G": 18, "H": 18,
}

// WriteLedger renders views as a single sheet workbook. Times are shown in loc.
func WriteLedger(w io.Writer, views []*model.BookingView, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("error removing default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheetName, "A1", lastHeader, headerStyle); err != nil {
		return err
	}

	for i, v := range views {
		row := i + 2
		values := []any{
			v.ID,
			string(v.Status),
			v.Slot.StartAt.In(loc).Format(timeLayout),
			v.Slot.EndAt.In(loc).Format(timeLayout),
			"",
			"",
			v.CreatedAt.In(loc).Format(timeLayout),
			"",
		}
		if v.Actor != nil {
			values[4] = v.Actor.Name
			values[5] = v.Actor.Email
		}
		if v.CancelledAt != nil {
			values[7] = v.CancelledAt.In(loc).Format(timeLayout)
		}

		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
	}

	for col, width := range columnWidths {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}
