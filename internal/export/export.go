// Package export renders a schedule's reservation list as an .xlsx workbook
// for staff.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sakif/reservations/internal/model"
)

// ContentType is the MIME type of the workbook WriteReservations produces.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxSheetName is Excel's limit on sheet name length.
const maxSheetName = 31

var columns = []string{"Reservation ID", "User ID", "Nickname", "Email", "Reserved At"}

// WriteReservations writes one sheet named after the schedule with a row per
// reservation, in the order given. Emails are written as they appear in the
// views, so callers decide what the reader may see.
func WriteReservations(w io.Writer, detail *model.ScheduleDetail) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(detail.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	if err := writeRow(f, sheet, 1, toAny(columns)); err != nil {
		return err
	}
	if err := boldHeader(f, sheet); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, r := range detail.Reservations {
		row := []any{r.ID, r.UserID, r.User.Nickname, r.User.Email, r.CreatedAt.UTC().Format(time.RFC3339)}
		if err := writeRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheet, "A", "E", 28); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", row, err)
	}
	return nil
}

func boldHeader(f *excelize.File, sheet string) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", end, style)
}

// sheetName strips characters Excel rejects and truncates to 31 runes.
func sheetName(title string) string {
	out := make([]rune, 0, maxSheetName)
	for _, r := range title {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			continue
		}
		out = append(out, r)
		if len(out) == maxSheetName {
			break
		}
	}
	if len(out) == 0 {
		return "Reservations"
	}
	return string(out)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
