// Package export renders the booking dashboard as an Excel workbook.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"recpay/internal/models"
	"recpay/internal/store"

	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	summarySheet  = "Summary"
)

var bookingHeaders = []string{
	"Reference", "Service", "Category", "Amount (KES)",
	"Date", "Time", "Phone", "Status", "Transaction Code", "Created At",
}

// Workbook builds the two-sheet export: a booking ledger and the dashboard
// summary. The caller owns the returned file and must Close it.
func Workbook(bookings []*models.Booking, summary store.Summary) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	if err := writeBookings(f, bookings); err != nil {
		return nil, err
	}
	if err := writeSummary(f, summary); err != nil {
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func writeBookings(f *excelize.File, bookings []*models.Booking) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %v", err)
	}

	for i, header := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, header)
		_ = f.SetCellStyle(bookingsSheet, cell, cell, headerStyle)
	}

	for i, b := range bookings {
		row := i + 2
		values := []any{
			b.ID, b.ServiceName, b.Category, b.Amount,
			b.Date, b.Time, b.UserPhone, b.Status, b.TransactionCode,
			b.CreatedAt.Format("02.01.2006 15:04"),
		}
		for col, val := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(bookingsSheet, cell, val)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 16)
	_ = f.SetColWidth(bookingsSheet, "B", "C", 22)
	_ = f.SetColWidth(bookingsSheet, "D", "H", 14)
	_ = f.SetColWidth(bookingsSheet, "I", "J", 20)
	return nil
}

func writeSummary(f *excelize.File, summary store.Summary) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}

	rows := [][2]any{
		{"Total bookings", summary.Total},
		{"Pending", summary.Pending},
		{"Confirmed", summary.Confirmed},
		{"Failed", summary.Failed},
		{"Cancelled", summary.Cancelled},
		{"Revenue (KES)", summary.Revenue},
	}

	row := 1
	for _, pair := range rows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), pair[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), pair[1])
		row++
	}

	row++
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "Confirmed by category")
	row++
	for _, cat := range summary.Categories {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), cat.Name)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), cat.Count)
		row++
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 24)
	_ = f.SetColWidth(summarySheet, "B", "B", 14)
	return nil
}

// Save writes the workbook into dir with a timestamped name and returns the
// full path.
func Save(f *excelize.File, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	fileName := fmt.Sprintf("bookings_export_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}
	return filePath, nil
}
