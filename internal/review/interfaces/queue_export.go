package interfaces

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	review "bms-cloud/internal/review/domain"
)

// BuildQueuePDF renders the review queue as a PDF.
func BuildQueuePDF(items []review.Item, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Association Review Queue")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Items: %d", len(items)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(35, 6, "Item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Snapshot", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Outcome", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Reason", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Candidates", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Opened", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, item := range items {
		pdf.CellFormat(35, 6, item.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, item.SnapshotID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, item.Kind, "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 6, item.Reason, "1", 0, "L", false, 0, "")
		pdf.CellFormat(55, 6, strings.Join(item.CandidateIDs, ", "), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, item.CreatedAt.UTC().Format("2006-01-02 15:04"), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildQueueXLSX renders the review queue as an XLSX workbook.
func BuildQueueXLSX(items []review.Item, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "queue"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Item", "Snapshot", "Status", "Outcome", "Reason", "Candidates", "Matched", "System", "Opened", "Resolved"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, header)
	}

	for i, item := range items {
		row := i + 2
		resolved := ""
		if !item.ResolvedAt.IsZero() {
			resolved = item.ResolvedAt.UTC().Format(time.RFC3339)
		}
		values := []any{
			item.ID,
			item.SnapshotID,
			item.Status,
			item.Kind,
			item.Reason,
			strings.Join(item.CandidateIDs, ", "),
			item.MatchedID,
			item.SystemID,
			item.CreatedAt.UTC().Format(time.RFC3339),
			resolved,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	summarySheet := "summary"
	f.NewSheet(summarySheet)
	_ = f.SetCellValue(summarySheet, "A1", "Association Review Queue")
	_ = f.SetCellValue(summarySheet, "A3", "Generated")
	_ = f.SetCellValue(summarySheet, "B3", generatedAt.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "Items")
	_ = f.SetCellValue(summarySheet, "B4", len(items))

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
