// Package export writes reviewer-facing artifacts for finished import jobs.
package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/prepworks/examimport/internal/importer"
)

const reviewSheet = "Questions"

var reviewHeader = []string{
	"Number", "Stem", "Choice A", "Choice B", "Choice C", "Choice D",
	"Answer", "Page", "Crop Image", "Fallback", "Warnings",
}

// WriteReviewSheet saves a review workbook to disk.
func WriteReviewSheet(path string, job *importer.Job, rows []importer.QuestionRow) error {
	f, err := BuildReviewSheet(job, rows)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save review sheet: %w", err)
	}
	return nil
}

// BuildReviewSheet builds one spreadsheet row per question so a reviewer can
// check a NEEDS_REVIEW job without opening the database. The caller owns
// closing the returned workbook.
func BuildReviewSheet(job *importer.Job, rows []importer.QuestionRow) (*excelize.File, error) {
	f := excelize.NewFile()

	f.SetSheetName("Sheet1", reviewSheet)

	if err := f.SetSheetRow(reviewSheet, "A1", &reviewHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		var a, b, c, d string
		if row.Choices != nil {
			a, b, c, d = row.Choices.A, row.Choices.B, row.Choices.C, row.Choices.D
		}
		values := []any{
			row.Number, row.Stem, a, b, c, d,
			strings.ToUpper(row.Answer), row.SourcePage, row.CropImage,
			row.CropFallback, strings.Join(row.Warnings, "; "),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(reviewSheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("write question %d: %w", row.Number, err)
		}
	}

	if err := f.SetColWidth(reviewSheet, "B", "B", 60); err != nil {
		f.Close()
		return nil, fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(reviewSheet, "K", "K", 40); err != nil {
		f.Close()
		return nil, fmt.Errorf("set column width: %w", err)
	}

	summary := fmt.Sprintf("%s (%d questions, status %s)", job.ExamTitle, len(rows), job.Status)
	if err := f.SetCellValue(reviewSheet, fmt.Sprintf("A%d", len(rows)+3), summary); err != nil {
		f.Close()
		return nil, fmt.Errorf("write summary: %w", err)
	}

	return f, nil
}
