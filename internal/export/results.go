package export

import (
	"fmt"
	"io"

	"quiz-attempt-service/internal/domain"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName  = "Results"
	timeLayout = "2006-01-02 15:04:05"
)

var headers = []string{
	"Participant", "Status", "Score", "Total Questions", "Percentage",
	"Started At", "Completed At", "Time Taken (seconds)",
}

// WriteResults renders the organizer results of one quiz as an XLSX workbook.
func WriteResults(w io.Writer, results domain.Results) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	if err := setRow(f, 1, toCells(headers)); err != nil {
		return err
	}
	total := results.Quiz.QuestionCount
	for i, a := range results.Attempts {
		row := []interface{}{a.ParticipantName, string(a.State), "", total, "", a.CreatedAt.Format(timeLayout), "", ""}
		if a.Score != nil {
			row[2] = *a.Score
		}
		if a.Percentage != nil {
			row[4] = *a.Percentage
		}
		if a.FinishedAt != nil {
			row[6] = a.FinishedAt.Format(timeLayout)
		}
		if a.TimeTakenSeconds != nil {
			row[7] = *a.TimeTakenSeconds
		}
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, rowNum int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheetName, cell, &values)
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
