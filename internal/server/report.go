package server

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-quiz/internal/quiz"
)

// Report sheet names.
const (
	SheetSummary = "Summary"
	SheetReview  = "Review"
)

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	v := session.View()
	if v.State != quiz.StateCompleted.String() {
		writeError(w, http.StatusConflict, "not_completed", "quiz is not completed", false)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", reportDisposition(v.CourseID))
	if err := WriteReport(w, v); err != nil {
		slog.Error("failed to write report", "session_id", r.PathValue("id"), "error", err)
	}
}

// reportDisposition names the download after the course. Ids that cannot be
// carried in a header parameter fall back to a generic name.
func reportDisposition(courseID string) string {
	if d := mime.FormatMediaType("attachment", map[string]string{"filename": "quiz-" + courseID + ".xlsx"}); d != "" {
		return d
	}
	return mime.FormatMediaType("attachment", map[string]string{"filename": "quiz.xlsx"})
}

// WriteReport renders a completed session view as an xlsx workbook with a
// score summary and a per-question review.
func WriteReport(w io.Writer, v quiz.View) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	summary := [][]any{
		{"Course", v.CourseTitle},
		{"Course ID", v.CourseID},
		{"Mode", v.Mode},
		{"Attempt", v.AttemptID},
		{"Correct", v.Score.Correct},
		{"Total", v.Score.Total},
		{"Score (%)", v.Score.Percentage},
		{"Points", v.Score.Points},
		{"Band", v.Score.Band},
	}
	for i, row := range summary {
		if err := setRow(f, SheetSummary, i+1, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetReview); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	header := []any{"#", "Question", "Your answer", "Correct answer", "Result", "Explanation"}
	if err := setRow(f, SheetReview, 1, header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	if err := f.SetCellStyle(SheetReview, "A1", "F1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(SheetReview, "B", "B", 48); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	for i, item := range v.Review {
		result := "Incorrect"
		if item.IsCorrect {
			result = "Correct"
		}
		row := []any{i + 1, item.Prompt, item.AnswerText, item.CorrectText, result, item.Explanation}
		if err := setRow(f, SheetReview, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
