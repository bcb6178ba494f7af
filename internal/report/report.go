// Package report exports course progress as spreadsheets.
package report

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-academy/internal/progress"
)

const (
	progressSheet = "Progress"
	summarySheet  = "Summary"
)

// Row is one learner's line in a course report.
type Row struct {
	LearnerID string
	Course    progress.CourseProgress
	Trainings map[string]progress.TrainingProgress // keyed by training ID
}

// Lister is the part of progress.Store a report reads.
type Lister interface {
	ListCourseProgress(ctx context.Context, courseID string) ([]progress.CourseProgress, error)
	ListTrainingProgress(ctx context.Context, trainingID string) ([]progress.TrainingProgress, error)
}

// BuildRows collects one row per learner enrolled in the course, ordered by
// learner ID.
func BuildRows(ctx context.Context, store Lister, course progress.CourseDefinition) ([]Row, error) {
	enrolled, err := store.ListCourseProgress(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("list course progress: %w", err)
	}

	rows := make([]Row, len(enrolled))
	index := make(map[string]int, len(enrolled))
	for i, cp := range enrolled {
		rows[i] = Row{LearnerID: cp.LearnerID, Course: cp, Trainings: make(map[string]progress.TrainingProgress)}
		index[cp.LearnerID] = i
	}

	for _, trainingID := range course.TrainingIDs {
		records, err := store.ListTrainingProgress(ctx, trainingID)
		if err != nil {
			return nil, fmt.Errorf("list training progress %s: %w", trainingID, err)
		}
		for _, tp := range records {
			if i, ok := index[tp.LearnerID]; ok {
				rows[i].Trainings[trainingID] = tp
			}
		}
	}
	return rows, nil
}

// WriteCourseReport writes an xlsx workbook with a per-learner progress sheet
// and a summary sheet.
func WriteCourseReport(w io.Writer, course progress.CourseDefinition, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", progressSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeProgressSheet(f, course, rows); err != nil {
		return err
	}
	if err := writeSummarySheet(f, course, rows); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeProgressSheet(f *excelize.File, course progress.CourseDefinition, rows []Row) error {
	header := []any{"Learner", "Course progress", "Completed", "Completed at", "Enrolled at"}
	for _, trainingID := range course.TrainingIDs {
		header = append(header, trainingID)
	}
	if err := f.SetSheetRow(progressSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(progressSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, row := range rows {
		values := []any{
			row.LearnerID,
			row.Course.Progress,
			row.Course.IsCompleted,
			formatTime(row.Course.CompletedAt),
			formatTime(&row.Course.EnrolledAt),
		}
		for _, trainingID := range course.TrainingIDs {
			tp, ok := row.Trainings[trainingID]
			if !ok {
				values = append(values, 0)
				continue
			}
			values = append(values, tp.Progress)
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(progressSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(progressSheet, "A", "A", 24); err != nil {
		return err
	}
	return f.SetPanes(progressSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeSummarySheet(f *excelize.File, course progress.CourseDefinition, rows []Row) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	completed := 0
	sum := 0
	for _, row := range rows {
		sum += row.Course.Progress
		if row.Course.IsCompleted {
			completed++
		}
	}
	average := 0.0
	if len(rows) > 0 {
		average = math.Round(float64(sum)/float64(len(rows))*10) / 10
	}

	lines := [][]any{
		{"Course", course.ID},
		{"Title", course.Title},
		{"Trainings", len(course.TrainingIDs)},
		{"Learners", len(rows)},
		{"Completed", completed},
		{"Average progress", average},
	}
	for i, line := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &line); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return f.SetColWidth(summarySheet, "A", "A", 20)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
