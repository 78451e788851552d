package service

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/upl-platform/exam-portal/internal/model"
	"github.com/upl-platform/exam-portal/internal/repository"
	"github.com/xuri/excelize/v2"
)

const resultsSheet = "Résultats"

var exportHeader = []interface{}{
	"ID Examen", "Nom Étudiant", "Score", "Total Questions", "Bonnes réponses", "Date de complétion",
}

// ResultStore reads the results ledger.
type ResultStore interface {
	List(ctx context.Context, f repository.ResultFilter) ([]model.StoredResult, int64, error)
	Summarize(ctx context.Context, f repository.ResultFilter, passMark int) (*repository.ResultSummary, error)
}

// ReportSummary aggregates the listed results.
type ReportSummary struct {
	Count    int64   `json:"count"`
	Average  float64 `json:"average"`
	Passed   int64   `json:"passed"`
	PassRate float64 `json:"pass_rate"`
	PassMark int     `json:"pass_mark"`
}

// StoredResultView is a ledger row as shown to staff.
type StoredResultView struct {
	ID        string              `json:"id"`
	Result    ResultView          `json:"result"`
	Trigger   model.SubmitTrigger `json:"trigger"`
	Delivered bool                `json:"delivered"`
	CreatedAt model.Timestamp     `json:"created_at"`
}

// ResultsReport is one page of ledger rows plus the summary of all matches.
type ResultsReport struct {
	Results []StoredResultView `json:"results"`
	Summary ReportSummary      `json:"summary"`
}

// ReportService serves the staff view of the results ledger.
type ReportService struct {
	store    ResultStore
	passMark int
}

// NewReportService creates a new ReportService.
func NewReportService(store ResultStore, passMark int) *ReportService {
	return &ReportService{store: store, passMark: passMark}
}

// ListResults returns a page of results and the total number of matches.
func (s *ReportService) ListResults(ctx context.Context, f repository.ResultFilter) (*ResultsReport, int64, error) {
	rows, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	summary, err := s.summary(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	report := &ResultsReport{Results: make([]StoredResultView, len(rows)), Summary: *summary}
	for i, row := range rows {
		report.Results[i] = StoredResultView{
			ID:        row.ID,
			Result:    NewResultView(row.Result, s.passMark),
			Trigger:   row.Trigger,
			Delivered: row.Delivered,
			CreatedAt: row.CreatedAt,
		}
	}
	return report, total, nil
}

func (s *ReportService) summary(ctx context.Context, f repository.ResultFilter) (*ReportSummary, error) {
	agg, err := s.store.Summarize(ctx, f, s.passMark)
	if err != nil {
		return nil, fmt.Errorf("summarize results: %w", err)
	}
	out := &ReportSummary{
		Count:    agg.Count,
		Average:  round1(agg.Average),
		Passed:   agg.Passed,
		PassMark: s.passMark,
	}
	if agg.Count > 0 {
		out.PassRate = round1(100 * float64(agg.Passed) / float64(agg.Count))
	}
	return out, nil
}

// Export writes every matching result as an .xlsx workbook.
func (s *ReportService) Export(ctx context.Context, f repository.ResultFilter, w io.Writer) error {
	f.Page, f.PerPage = 0, 0
	rows, _, err := s.store.List(ctx, f)
	if err != nil {
		return fmt.Errorf("list results: %w", err)
	}

	book := excelize.NewFile()
	defer book.Close()

	if err := book.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := book.SetSheetRow(resultsSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = book.SetCellStyle(resultsSheet, "A1", "F1", bold)
	}
	_ = book.SetColWidth(resultsSheet, "A", "F", 20)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		view := NewResultView(row.Result, s.passMark)
		completed := row.Result.CompletedAt
		if completed.IsZero() {
			completed = row.Result.SubmittedAt
		}
		values := []interface{}{
			row.Result.ExamID,
			row.Result.StudentName,
			row.Result.Score,
			row.Result.TotalQuestions,
			view.CorrectAnswers,
			completed.String(),
		}
		if err := book.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := book.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ExportFilename names the download for the day of now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("resultats_%s.xlsx", now.Format("2006-01-02"))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
