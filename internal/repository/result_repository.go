package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/upl-platform/exam-portal/internal/model"
)

// ResultFilter narrows ledger queries. Zero values match everything;
// PerPage <= 0 returns every row.
type ResultFilter struct {
	ExamID  string
	Faculty string
	Page    int
	PerPage int
}

// ResultSummary aggregates ledger scores.
type ResultSummary struct {
	Count   int64   `json:"count"`
	Average float64 `json:"average"`
	Passed  int64   `json:"passed"`
}

// ResultRepository is the ledger of results submitted through the portal.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Create inserts sr and fills its ID and CreatedAt.
func (r *ResultRepository) Create(ctx context.Context, sr *model.StoredResult) error {
	var (
		id        string
		createdAt time.Time
	)
	res := sr.Result
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_results
		   (exam_id, student_id, student_name, faculty, score, total_questions,
		    answers, submitted_at, completed_at, delivered, trigger)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id::text, created_at`,
		res.ExamID, res.StudentID, res.StudentName, res.Faculty, res.Score, res.TotalQuestions,
		res.Answers, nullableTime(res.SubmittedAt), nullableTime(res.CompletedAt), sr.Delivered, string(sr.Trigger),
	).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	sr.ID = id
	sr.CreatedAt = model.NewTimestamp(createdAt)
	return nil
}

// MarkDelivered flags a ledger row as acknowledged by the exam backend.
func (r *ResultRepository) MarkDelivered(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_results SET delivered = TRUE WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// List returns ledger rows, newest first, with the total matching count.
func (r *ResultRepository) List(ctx context.Context, f ResultFilter) ([]model.StoredResult, int64, error) {
	where, args := f.where()

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exam_results`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	query := `SELECT id::text, exam_id, student_id, student_name, faculty, score, total_questions,
	                 answers, submitted_at, completed_at, delivered, trigger, created_at
	          FROM exam_results` + where + ` ORDER BY created_at DESC`
	if f.PerPage > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		args = append(args, f.PerPage, (page-1)*f.PerPage)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := make([]model.StoredResult, 0)
	for rows.Next() {
		var (
			sr                   model.StoredResult
			trigger              string
			submitted, completed *time.Time
			createdAt            time.Time
		)
		if err := rows.Scan(&sr.ID, &sr.Result.ExamID, &sr.Result.StudentID, &sr.Result.StudentName,
			&sr.Result.Faculty, &sr.Result.Score, &sr.Result.TotalQuestions, &sr.Result.Answers,
			&submitted, &completed, &sr.Delivered, &trigger, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan result: %w", err)
		}
		if submitted != nil {
			sr.Result.SubmittedAt = model.NewTimestamp(*submitted)
		}
		if completed != nil {
			sr.Result.CompletedAt = model.NewTimestamp(*completed)
		}
		sr.Trigger = model.SubmitTrigger(trigger)
		sr.CreatedAt = model.NewTimestamp(createdAt)
		results = append(results, sr)
	}
	return results, total, rows.Err()
}

// Summarize aggregates scores of the matching rows. passMark is inclusive.
func (r *ResultRepository) Summarize(ctx context.Context, f ResultFilter, passMark int) (*ResultSummary, error) {
	where, args := f.where()
	args = append(args, passMark)

	s := &ResultSummary{}
	err := r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*),
		                    COALESCE(AVG(score), 0)::float8,
		                    COUNT(*) FILTER (WHERE score >= $%d)
		             FROM exam_results%s`, len(args), where),
		args...,
	).Scan(&s.Count, &s.Average, &s.Passed)
	if err != nil {
		return nil, fmt.Errorf("summarize results: %w", err)
	}
	return s, nil
}

func (f ResultFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.ExamID != "" {
		args = append(args, f.ExamID)
		conds = append(conds, fmt.Sprintf("exam_id = $%d", len(args)))
	}
	if f.Faculty != "" {
		args = append(args, f.Faculty)
		conds = append(conds, fmt.Sprintf("faculty = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullableTime(t model.Timestamp) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}
