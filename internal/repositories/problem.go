package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"codearena/internal/logger"
	"codearena/internal/models"
	"codearena/internal/services"

	"github.com/gosimple/slug"
	"github.com/jmoiron/sqlx"
)

type ProblemRepository interface {
	GetProblems(ctx context.Context) ([]models.ProblemListItem, error)
	GetProblemBySlug(ctx context.Context, slug string) (*models.ProblemDetail, error)
	GetTestCases(ctx context.Context, problemID int) ([]models.TestCase, error)
	CreateProblem(ctx context.Context, draft *models.ProblemDraft, userID int) (*models.ProblemDetail, error)
}

type problemRepository struct {
	db    *sqlx.DB
	cache services.Cache
}

func NewProblemRepository(db *sqlx.DB, cache services.Cache) ProblemRepository {
	return &problemRepository{db: db, cache: cache}
}

func (r *problemRepository) GetProblems(ctx context.Context) ([]models.ProblemListItem, error) {
	query := `SELECT id, title, slug, difficulty FROM problems ORDER BY id`

	var problems []models.ProblemListItem
	if err := r.db.SelectContext(ctx, &problems, query); err != nil {
		return nil, fmt.Errorf("failed to get problems: %w", err)
	}

	return problems, nil
}

func (r *problemRepository) GetProblemBySlug(ctx context.Context, problemSlug string) (*models.ProblemDetail, error) {
	query := `SELECT id, title, slug, description, difficulty, sample_input, sample_output
              FROM problems WHERE slug = ?`

	var problem models.ProblemDetail
	if err := r.db.GetContext(ctx, &problem, query, problemSlug); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("problem not found: %s", problemSlug)
		}
		return nil, fmt.Errorf("failed to get problem: %w", err)
	}

	statsQuery := `
        SELECT
            COUNT(*) as total_submissions,
            COUNT(CASE WHEN status = 'PASSED' THEN 1 END) as accepted_submissions
        FROM submissions
        WHERE problem_id = ?`

	var stats struct {
		TotalSubmissions    int `db:"total_submissions"`
		AcceptedSubmissions int `db:"accepted_submissions"`
	}
	if err := r.db.GetContext(ctx, &stats, statsQuery, problem.ID); err != nil {
		return nil, fmt.Errorf("failed to get submission stats: %w", err)
	}

	problem.TotalSubmissions = stats.TotalSubmissions
	problem.AcceptedSubmissions = stats.AcceptedSubmissions
	if stats.TotalSubmissions > 0 {
		problem.AcceptanceRate = (float64(stats.AcceptedSubmissions) / float64(stats.TotalSubmissions)) * 100
	}

	return &problem, nil
}

func (r *problemRepository) GetTestCases(ctx context.Context, problemID int) ([]models.TestCase, error) {
	cacheKey := fmt.Sprintf("problem:%d:testcases", problemID)

	var testCases []models.TestCase
	if err := r.cache.Get(ctx, cacheKey, &testCases); err == nil {
		logger.Log.Debug("Cache hit, returning testcases")
		return testCases, nil // Cache hit
	}
	logger.Log.Debug("Test cases not in cache, retrieving from DB")

	query := `SELECT id, position, input, expected_output FROM test_cases
              WHERE problem_id = ? ORDER BY position`

	if err := r.db.SelectContext(ctx, &testCases, query, problemID); err != nil {
		return nil, fmt.Errorf("failed to get test cases: %w", err)
	}

	_ = r.cache.Set(ctx, cacheKey, testCases, 1*time.Hour)

	return testCases, nil
}

// CreateProblem persists a verified draft in one transaction: the problem
// row, its ordered test cases, and its reference solutions. The draft must
// already have passed the verification pipeline.
func (r *problemRepository) CreateProblem(ctx context.Context, draft *models.ProblemDraft, userID int) (*models.ProblemDetail, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	problemSlug := slug.Make(draft.Title)

	insertProblem := `INSERT INTO problems (title, slug, description, difficulty, sample_input, sample_output, created_by)
                      VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, insertProblem,
		draft.Title, problemSlug, draft.Description, draft.Difficulty,
		draft.SampleInput, draft.SampleOutput, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create problem: %w", err)
	}

	problemID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	insertTestCase := `INSERT INTO test_cases (problem_id, position, input, expected_output) VALUES (?, ?, ?, ?)`
	for i, tc := range draft.TestCases {
		if _, err := tx.ExecContext(ctx, insertTestCase, problemID, i, tc.Input, tc.Expected); err != nil {
			return nil, fmt.Errorf("failed to create test case %d: %w", i, err)
		}
	}

	insertSolution := `INSERT INTO reference_solutions (problem_id, language_name, source_code) VALUES (?, ?, ?)`
	for language, source := range draft.ReferenceSolutions {
		if _, err := tx.ExecContext(ctx, insertSolution, problemID, language, source); err != nil {
			return nil, fmt.Errorf("failed to store reference solution for %s: %w", language, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit problem: %w", err)
	}

	return &models.ProblemDetail{
		ID:           int(problemID),
		Title:        draft.Title,
		Slug:         problemSlug,
		Description:  draft.Description,
		Difficulty:   draft.Difficulty,
		SampleInput:  draft.SampleInput,
		SampleOutput: draft.SampleOutput,
	}, nil
}
