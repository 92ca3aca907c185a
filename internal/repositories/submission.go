package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"codearena/internal/models"
	"codearena/internal/services"

	"github.com/jmoiron/sqlx"
)

// submissionRepository implements services.SubmissionStore on MySQL.
type submissionRepository struct {
	db *sqlx.DB
}

func NewSubmissionRepository(db *sqlx.DB) services.SubmissionStore {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	query := `INSERT INTO submissions (user_id, problem_id, language_id, source_code, status)
              VALUES (?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		submission.UserID,
		submission.ProblemID,
		submission.LanguageID,
		submission.SourceCode,
		submission.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	submission.ID = int(id)
	return nil
}

// CreateTestCases inserts the snapshot rows in one transaction, preserving
// their order, and returns them with ids filled in.
func (r *submissionRepository) CreateTestCases(ctx context.Context, testcases []models.SubmissionTestCase) ([]models.SubmissionTestCase, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO submission_testcases (submission_id, position, input, expected_output, status)
              VALUES (?, ?, ?, ?, ?)`

	for i := range testcases {
		result, err := tx.ExecContext(ctx, query,
			testcases[i].SubmissionID,
			testcases[i].Position,
			testcases[i].Input,
			testcases[i].ExpectedOutput,
			testcases[i].Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create submission test case %d: %w", i, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to get last insert ID: %w", err)
		}
		testcases[i].ID = int(id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit submission test cases: %w", err)
	}

	return testcases, nil
}

func (r *submissionRepository) AssignTokens(ctx context.Context, assignments []models.TokenAssignment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE submission_testcases SET token = ? WHERE id = ?`
	for _, a := range assignments {
		if _, err := tx.ExecContext(ctx, query, a.Token, a.TestCaseID); err != nil {
			return fmt.Errorf("failed to assign token to test case %d: %w", a.TestCaseID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token assignments: %w", err)
	}

	return nil
}

func (r *submissionRepository) GetSubmission(ctx context.Context, submissionID int) (*models.Submission, error) {
	query := `SELECT id, user_id, problem_id, language_id, source_code, status, submitted_at, updated_at
              FROM submissions WHERE id = ?`

	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, submissionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("submission not found: %d", submissionID)
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	return &submission, nil
}

func (r *submissionRepository) GetSubmissionForUser(ctx context.Context, submissionID, userID int) (*models.Submission, error) {
	query := `SELECT id, user_id, problem_id, language_id, source_code, status, submitted_at, updated_at
              FROM submissions WHERE id = ? AND user_id = ?`

	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, submissionID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("submission not found or access denied: %d", submissionID)
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	return &submission, nil
}

func (r *submissionRepository) GetTestCasesBySubmission(ctx context.Context, submissionID int) ([]models.SubmissionTestCase, error) {
	query := `SELECT id, submission_id, position, input, expected_output, token, status,
                  stdout, stderr, compile_output, memory, time_sec, updated_at
              FROM submission_testcases WHERE submission_id = ? ORDER BY position`

	var testcases []models.SubmissionTestCase
	if err := r.db.SelectContext(ctx, &testcases, query, submissionID); err != nil {
		return nil, fmt.Errorf("failed to get submission test cases: %w", err)
	}

	return testcases, nil
}

// ApplyTestCaseResult settles one row by token. The status guard makes the
// update compare-and-set: a row that already left the provisional states is
// never rewritten, so two pollers racing on the same submission cannot
// double-apply or disagree.
func (r *submissionRepository) ApplyTestCaseResult(ctx context.Context, update models.TestCaseUpdate) (bool, error) {
	query := `UPDATE submission_testcases
              SET status = ?, stdout = ?, stderr = ?, compile_output = ?, memory = ?, time_sec = ?
              WHERE token = ? AND status IN ('IN_QUEUE', 'PROCESSING')`

	result, err := r.db.ExecContext(ctx, query,
		update.Status,
		update.Stdout,
		update.Stderr,
		update.CompileOutput,
		update.Memory,
		update.Time,
		update.Token,
	)
	if err != nil {
		return false, fmt.Errorf("failed to apply test case result: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected > 0, nil
}

// SetSubmissionStatus moves the aggregate verdict with a guard on the
// previous status, keeping the PENDING -> PASSED/FAILED transition
// monotonic under concurrent refreshes.
func (r *submissionRepository) SetSubmissionStatus(ctx context.Context, submissionID int, from, to string) error {
	query := `UPDATE submissions SET status = ? WHERE id = ? AND status = ?`

	if _, err := r.db.ExecContext(ctx, query, to, submissionID, from); err != nil {
		return fmt.Errorf("failed to update submission status: %w", err)
	}

	return nil
}

func (r *submissionRepository) GetSubmissionsByUserAndProblem(ctx context.Context, userID, problemID int) ([]models.SubmissionListItem, error) {
	query := `SELECT id, language_id, status, submitted_at
              FROM submissions
              WHERE user_id = ? AND problem_id = ?
              ORDER BY submitted_at DESC`

	var submissions []models.SubmissionListItem
	if err := r.db.SelectContext(ctx, &submissions, query, userID, problemID); err != nil {
		return nil, fmt.Errorf("failed to get user submissions: %w", err)
	}

	return submissions, nil
}
