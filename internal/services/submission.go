package services

import (
	"context"
	"errors"
	"fmt"

	"codearena/internal/judge"
	"codearena/internal/logger"
	"codearena/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrUnsupportedLanguage means the requested language is not registered
	// or not active. Surfaced to the caller with no side effects.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrNoTestCases means a status refresh was requested for a submission
	// whose dispatch never succeeded: no test case ever received a token,
	// so there is nothing to poll yet.
	ErrNoTestCases = errors.New("no dispatched test cases to poll")
)

// LanguageResolver maps a user-facing language name onto the judging
// service's language id.
type LanguageResolver interface {
	ResolveLanguage(ctx context.Context, name string) (*models.Language, error)
}

// ProblemSource is the read contract the pipelines need from the problem
// store: slug lookup at submission time and the ordered test cases.
type ProblemSource interface {
	GetProblemBySlug(ctx context.Context, slug string) (*models.ProblemDetail, error)
	GetTestCases(ctx context.Context, problemID int) ([]models.TestCase, error)
}

// SubmissionStore is the write side of the pipeline. ApplyTestCaseResult
// must be compare-and-set on the provisional statuses so racing pollers
// never double-apply a settled result.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, submission *models.Submission) error
	CreateTestCases(ctx context.Context, testcases []models.SubmissionTestCase) ([]models.SubmissionTestCase, error)
	AssignTokens(ctx context.Context, assignments []models.TokenAssignment) error
	GetSubmission(ctx context.Context, submissionID int) (*models.Submission, error)
	GetSubmissionForUser(ctx context.Context, submissionID, userID int) (*models.Submission, error)
	GetTestCasesBySubmission(ctx context.Context, submissionID int) ([]models.SubmissionTestCase, error)
	ApplyTestCaseResult(ctx context.Context, update models.TestCaseUpdate) (bool, error)
	SetSubmissionStatus(ctx context.Context, submissionID int, from, to string) error
	GetSubmissionsByUserAndProblem(ctx context.Context, userID, problemID int) ([]models.SubmissionListItem, error)
}

// SweepQueue lets the pipeline hand freshly dispatched submissions to the
// background sweepers so a verdict settles even if the client never polls.
type SweepQueue interface {
	Enqueue(ctx context.Context, submissionID int) error
}

type SubmissionService struct {
	store     SubmissionStore
	problems  ProblemSource
	languages LanguageResolver
	judge     judge.Client
	poll      judge.PollOptions
	sweeper   SweepQueue // optional
}

func NewSubmissionService(
	store SubmissionStore,
	problems ProblemSource,
	languages LanguageResolver,
	judgeClient judge.Client,
	poll judge.PollOptions,
	sweeper SweepQueue,
) *SubmissionService {
	return &SubmissionService{
		store:     store,
		problems:  problems,
		languages: languages,
		judge:     judgeClient,
		poll:      poll,
		sweeper:   sweeper,
	}
}

// dispatchItem pins a job to the row it was built from, so token assignment
// never depends on anything but this pairing.
type dispatchItem struct {
	row models.SubmissionTestCase
	job judge.Job
}

// Create runs the submission pipeline: resolve the language, create the
// submission, snapshot every problem test case into a tracked row, then
// dispatch the whole batch and assign tokens positionally. Judging is
// asynchronous: the caller gets the submission back as soon as the rows
// exist, and a dispatch failure leaves everything in a tokenless, retryable
// state instead of failing the request.
func (s *SubmissionService) Create(ctx context.Context, userID int, req models.SubmissionRequest) (*models.Submission, error) {
	problem, err := s.problems.GetProblemBySlug(ctx, req.Problem)
	if err != nil {
		return nil, err
	}

	language, err := s.resolveActive(ctx, req.Language)
	if err != nil {
		return nil, err
	}

	testcases, err := s.problems.GetTestCases(ctx, problem.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test cases for problem %d: %w", problem.ID, err)
	}
	if len(testcases) == 0 {
		return nil, fmt.Errorf("problem %s has no test cases", problem.Slug)
	}

	submission := &models.Submission{
		UserID:     userID,
		ProblemID:  problem.ID,
		LanguageID: language.ID,
		SourceCode: req.SourceCode,
		Status:     models.StatusPending,
	}
	if err := s.store.CreateSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	// Snapshot rows are fixed before any dispatch is attempted: a dispatch
	// failure must never change the row count.
	rows := make([]models.SubmissionTestCase, len(testcases))
	for i, tc := range testcases {
		rows[i] = models.SubmissionTestCase{
			SubmissionID:   submission.ID,
			Position:       i,
			Input:          tc.Input,
			ExpectedOutput: tc.Expected,
			Status:         models.TestStatusInQueue,
		}
	}
	rows, err = s.store.CreateTestCases(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to create submission test cases: %w", err)
	}

	items := make([]dispatchItem, len(rows))
	jobs := make([]judge.Job, len(rows))
	for i, row := range rows {
		job := judge.Job{
			LanguageID:     language.ExternalID,
			SourceCode:     req.SourceCode,
			Stdin:          row.Input,
			ExpectedOutput: row.ExpectedOutput,
		}
		items[i] = dispatchItem{row: row, job: job}
		jobs[i] = job
	}

	tokens, err := s.judge.SubmitBatch(ctx, jobs)
	if err != nil {
		// Retryable state: submission stays PENDING, every row stays
		// IN_QUEUE without a token. The caller still gets the id.
		logger.Log.Warn("Judge dispatch failed, submission left pending",
			zap.Int("submission_id", submission.ID),
			zap.Error(err))
		return submission, nil
	}

	assignments := make([]models.TokenAssignment, len(items))
	for i, item := range items {
		assignments[i] = models.TokenAssignment{
			TestCaseID: item.row.ID,
			Token:      tokens[i],
		}
	}
	if err := s.store.AssignTokens(ctx, assignments); err != nil {
		return nil, fmt.Errorf("failed to assign judge tokens: %w", err)
	}

	if s.sweeper != nil {
		if err := s.sweeper.Enqueue(ctx, submission.ID); err != nil {
			logger.Log.Warn("Failed to enqueue submission for status sweep",
				zap.Int("submission_id", submission.ID),
				zap.Error(err))
		}
	}

	logger.Log.Info("Submission dispatched",
		zap.Int("submission_id", submission.ID),
		zap.Int("testcases", len(rows)),
		zap.String("language", language.Name))

	return submission, nil
}

// RefreshForUser is the owner-scoped status check.
func (s *SubmissionService) RefreshForUser(ctx context.Context, submissionID, userID int) (*models.SubmissionStatusView, error) {
	if _, err := s.store.GetSubmissionForUser(ctx, submissionID, userID); err != nil {
		return nil, err
	}
	return s.Refresh(ctx, submissionID)
}

// Refresh runs the status poller for one submission: poll the outstanding
// tokens, fold settled results onto their rows by token, recompute the
// aggregate verdict, and return the refreshed view. A settled submission is
// returned as-is without touching the judging service, which is what makes
// the verdict monotonic. On poll timeout the settled subset is still applied
// and the best-known state is returned alongside judge.ErrPollTimeout.
func (s *SubmissionService) Refresh(ctx context.Context, submissionID int) (*models.SubmissionStatusView, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	if submission.Status != models.StatusPending {
		return s.buildView(ctx, submission.ID, submission.Status)
	}

	rows, err := s.store.GetTestCasesBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	dispatched := 0
	var pending []string
	for _, row := range rows {
		if row.Token == nil {
			continue
		}
		dispatched++
		if models.IsProvisionalTestStatus(row.Status) {
			pending = append(pending, *row.Token)
		}
	}
	if dispatched == 0 {
		return nil, ErrNoTestCases
	}

	var pollErr error
	if len(pending) > 0 {
		results, err := judge.PollUntilSettled(ctx, s.judge, pending, s.poll)
		if err != nil && !errors.Is(err, judge.ErrPollTimeout) {
			return nil, err
		}
		pollErr = err

		for _, result := range results {
			if !result.Settled() {
				continue
			}
			applied, err := s.store.ApplyTestCaseResult(ctx, models.TestCaseUpdate{
				Token:         result.Token,
				Status:        models.TestStatusFromJudge(result.Status.ID, result.Status.Description),
				Stdout:        result.Stdout,
				Stderr:        result.Stderr,
				CompileOutput: result.CompileOutput,
				Memory:        result.Memory,
				Time:          result.Time,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to apply result for token %s: %w", result.Token, err)
			}
			if !applied {
				// A concurrent poller settled this row first; fine either way.
				logger.Log.Debug("Test case result already applied",
					zap.Int("submission_id", submissionID),
					zap.String("token", result.Token))
			}
		}
	}

	status, err := s.recomputeStatus(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	view, err := s.buildView(ctx, submissionID, status)
	if err != nil {
		return nil, err
	}
	return view, pollErr
}

// History lists a user's submissions for one problem, newest first.
func (s *SubmissionService) History(ctx context.Context, userID int, problemSlug string) ([]models.SubmissionListItem, error) {
	problem, err := s.problems.GetProblemBySlug(ctx, problemSlug)
	if err != nil {
		return nil, err
	}
	return s.store.GetSubmissionsByUserAndProblem(ctx, userID, problem.ID)
}

func (s *SubmissionService) resolveActive(ctx context.Context, name string) (*models.Language, error) {
	language, err := s.languages.ResolveLanguage(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, name)
	}
	if !language.IsActive {
		return nil, fmt.Errorf("%w: %s is inactive", ErrUnsupportedLanguage, name)
	}
	return language, nil
}

// recomputeStatus derives the aggregate verdict from the current full row
// set and persists it guarded on PENDING, so a settled verdict can never be
// overwritten by a racing poller.
func (s *SubmissionService) recomputeStatus(ctx context.Context, submissionID int) (string, error) {
	rows, err := s.store.GetTestCasesBySubmission(ctx, submissionID)
	if err != nil {
		return "", err
	}

	statuses := make([]string, len(rows))
	for i, row := range rows {
		statuses[i] = row.Status
	}

	status := models.AggregateStatus(statuses)
	if status != models.StatusPending {
		if err := s.store.SetSubmissionStatus(ctx, submissionID, models.StatusPending, status); err != nil {
			return "", fmt.Errorf("failed to persist submission status: %w", err)
		}
		logger.Log.Info("Submission verdict settled",
			zap.Int("submission_id", submissionID),
			zap.String("status", status))
	}
	return status, nil
}

func (s *SubmissionService) buildView(ctx context.Context, submissionID int, status string) (*models.SubmissionStatusView, error) {
	rows, err := s.store.GetTestCasesBySubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	var failing []models.SubmissionTestCase
	for _, row := range rows {
		if !models.IsProvisionalTestStatus(row.Status) && row.Status != models.TestStatusAccepted {
			failing = append(failing, row)
		}
	}

	return &models.SubmissionStatusView{
		SubmissionID: submissionID,
		Status:       status,
		TestCases:    rows,
		Failing:      failing,
	}, nil
}
