package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"codearena/internal/judge"
	"codearena/internal/models"
)

// fakeJudge scripts the judging service. SubmitBatch hands out sequential
// tokens unless submitErr is set; PollBatch replays pollScript, repeating the
// last step once exhausted.
type fakeJudge struct {
	mu          sync.Mutex
	submitErr   error
	submitCalls int
	lastJobs    []judge.Job
	pollScript  [][]judge.Result
	pollCalls   int
}

func (f *fakeJudge) SubmitBatch(ctx context.Context, jobs []judge.Job) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastJobs = jobs
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	tokens := make([]string, len(jobs))
	for i := range jobs {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}
	return tokens, nil
}

func (f *fakeJudge) PollBatch(ctx context.Context, tokens []string) ([]judge.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pollScript) == 0 {
		return nil, errors.New("no poll script configured")
	}
	step := f.pollScript[min(f.pollCalls, len(f.pollScript)-1)]
	f.pollCalls++

	// Only return results for tokens actually asked about, in the script's
	// order: callers must correlate by token, never by index.
	asked := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		asked[token] = true
	}
	var out []judge.Result
	for _, r := range step {
		if asked[r.Token] {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeStore is an in-memory SubmissionStore with the same compare-and-set
// semantics as the MySQL implementation.
type fakeStore struct {
	mu          sync.Mutex
	nextSubID   int
	nextRowID   int
	submissions map[int]*models.Submission
	rows        map[int][]models.SubmissionTestCase
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		submissions: make(map[int]*models.Submission),
		rows:        make(map[int][]models.SubmissionTestCase),
	}
}

func (f *fakeStore) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSubID++
	submission.ID = f.nextSubID
	submission.SubmittedAt = time.Now()
	copied := *submission
	f.submissions[submission.ID] = &copied
	return nil
}

func (f *fakeStore) CreateTestCases(ctx context.Context, testcases []models.SubmissionTestCase) ([]models.SubmissionTestCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SubmissionTestCase, len(testcases))
	for i, tc := range testcases {
		f.nextRowID++
		tc.ID = f.nextRowID
		out[i] = tc
		f.rows[tc.SubmissionID] = append(f.rows[tc.SubmissionID], tc)
	}
	return out, nil
}

func (f *fakeStore) AssignTokens(ctx context.Context, assignments []models.TokenAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range assignments {
		token := a.Token
		found := false
		for subID, rows := range f.rows {
			for i := range rows {
				if rows[i].ID == a.TestCaseID {
					f.rows[subID][i].Token = &token
					found = true
				}
			}
		}
		if !found {
			return fmt.Errorf("no test case with id %d", a.TestCaseID)
		}
	}
	return nil
}

func (f *fakeStore) GetSubmission(ctx context.Context, submissionID int) (*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.submissions[submissionID]
	if !ok {
		return nil, errors.New("submission not found")
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeStore) GetSubmissionForUser(ctx context.Context, submissionID, userID int) (*models.Submission, error) {
	sub, err := f.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, errors.New("submission not found")
	}
	return sub, nil
}

func (f *fakeStore) GetTestCasesBySubmission(ctx context.Context, submissionID int) ([]models.SubmissionTestCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.rows[submissionID]
	out := make([]models.SubmissionTestCase, len(rows))
	copy(out, rows)
	return out, nil
}

func (f *fakeStore) ApplyTestCaseResult(ctx context.Context, update models.TestCaseUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for subID, rows := range f.rows {
		for i := range rows {
			if rows[i].Token == nil || *rows[i].Token != update.Token {
				continue
			}
			if !models.IsProvisionalTestStatus(rows[i].Status) {
				return false, nil
			}
			f.rows[subID][i].Status = update.Status
			f.rows[subID][i].Stdout = update.Stdout
			f.rows[subID][i].Stderr = update.Stderr
			f.rows[subID][i].CompileOutput = update.CompileOutput
			f.rows[subID][i].Memory = update.Memory
			f.rows[subID][i].Time = update.Time
			return true, nil
		}
	}
	return false, fmt.Errorf("no test case with token %s", update.Token)
}

func (f *fakeStore) SetSubmissionStatus(ctx context.Context, submissionID int, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.submissions[submissionID]
	if !ok {
		return errors.New("submission not found")
	}
	if sub.Status == from {
		sub.Status = to
	}
	return nil
}

func (f *fakeStore) GetSubmissionsByUserAndProblem(ctx context.Context, userID, problemID int) ([]models.SubmissionListItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SubmissionListItem
	for _, sub := range f.submissions {
		if sub.UserID == userID && sub.ProblemID == problemID {
			out = append(out, models.SubmissionListItem{
				ID:          sub.ID,
				LanguageID:  sub.LanguageID,
				Status:      sub.Status,
				SubmittedAt: sub.SubmittedAt,
			})
		}
	}
	return out, nil
}

type fakeProblems struct {
	problems  map[string]*models.ProblemDetail
	testcases map[int][]models.TestCase
}

func (f *fakeProblems) GetProblemBySlug(ctx context.Context, slug string) (*models.ProblemDetail, error) {
	p, ok := f.problems[slug]
	if !ok {
		return nil, errors.New("problem not found")
	}
	return p, nil
}

func (f *fakeProblems) GetTestCases(ctx context.Context, problemID int) ([]models.TestCase, error) {
	return f.testcases[problemID], nil
}

type fakeLanguages struct {
	languages map[string]*models.Language
}

func (f *fakeLanguages) ResolveLanguage(ctx context.Context, name string) (*models.Language, error) {
	l, ok := f.languages[strings.ToLower(name)]
	if !ok {
		return nil, errors.New("language not found")
	}
	return l, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []int
	err      error
}

func (f *fakeQueue) Enqueue(ctx context.Context, submissionID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, submissionID)
	return nil
}

func fastPoll() judge.PollOptions {
	return judge.PollOptions{
		Timeout:       50 * time.Millisecond,
		Interval:      time.Millisecond,
		RetryInterval: time.Millisecond,
	}
}

func defaultProblems() *fakeProblems {
	return &fakeProblems{
		problems: map[string]*models.ProblemDetail{
			"two-sum": {ID: 1, Title: "Two Sum", Slug: "two-sum", Difficulty: "Easy"},
		},
		testcases: map[int][]models.TestCase{
			1: {
				{ID: 10, Position: 0, Input: "1 2", Expected: "3"},
				{ID: 11, Position: 1, Input: "2 3", Expected: "5"},
				{ID: 12, Position: 2, Input: "4 4", Expected: "8"},
			},
		},
	}
}

func defaultLanguages() *fakeLanguages {
	return &fakeLanguages{
		languages: map[string]*models.Language{
			"python": {ID: 1, Name: "Python", ExternalID: 71, IsActive: true},
			"cobol":  {ID: 2, Name: "Cobol", ExternalID: 77, IsActive: false},
		},
	}
}

func settled(token, status string, id int) judge.Result {
	stdout := "output"
	return judge.Result{
		Token:  token,
		Status: judge.Status{ID: id, Description: status},
		Stdout: &stdout,
	}
}

func acceptedResult(token string) judge.Result {
	return settled(token, "Accepted", judge.StatusAccepted)
}

func processingResult(token string) judge.Result {
	return judge.Result{Token: token, Status: judge.Status{ID: judge.StatusProcessing, Description: "Processing"}}
}

func newSubmissionService(store *fakeStore, j *fakeJudge, queue SweepQueue) *SubmissionService {
	return NewSubmissionService(store, defaultProblems(), defaultLanguages(), j, fastPoll(), queue)
}

func TestCreateDispatchesOneJobPerTestCase(t *testing.T) {
	store := newFakeStore()
	j := &fakeJudge{}
	queue := &fakeQueue{}
	svc := newSubmissionService(store, j, queue)

	sub, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
		Problem:    "two-sum",
		Language:   "Python",
		SourceCode: "print(sum(map(int, input().split())))",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if sub.Status != models.StatusPending {
		t.Errorf("new submission status = %q, want %q", sub.Status, models.StatusPending)
	}

	rows, _ := store.GetTestCasesBySubmission(context.Background(), sub.ID)
	if len(rows) != 3 {
		t.Fatalf("expected 3 tracked test cases, got %d", len(rows))
	}
	for i, row := range rows {
		if row.Position != i {
			t.Errorf("row %d position = %d", i, row.Position)
		}
		if row.Status != models.TestStatusInQueue {
			t.Errorf("row %d status = %q, want IN_QUEUE", i, row.Status)
		}
		if row.Token == nil {
			t.Errorf("row %d has no token after successful dispatch", i)
		} else if want := fmt.Sprintf("tok-%d", i); *row.Token != want {
			t.Errorf("row %d token = %q, want %q (positional assignment)", i, *row.Token, want)
		}
	}

	if len(j.lastJobs) != 3 {
		t.Fatalf("expected 3 jobs dispatched, got %d", len(j.lastJobs))
	}
	if j.lastJobs[1].Stdin != "2 3" || j.lastJobs[1].ExpectedOutput != "5" {
		t.Errorf("job 1 does not match test case 1: %+v", j.lastJobs[1])
	}
	if j.lastJobs[0].LanguageID != 71 {
		t.Errorf("job language id = %d, want 71", j.lastJobs[0].LanguageID)
	}

	if len(queue.enqueued) != 1 || queue.enqueued[0] != sub.ID {
		t.Errorf("expected submission %d enqueued for sweeping, got %v", sub.ID, queue.enqueued)
	}
}

func TestCreateUnsupportedLanguage(t *testing.T) {
	svc := newSubmissionService(newFakeStore(), &fakeJudge{}, nil)

	_, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
		Problem: "two-sum", Language: "Fortran", SourceCode: "x",
	})
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestCreateInactiveLanguage(t *testing.T) {
	svc := newSubmissionService(newFakeStore(), &fakeJudge{}, nil)

	_, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
		Problem: "two-sum", Language: "Cobol", SourceCode: "x",
	})
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage for inactive language, got %v", err)
	}
}

func TestCreateDispatchFailureLeavesRetryableState(t *testing.T) {
	store := newFakeStore()
	j := &fakeJudge{submitErr: errors.New("connection refused")}
	queue := &fakeQueue{}
	svc := newSubmissionService(store, j, queue)

	sub, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
		Problem: "two-sum", Language: "Python", SourceCode: "x",
	})
	if err != nil {
		t.Fatalf("dispatch failure must not fail the request, got %v", err)
	}
	if sub.Status != models.StatusPending {
		t.Errorf("submission status = %q, want PENDING", sub.Status)
	}

	rows, _ := store.GetTestCasesBySubmission(context.Background(), sub.ID)
	if len(rows) != 3 {
		t.Fatalf("row count changed on dispatch failure: %d", len(rows))
	}
	for i, row := range rows {
		if row.Token != nil {
			t.Errorf("row %d has token %q after failed dispatch", i, *row.Token)
		}
		if row.Status != models.TestStatusInQueue {
			t.Errorf("row %d status = %q, want IN_QUEUE", i, row.Status)
		}
	}
	if len(queue.enqueued) != 0 {
		t.Errorf("nothing should be enqueued when dispatch failed, got %v", queue.enqueued)
	}
}

func TestRefreshAllAcceptedPasses(t *testing.T) {
	store := newFakeStore()
	j := &fakeJudge{pollScript: [][]judge.Result{
		{acceptedResult("tok-0"), acceptedResult("tok-1"), acceptedResult("tok-2")},
	}}
	svc := newSubmissionService(store, j, nil)

	sub, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
		Problem: "two-sum", Language: "Python", SourceCode: "x",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	view, err := svc.Refresh(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if view.Status != models.StatusPassed {
		t.Errorf("status = %q, want PASSED", view.Status)
	}
	if len(view.Failing) != 0 {
		t.Errorf("expected no failing test cases, got %d", len(view.Failing))
	}
	for _, row := range view.TestCases {
		if row.Status != models.TestStatusAccepted {
			t.Errorf("row %d status = %q, want ACCEPTED", row.Position, row.Status)
		}
		if row.Stdout == nil {
			t.Errorf("row %d stdout not applied", row.Position)
		}
	}
}

func TestRefreshPartialSettlementStaysPending(t *testing.T) {
	store := newFakeStore()
	// Two accepted, one stuck in processing for the whole poll window.
	j := &fakeJudge{pollScript: [][]judge.Result{
		{acceptedResult("tok-0"), acceptedResult("tok-1"), processingResult("tok-2")},
	}}
	svc := newSubmissionService(store, j, nil)

	sub, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
		Problem: "two-sum", Language: "Python", SourceCode: "x",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	view, err := svc.Refresh(context.Background(), sub.ID)
	if !errors.Is(err, judge.ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout with partial settlement, got %v", err)
	}
	if view == nil {
		t.Fatal("expected best-known view alongside the timeout")
	}
	if view.Status != models.StatusPending {
		t.Errorf("status = %q, want PENDING", view.Status)
	}

	// The settled subset must be applied even though the batch timed out.
	accepted := 0
	for _, row := range view.TestCases {
		if row.Status == models.TestStatusAccepted {
			accepted++
		}
	}
	if accepted != 2 {
		t.Errorf("expected 2 accepted rows applied, got %d", accepted)
	}

	stored, _ := store.GetSubmission(context.Background(), sub.ID)
	if stored.Status != models.StatusPending {
		t.Errorf("persisted status = %q, want PENDING", stored.Status)
	}
}

func TestRefreshFailureSettlesAndShortCircuits(t *testing.T) {
	store := newFakeStore()
	j := &fakeJudge{pollScript: [][]judge.Result{
		{acceptedResult("tok-0"), settled("tok-1", "Wrong Answer", 4), acceptedResult("tok-2")},
	}}
	svc := newSubmissionService(store, j, nil)

	sub, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
		Problem: "two-sum", Language: "Python", SourceCode: "x",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	view, err := svc.Refresh(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if view.Status != models.StatusFailed {
		t.Errorf("status = %q, want FAILED", view.Status)
	}
	if len(view.Failing) != 1 || view.Failing[0].Status != models.TestStatusWrongAnswer {
		t.Errorf("expected one WRONG_ANSWER failing row, got %+v", view.Failing)
	}

	// A settled submission must be served without touching the judging
	// service again.
	pollsBefore := j.pollCalls
	again, err := svc.Refresh(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if again.Status != models.StatusFailed {
		t.Errorf("settled verdict changed to %q", again.Status)
	}
	if j.pollCalls != pollsBefore {
		t.Errorf("settled submission triggered %d extra polls", j.pollCalls-pollsBefore)
	}
}

func TestRefreshCorrelatesByTokenNotPosition(t *testing.T) {
	store := newFakeStore()
	// Results come back in reverse order; only tok-1 fails.
	j := &fakeJudge{pollScript: [][]judge.Result{
		{acceptedResult("tok-2"), settled("tok-1", "Wrong Answer", 4), acceptedResult("tok-0")},
	}}
	svc := newSubmissionService(store, j, nil)

	sub, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
		Problem: "two-sum", Language: "Python", SourceCode: "x",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), sub.ID); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	rows, _ := store.GetTestCasesBySubmission(context.Background(), sub.ID)
	for _, row := range rows {
		want := models.TestStatusAccepted
		if *row.Token == "tok-1" {
			want = models.TestStatusWrongAnswer
		}
		if row.Status != want {
			t.Errorf("row with token %s has status %q, want %q", *row.Token, row.Status, want)
		}
	}
}

func TestRefreshWithoutDispatchedTokens(t *testing.T) {
	store := newFakeStore()
	j := &fakeJudge{submitErr: errors.New("connection refused")}
	svc := newSubmissionService(store, j, nil)

	sub, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
		Problem: "two-sum", Language: "Python", SourceCode: "x",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = svc.Refresh(context.Background(), sub.ID)
	if !errors.Is(err, ErrNoTestCases) {
		t.Fatalf("expected ErrNoTestCases for tokenless submission, got %v", err)
	}
}

func TestRefreshForUserScopesToOwner(t *testing.T) {
	store := newFakeStore()
	j := &fakeJudge{pollScript: [][]judge.Result{
		{acceptedResult("tok-0"), acceptedResult("tok-1"), acceptedResult("tok-2")},
	}}
	svc := newSubmissionService(store, j, nil)

	sub, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
		Problem: "two-sum", Language: "Python", SourceCode: "x",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.RefreshForUser(context.Background(), sub.ID, 99); err == nil {
		t.Fatal("expected error refreshing another user's submission")
	}

	view, err := svc.RefreshForUser(context.Background(), sub.ID, 7)
	if err != nil {
		t.Fatalf("owner refresh: %v", err)
	}
	if view.Status != models.StatusPassed {
		t.Errorf("status = %q, want PASSED", view.Status)
	}
}

func TestHistory(t *testing.T) {
	store := newFakeStore()
	j := &fakeJudge{}
	svc := newSubmissionService(store, j, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.Create(context.Background(), 7, models.SubmissionRequest{
			Problem: "two-sum", Language: "Python", SourceCode: "x",
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	items, err := svc.History(context.Background(), 7, "two-sum")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 submissions, got %d", len(items))
	}

	items, err = svc.History(context.Background(), 99, "two-sum")
	if err != nil {
		t.Fatalf("History for other user: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no submissions for other user, got %d", len(items))
	}
}
