package models

import (
	"errors"
	"strings"
	"time"
)

// Aggregate verdict of a submission. A submission starts PENDING and moves
// to PASSED or FAILED exactly once; the poller never reverts a settled
// verdict.
const (
	StatusPending = "PENDING"
	StatusPassed  = "PASSED"
	StatusFailed  = "FAILED"
)

// Per-test-case statuses. IN_QUEUE and PROCESSING are provisional, the rest
// are terminal.
const (
	TestStatusInQueue           = "IN_QUEUE"
	TestStatusProcessing        = "PROCESSING"
	TestStatusAccepted          = "ACCEPTED"
	TestStatusWrongAnswer       = "WRONG_ANSWER"
	TestStatusRuntimeError      = "RUNTIME_ERROR"
	TestStatusCompilationError  = "COMPILATION_ERROR"
	TestStatusTimeLimitExceeded = "TIME_LIMIT_EXCEEDED"
)

type Submission struct {
	ID          int       `db:"id" json:"id"`
	UserID      int       `db:"user_id" json:"user_id"`
	ProblemID   int       `db:"problem_id" json:"problem_id"`
	LanguageID  int       `db:"language_id" json:"language_id"`
	SourceCode  string    `db:"source_code" json:"source_code"`
	Status      string    `db:"status" json:"status"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SubmissionTestCase is one judge job tracked for a submission. Input and
// expected output are copied from the problem at submission time so later
// problem edits cannot invalidate history. The token is assigned after a
// successful dispatch and is the only correlation key with the judging
// service.
type SubmissionTestCase struct {
	ID             int       `db:"id" json:"id"`
	SubmissionID   int       `db:"submission_id" json:"submission_id"`
	Position       int       `db:"position" json:"position"`
	Input          string    `db:"input" json:"input"`
	ExpectedOutput string    `db:"expected_output" json:"expected_output"`
	Token          *string   `db:"token" json:"-"`
	Status         string    `db:"status" json:"status"`
	Stdout         *string   `db:"stdout" json:"stdout,omitempty"`
	Stderr         *string   `db:"stderr" json:"stderr,omitempty"`
	CompileOutput  *string   `db:"compile_output" json:"compile_output,omitempty"`
	Memory         *int      `db:"memory" json:"memory,omitempty"`
	Time           *string   `db:"time_sec" json:"time,omitempty"`
	UpdatedAt      time.Time `db:"updated_at" json:"-"`
}

// TokenAssignment binds a dispatched job's token to the exact row the job
// was built from.
type TokenAssignment struct {
	TestCaseID int
	Token      string
}

// TestCaseUpdate carries the settled fields of a judge result onto the row
// identified by Token.
type TestCaseUpdate struct {
	Token         string
	Status        string
	Stdout        *string
	Stderr        *string
	CompileOutput *string
	Memory        *int
	Time          *string
}

type SubmissionRequest struct {
	Problem    string `json:"problem" binding:"required"`
	Language   string `json:"language" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

func (r *SubmissionRequest) ValidateRequest() error {
	if strings.TrimSpace(r.Problem) == "" {
		return errors.New("problem slug cannot be empty")
	}

	if strings.TrimSpace(r.Language) == "" {
		return errors.New("language cannot be empty")
	}

	if strings.TrimSpace(r.SourceCode) == "" {
		return errors.New("source code cannot be empty")
	}

	return nil
}

type SubmissionListItem struct {
	ID          int       `db:"id" json:"id"`
	LanguageID  int       `db:"language_id" json:"language_id"`
	Status      string    `db:"status" json:"status"`
	SubmittedAt time.Time `db:"submitted_at" json:"submitted_at"`
	// Derived fields filled in by the handler
	FormattedTime string `db:"-" json:"submitted_time"`
	LanguageName  string `db:"-" json:"language_name"`
}

// SubmissionStatusView is what a status refresh returns to the caller:
// the aggregate verdict plus every tracked test case, with the currently
// failing ones listed separately for diagnostics.
type SubmissionStatusView struct {
	SubmissionID int                  `json:"submission_id"`
	Status       string               `json:"status"`
	TestCases    []SubmissionTestCase `json:"testcases"`
	Failing      []SubmissionTestCase `json:"failing_testcases,omitempty"`
}

// IsProvisionalTestStatus reports whether a test case is still waiting on
// the judging service.
func IsProvisionalTestStatus(status string) bool {
	return status == TestStatusInQueue || status == TestStatusProcessing
}

// AggregateStatus folds the current per-test-case statuses into the
// submission verdict. PASSED only when every test case is accepted; FAILED
// as soon as any test case settles in a non-accepted state; PENDING while
// anything is still provisional.
func AggregateStatus(statuses []string) string {
	allAccepted := len(statuses) > 0
	for _, s := range statuses {
		if s == TestStatusAccepted {
			continue
		}
		allAccepted = false
		if !IsProvisionalTestStatus(s) {
			return StatusFailed
		}
	}

	if allAccepted {
		return StatusPassed
	}
	return StatusPending
}

// TestStatusFromJudge maps a judging-service status onto the local enum.
// Ids 1 and 2 are provisional, 3 is accepted; the remaining terminal ids are
// categorized by description since the service spreads runtime failures
// across several ids.
func TestStatusFromJudge(id int, description string) string {
	switch id {
	case 1:
		return TestStatusInQueue
	case 2:
		return TestStatusProcessing
	case 3:
		return TestStatusAccepted
	case 4:
		return TestStatusWrongAnswer
	case 5:
		return TestStatusTimeLimitExceeded
	case 6:
		return TestStatusCompilationError
	}

	if strings.Contains(description, "Wrong Answer") {
		return TestStatusWrongAnswer
	}
	if strings.Contains(description, "Time Limit") {
		return TestStatusTimeLimitExceeded
	}
	if strings.Contains(description, "Compilation") {
		return TestStatusCompilationError
	}
	return TestStatusRuntimeError
}
