package services

import (
	"context"
	"errors"
	"testing"

	"codearena/internal/judge"
	"codearena/internal/models"
)

func draftWithSolutions(solutions map[string]string) *models.ProblemDraft {
	return &models.ProblemDraft{
		Title:      "Two Sum",
		Difficulty: "Easy",
		TestCases: []models.TestCaseDraft{
			{Input: "1 2", Expected: "3"},
			{Input: "2 3", Expected: "5"},
		},
		ReferenceSolutions: solutions,
	}
}

func TestVerifyReferenceSolutionsAllPass(t *testing.T) {
	j := &fakeJudge{pollScript: [][]judge.Result{
		{acceptedResult("tok-0"), acceptedResult("tok-1")},
	}}
	svc := NewVerificationService(defaultLanguages(), j, fastPoll())

	err := svc.VerifyReferenceSolutions(context.Background(), draftWithSolutions(map[string]string{
		"Python": "print(sum(map(int, input().split())))",
	}))
	if err != nil {
		t.Fatalf("expected verification to pass, got %v", err)
	}

	if j.submitCalls != 1 {
		t.Errorf("expected 1 batch dispatched, got %d", j.submitCalls)
	}
	if len(j.lastJobs) != 2 {
		t.Fatalf("expected one job per test case, got %d", len(j.lastJobs))
	}
	if j.lastJobs[0].LanguageID != 71 {
		t.Errorf("job language id = %d, want 71", j.lastJobs[0].LanguageID)
	}
	if j.lastJobs[1].Stdin != "2 3" || j.lastJobs[1].ExpectedOutput != "5" {
		t.Errorf("job 1 does not match test case 1: %+v", j.lastJobs[1])
	}
}

func TestVerifyReferenceSolutionsReportsFailingTestCase(t *testing.T) {
	j := &fakeJudge{pollScript: [][]judge.Result{
		{acceptedResult("tok-0"), settled("tok-1", "Wrong Answer", 4)},
	}}
	svc := NewVerificationService(defaultLanguages(), j, fastPoll())

	err := svc.VerifyReferenceSolutions(context.Background(), draftWithSolutions(map[string]string{
		"Python": "print(0)",
	}))

	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
	if verr.Language != "Python" {
		t.Errorf("failing language = %q, want Python", verr.Language)
	}
	if verr.TestCaseIndex != 1 {
		t.Errorf("failing test case index = %d, want 1", verr.TestCaseIndex)
	}
	if verr.Result.Status.ID != 4 {
		t.Errorf("failing result status id = %d, want 4", verr.Result.Status.ID)
	}
}

func TestVerifyReferenceSolutionsMissingResultBlocksProblem(t *testing.T) {
	// The poll response settles but covers only one of the two dispatched
	// tokens. An unverified combination must block the problem.
	j := &fakeJudge{pollScript: [][]judge.Result{
		{acceptedResult("tok-0")},
	}}
	svc := NewVerificationService(defaultLanguages(), j, fastPoll())

	err := svc.VerifyReferenceSolutions(context.Background(), draftWithSolutions(map[string]string{
		"Python": "print(0)",
	}))
	if err == nil {
		t.Fatal("expected error when a dispatched test case has no result")
	}
	var verr *VerificationError
	if errors.As(err, &verr) {
		t.Fatal("a missing result is not a solution failure")
	}
}

func TestVerifyReferenceSolutionsCorrelatesByToken(t *testing.T) {
	// Results come back in reverse token order; the failing test case is the
	// one tok-0 belongs to, whatever position its result occupies.
	j := &fakeJudge{pollScript: [][]judge.Result{
		{acceptedResult("tok-1"), settled("tok-0", "Wrong Answer", 4)},
	}}
	svc := NewVerificationService(defaultLanguages(), j, fastPoll())

	err := svc.VerifyReferenceSolutions(context.Background(), draftWithSolutions(map[string]string{
		"Python": "print(0)",
	}))

	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
	if verr.TestCaseIndex != 0 {
		t.Errorf("failing test case index = %d, want 0", verr.TestCaseIndex)
	}
	if verr.Result.Token != "tok-0" {
		t.Errorf("failing result token = %q, want tok-0", verr.Result.Token)
	}
}

func TestVerifyReferenceSolutionsUnsupportedLanguage(t *testing.T) {
	svc := NewVerificationService(defaultLanguages(), &fakeJudge{}, fastPoll())

	err := svc.VerifyReferenceSolutions(context.Background(), draftWithSolutions(map[string]string{
		"Fortran": "x",
	}))
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestVerifyReferenceSolutionsInactiveLanguage(t *testing.T) {
	svc := NewVerificationService(defaultLanguages(), &fakeJudge{}, fastPoll())

	err := svc.VerifyReferenceSolutions(context.Background(), draftWithSolutions(map[string]string{
		"Cobol": "x",
	}))
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage for inactive language, got %v", err)
	}
}

func TestVerifyReferenceSolutionsDispatchFailure(t *testing.T) {
	j := &fakeJudge{submitErr: errors.New("connection refused")}
	svc := NewVerificationService(defaultLanguages(), j, fastPoll())

	err := svc.VerifyReferenceSolutions(context.Background(), draftWithSolutions(map[string]string{
		"Python": "x",
	}))
	if err == nil {
		t.Fatal("expected error when the verification batch cannot be dispatched")
	}
	var verr *VerificationError
	if errors.As(err, &verr) {
		t.Fatal("a dispatch failure is not a solution failure")
	}
}
