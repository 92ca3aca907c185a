package models

import (
	"errors"
	"fmt"
	"strings"
)

type Language struct {
	ID         int    `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	ExternalID int    `db:"external_id" json:"external_id"`
	IsActive   bool   `db:"is_active" json:"is_active"`
}

type ProblemListItem struct {
	ID         int    `db:"id" json:"id"`
	Title      string `db:"title" json:"title"`
	Slug       string `db:"slug" json:"slug"`
	Difficulty string `db:"difficulty" json:"difficulty"`
}

type ProblemDetail struct {
	ID                  int     `db:"id" json:"id"`
	Title               string  `db:"title" json:"title"`
	Slug                string  `db:"slug" json:"slug"`
	Description         string  `db:"description" json:"description"`
	Difficulty          string  `db:"difficulty" json:"difficulty"`
	SampleInput         string  `db:"sample_input" json:"sample_input"`
	SampleOutput        string  `db:"sample_output" json:"sample_output"`
	TotalSubmissions    int     `db:"-" json:"total_submissions"`
	AcceptedSubmissions int     `db:"-" json:"accepted_submissions"`
	AcceptanceRate      float64 `db:"-" json:"acceptance_rate"`
}

// TestCase is a problem's stored test case, ordered by Position.
type TestCase struct {
	ID       int    `db:"id" json:"id"`
	Position int    `db:"position" json:"position"`
	Input    string `db:"input" json:"input"`
	Expected string `db:"expected_output" json:"expected"`
}

// ProblemDraft is a candidate problem on its way through the verification
// gate. Nothing from a draft is persisted until every reference solution
// passes every test case.
type ProblemDraft struct {
	Title              string
	Description        string
	Difficulty         string
	SampleInput        string
	SampleOutput       string
	TestCases          []TestCaseDraft
	ReferenceSolutions map[string]string // language name -> source code
}

type TestCaseDraft struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

type CreateProblemRequest struct {
	Title              string            `json:"title" binding:"required"`
	Description        string            `json:"description" binding:"required"`
	Difficulty         string            `json:"difficulty" binding:"required"`
	SampleInput        string            `json:"sample_input"`
	SampleOutput       string            `json:"sample_output"`
	TestCases          []TestCaseDraft   `json:"testcases" binding:"required"`
	ReferenceSolutions map[string]string `json:"reference_solutions" binding:"required"`
}

func (r *CreateProblemRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title cannot be empty")
	}

	switch r.Difficulty {
	case "Easy", "Medium", "Hard":
	default:
		return errors.New("difficulty must be one of Easy, Medium, Hard")
	}

	if len(r.TestCases) == 0 {
		return errors.New("at least one test case is required")
	}
	for i, tc := range r.TestCases {
		if tc.Input == "" && tc.Expected == "" {
			return fmt.Errorf("test case %d is empty", i)
		}
	}

	if len(r.ReferenceSolutions) == 0 {
		return errors.New("at least one reference solution is required")
	}
	for lang, code := range r.ReferenceSolutions {
		if strings.TrimSpace(code) == "" {
			return errors.New("reference solution for " + lang + " cannot be empty")
		}
	}

	return nil
}

func (r *CreateProblemRequest) ToDraft() *ProblemDraft {
	return &ProblemDraft{
		Title:              r.Title,
		Description:        r.Description,
		Difficulty:         r.Difficulty,
		SampleInput:        r.SampleInput,
		SampleOutput:       r.SampleOutput,
		TestCases:          r.TestCases,
		ReferenceSolutions: r.ReferenceSolutions,
	}
}
