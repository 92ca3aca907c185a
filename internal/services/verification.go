package services

import (
	"context"
	"fmt"
	"sort"

	"codearena/internal/judge"
	"codearena/internal/logger"
	"codearena/internal/models"

	"go.uber.org/zap"
)

// VerificationError reports the first reference solution that did not pass,
// with enough detail for the problem author to see exactly what broke.
// TestCaseIndex is zero-based.
type VerificationError struct {
	Language      string
	TestCaseIndex int
	Result        judge.Result
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("reference solution for language %s failed on test case %d: %s",
		e.Language, e.TestCaseIndex, e.Result.Status.Description)
}

// VerificationService is the problem authoring gate: a problem may only be
// persisted once every reference solution passes every test case for every
// declared language. There is no partial-problem state.
type VerificationService struct {
	languages LanguageResolver
	judge     judge.Client
	poll      judge.PollOptions
}

func NewVerificationService(languages LanguageResolver, judgeClient judge.Client, poll judge.PollOptions) *VerificationService {
	return &VerificationService{
		languages: languages,
		judge:     judgeClient,
		poll:      poll,
	}
}

// VerifyReferenceSolutions runs every (language, reference solution) pair on
// the draft against every declared test case, one batch per language, and
// returns nil only when every dispatched token comes back with an accepted
// result. The first failing test case aborts with a VerificationError; a
// token with no result at all aborts with a plain error.
func (s *VerificationService) VerifyReferenceSolutions(ctx context.Context, draft *models.ProblemDraft) error {
	// Languages are checked in a stable order so a draft with two broken
	// solutions always reports the same failure.
	names := make([]string, 0, len(draft.ReferenceSolutions))
	for name := range draft.ReferenceSolutions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		source := draft.ReferenceSolutions[name]

		language, err := s.languages.ResolveLanguage(ctx, name)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, name)
		}
		if !language.IsActive {
			return fmt.Errorf("%w: %s is inactive", ErrUnsupportedLanguage, name)
		}

		jobs := make([]judge.Job, len(draft.TestCases))
		for i, tc := range draft.TestCases {
			jobs[i] = judge.Job{
				LanguageID:     language.ExternalID,
				SourceCode:     source,
				Stdin:          tc.Input,
				ExpectedOutput: tc.Expected,
			}
		}

		tokens, err := s.judge.SubmitBatch(ctx, jobs)
		if err != nil {
			return fmt.Errorf("failed to dispatch verification batch for %s: %w", name, err)
		}

		results, err := judge.PollUntilSettled(ctx, s.judge, tokens, s.poll)
		if err != nil {
			return fmt.Errorf("verification polling for %s: %w", name, err)
		}

		// Results correlate by token, never by response position: tokens[i]
		// belongs to test case i, and every token must come back accepted.
		byToken := make(map[string]judge.Result, len(results))
		for _, result := range results {
			byToken[result.Token] = result
		}

		for i, token := range tokens {
			result, ok := byToken[token]
			if !ok {
				return fmt.Errorf("verification for %s: no result for test case %d", name, i)
			}
			if result.Status.ID != judge.StatusAccepted {
				logger.Log.Info("Reference solution rejected",
					zap.String("language", name),
					zap.Int("testcase_index", i),
					zap.String("status", result.Status.Description))
				return &VerificationError{
					Language:      name,
					TestCaseIndex: i,
					Result:        result,
				}
			}
		}

		logger.Log.Info("Reference solution verified",
			zap.String("language", name),
			zap.Int("testcases", len(jobs)))
	}

	return nil
}
