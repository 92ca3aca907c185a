package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codearena/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Judging-service status ids. 1 and 2 mean the job has not settled yet;
// 3 is an accepted run; every other id is a terminal failure category.
const (
	StatusInQueue    = 1
	StatusProcessing = 2
	StatusAccepted   = 3
)

var (
	// ErrDispatch is returned when a batch could not be handed to the
	// judging service: transport failure, non-2xx response, or a response
	// carrying no tokens. The caller's rows are untouched and the dispatch
	// is safe to retry.
	ErrDispatch = errors.New("judge: dispatch failed")

	// ErrPollTimeout is returned when not every job in a batch settled
	// within the configured wall-clock timeout. Whatever results were last
	// fetched accompany the error; jobs may still settle later.
	ErrPollTimeout = errors.New("judge: poll timed out")
)

// Job is one unit of work sent to the judging service.
type Job struct {
	LanguageID     int    `json:"language_id"`
	SourceCode     string `json:"source_code"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
}

type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Result is the judging service's view of one job, keyed by token.
// Output fields are only meaningful once the result has settled.
type Result struct {
	Token         string  `json:"token"`
	Status        Status  `json:"status"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Memory        *int    `json:"memory"`
	Time          *string `json:"time"`
}

// Settled reports whether the job left the provisional queue/processing
// states.
func (r Result) Settled() bool {
	return r.Status.ID != StatusInQueue && r.Status.ID != StatusProcessing
}

// Client is the protocol adapter to the external judging service. It holds
// no state beyond its configuration; all persistence belongs to the caller.
type Client interface {
	// SubmitBatch dispatches jobs as one batch and returns one token per
	// job, in job order: tokens[i] corresponds to jobs[i].
	SubmitBatch(ctx context.Context, jobs []Job) ([]string, error)

	// PollBatch fetches the current results for the given tokens.
	PollBatch(ctx context.Context, tokens []string) ([]Result, error)
}

// Config is injected at construction; the client keeps no ambient/global
// settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	PollInterval  time.Duration
	RetryInterval time.Duration
}

type httpClient struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) Client {
	return &httpClient{
		cfg: cfg,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *httpClient) SubmitBatch(ctx context.Context, jobs []Job) ([]string, error) {
	batchID := uuid.NewString()

	body, err := json.Marshal(map[string]any{"submissions": jobs})
	if err != nil {
		return nil, fmt.Errorf("%w: batch %s: encode batch: %v", ErrDispatch, batchID, err)
	}

	url := c.cfg.BaseURL + "/submissions/batch?base64_encoded=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: batch %s: %v", ErrDispatch, batchID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: batch %s: %v", ErrDispatch, batchID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: batch %s: unexpected status %d: %s", ErrDispatch, batchID, resp.StatusCode, payload)
	}

	var created []struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("%w: batch %s: decode response: %v", ErrDispatch, batchID, err)
	}

	tokens := make([]string, 0, len(created))
	for _, item := range created {
		if item.Token != "" {
			tokens = append(tokens, item.Token)
		}
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: batch %s: no tokens received", ErrDispatch, batchID)
	}
	if len(tokens) != len(jobs) {
		return nil, fmt.Errorf("%w: batch %s: got %d tokens for %d jobs", ErrDispatch, batchID, len(tokens), len(jobs))
	}

	logger.Log.Info("Dispatched judge batch",
		zap.String("batch_id", batchID),
		zap.Int("jobs", len(jobs)))

	return tokens, nil
}

func (c *httpClient) PollBatch(ctx context.Context, tokens []string) ([]Result, error) {
	url := fmt.Sprintf("%s/submissions/batch?tokens=%s&base64_encoded=false",
		c.cfg.BaseURL, strings.Join(tokens, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("poll batch: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("poll batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("poll batch: unexpected status %d: %s", resp.StatusCode, payload)
	}

	var parsed struct {
		Submissions []Result `json:"submissions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("poll batch: decode response: %w", err)
	}

	return parsed.Submissions, nil
}
