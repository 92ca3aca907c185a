package models

import "testing"

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{
			name:     "all accepted",
			statuses: []string{TestStatusAccepted, TestStatusAccepted, TestStatusAccepted},
			want:     StatusPassed,
		},
		{
			name:     "one still processing",
			statuses: []string{TestStatusAccepted, TestStatusAccepted, TestStatusProcessing},
			want:     StatusPending,
		},
		{
			name:     "one still queued",
			statuses: []string{TestStatusInQueue, TestStatusAccepted},
			want:     StatusPending,
		},
		{
			name:     "wrong answer settles the verdict",
			statuses: []string{TestStatusAccepted, TestStatusWrongAnswer, TestStatusProcessing},
			want:     StatusFailed,
		},
		{
			name:     "runtime error settles the verdict",
			statuses: []string{TestStatusRuntimeError},
			want:     StatusFailed,
		},
		{
			name:     "compilation error settles the verdict",
			statuses: []string{TestStatusCompilationError, TestStatusInQueue},
			want:     StatusFailed,
		},
		{
			name:     "time limit exceeded settles the verdict",
			statuses: []string{TestStatusAccepted, TestStatusTimeLimitExceeded},
			want:     StatusFailed,
		},
		{
			name:     "no statuses stays pending",
			statuses: nil,
			want:     StatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateStatus(tt.statuses); got != tt.want {
				t.Errorf("AggregateStatus(%v) = %q, want %q", tt.statuses, got, tt.want)
			}
		})
	}
}

func TestAggregateStatusIdempotentOnceSettled(t *testing.T) {
	// Re-evaluating the same settled set must yield the same verdict.
	settled := []string{TestStatusAccepted, TestStatusWrongAnswer}
	first := AggregateStatus(settled)
	second := AggregateStatus(settled)
	if first != second || first != StatusFailed {
		t.Errorf("settled aggregate changed between evaluations: %q then %q", first, second)
	}
}

func TestTestStatusFromJudge(t *testing.T) {
	tests := []struct {
		name        string
		id          int
		description string
		want        string
	}{
		{"in queue", 1, "In Queue", TestStatusInQueue},
		{"processing", 2, "Processing", TestStatusProcessing},
		{"accepted", 3, "Accepted", TestStatusAccepted},
		{"wrong answer", 4, "Wrong Answer", TestStatusWrongAnswer},
		{"time limit exceeded", 5, "Time Limit Exceeded", TestStatusTimeLimitExceeded},
		{"compilation error", 6, "Compilation Error", TestStatusCompilationError},
		{"runtime error sigsegv", 7, "Runtime Error (SIGSEGV)", TestStatusRuntimeError},
		{"runtime error nzec", 11, "Runtime Error (NZEC)", TestStatusRuntimeError},
		{"internal error maps to runtime family", 13, "Internal Error", TestStatusRuntimeError},
		{"unknown id with wrong answer description", 99, "Wrong Answer", TestStatusWrongAnswer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TestStatusFromJudge(tt.id, tt.description); got != tt.want {
				t.Errorf("TestStatusFromJudge(%d, %q) = %q, want %q", tt.id, tt.description, got, tt.want)
			}
		})
	}
}

func TestIsProvisionalTestStatus(t *testing.T) {
	provisional := []string{TestStatusInQueue, TestStatusProcessing}
	for _, s := range provisional {
		if !IsProvisionalTestStatus(s) {
			t.Errorf("expected %q to be provisional", s)
		}
	}

	terminal := []string{
		TestStatusAccepted, TestStatusWrongAnswer, TestStatusRuntimeError,
		TestStatusCompilationError, TestStatusTimeLimitExceeded,
	}
	for _, s := range terminal {
		if IsProvisionalTestStatus(s) {
			t.Errorf("expected %q to be terminal", s)
		}
	}
}
