package types

import "time"

// CompilationResult contains the outcome of the compiler stage
type CompilationResult struct {
	Outcome CompilationOutcome `json:"outcome"`
	Time    time.Duration      `json:"timeNs"`
	Memory  uint64             `json:"memoryB"`
	Error   string             `json:"error,omitempty"` // bounded compiler diagnostic
}

// TestcaseResult contains the verdict of a single testcase
type TestcaseResult struct {
	Outcome TestcaseOutcome `json:"outcome"`
	Score   Score           `json:"score"`
	Time    time.Duration   `json:"timeNs"`
	Memory  uint64          `json:"memoryB"`

	// checker message, not persisted
	Message string `json:"-"`
}

// SubtaskResult contains testcase results in declaration order
type SubtaskResult struct {
	Testcases []TestcaseResult `json:"testcases"`
	Score     Score            `json:"subtaskScore"`
}

// EvaluationResult contains subtask results in declaration order
type EvaluationResult struct {
	Subtasks     []SubtaskResult `json:"subtasks"`
	OverallScore Score           `json:"overallScore"`
}
