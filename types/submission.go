package types

import "time"

// Submission is a user's source code for one problem and its persisted outcome
type Submission struct {
	ID        string          `json:"id"`
	Author    string          `json:"author"`
	ProblemID string          `json:"problemId"`
	Created   time.Time       `json:"created"`
	Source    []byte          `json:"source,omitempty"`
	Language  string          `json:"programmingLanguage"`
	State     SubmissionState `json:"state"`

	// set once the state is terminal
	Compilation  *CompilationResult `json:"compilation,omitempty"`
	Evaluation   *EvaluationResult  `json:"evaluation,omitempty"`
	OverallScore Score              `json:"overallScore"`
	AbortReason  string             `json:"abortReason,omitempty"`
}
