package types

import (
	"encoding/json"
	"fmt"
)

// SubmissionState is the persisted state of a submission
type SubmissionState int

// Submission states, stored as integers
const (
	StatePending SubmissionState = iota
	StateEvaluated
	StateAborted
)

var submissionStateToString = []string{
	"PENDING",
	"EVALUATED",
	"ABORTED",
}

func (s SubmissionState) String() string {
	return enumString(submissionStateToString, int(s))
}

// Terminal reports whether no further transition is allowed
func (s SubmissionState) Terminal() bool {
	return s == StateEvaluated || s == StateAborted
}

// MarshalJSON encodes the state name
func (s SubmissionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// CompilationOutcome is the outcome of the compiler stage
type CompilationOutcome int

// Compilation outcomes, stored as integers
const (
	CompilationNone CompilationOutcome = iota
	CompilationSuccess
	CompilationRejected
	CompilationTimeLimitExceeded
	CompilationMemoryLimitExceeded
	CompilationRuntimeError
)

var compilationOutcomeToString = []string{
	"NONE",
	"SUCCESS",
	"REJECTED",
	"TLE",
	"MLE",
	"RTE",
}

func (o CompilationOutcome) String() string {
	return enumString(compilationOutcomeToString, int(o))
}

// MarshalJSON encodes the outcome name
func (o CompilationOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// TestcaseOutcome is the outcome of a single testcase.
// A wrong answer is TestcaseOK with the minimum score.
type TestcaseOutcome int

// Testcase outcomes, stored as integers
const (
	TestcaseNone TestcaseOutcome = iota
	TestcaseOK
	TestcaseTimeLimitExceeded
	TestcaseMemoryLimitExceeded
	TestcaseRuntimeError
	TestcaseCheckerError
)

var testcaseOutcomeToString = []string{
	"NONE",
	"OK",
	"TLE",
	"MLE",
	"RTE",
	"CHECKER_ERROR",
}

func (o TestcaseOutcome) String() string {
	return enumString(testcaseOutcomeToString, int(o))
}

// MarshalJSON encodes the outcome name
func (o TestcaseOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func enumString(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("UNKNOWN(%d)", i)
	}
	return names[i]
}
