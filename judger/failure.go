package judger

import (
	"context"
	"errors"
	"fmt"

	"github.com/criyle/go-evaluator/language"
	"github.com/criyle/go-evaluator/problem"
	"github.com/criyle/go-evaluator/runner"
	"github.com/criyle/go-evaluator/scoring"
	"github.com/criyle/go-evaluator/store"
)

// FailureKind classifies why an evaluation ended in FAILED
type FailureKind int

// Failure kinds
const (
	FailureInvariant FailureKind = iota
	FailureToolchain
	FailureSandbox
	FailureChecker
	FailureStore
	FailureConfig
	FailureCancelled
	FailureStaleClaim
)

var failureKindToString = []string{
	"invariant",
	"toolchain",
	"sandbox",
	"checker",
	"store",
	"config",
	"cancelled",
	"stale claim",
}

func (k FailureKind) String() string {
	ki := int(k)
	if ki < 0 || ki >= len(failureKindToString) {
		return fmt.Sprintf("FailureKind(%d)", ki)
	}
	return failureKindToString[ki]
}

// Retryable reports whether another attempt may succeed. Configuration
// errors, cancellation and invariant violations never do.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureToolchain, FailureSandbox, FailureChecker, FailureStore:
		return true
	}
	return false
}

// Failure is the cause of a FAILED evaluation
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// classify maps err to a failure kind, cancellation of ctx takes precedence
func classify(ctx context.Context, err error) *Failure {
	if ctx.Err() != nil {
		return &Failure{Kind: FailureCancelled, Err: context.Cause(ctx)}
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	kind := FailureInvariant
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = FailureCancelled
	case errors.Is(err, problem.ErrInvalidConfig), errors.Is(err, problem.ErrNotFound),
		errors.Is(err, language.ErrUnknownLanguage),
		errors.Is(err, scoring.ErrInvalidRule), errors.Is(err, scoring.ErrKindMismatch), errors.Is(err, scoring.ErrEmpty):
		kind = FailureConfig
	case errors.Is(err, runner.ErrToolchain):
		kind = FailureToolchain
	case errors.Is(err, runner.ErrChecker):
		kind = FailureChecker
	case errors.Is(err, runner.ErrSandbox):
		kind = FailureSandbox
	case errors.Is(err, store.ErrStaleClaim), errors.Is(err, store.ErrNotFound):
		kind = FailureStaleClaim
	case errors.Is(err, store.ErrUnavailable):
		kind = FailureStore
	}
	return &Failure{Kind: kind, Err: err}
}
