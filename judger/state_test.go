package judger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/criyle/go-evaluator/problem"
	"github.com/criyle/go-evaluator/runner"
	"github.com/criyle/go-evaluator/store"
)

func TestTransition(t *testing.T) {
	legal := []struct {
		from  State
		event Event
		to    State
	}{
		{StateReceived, EventDequeued, StateCompiling},
		{StateCompiling, EventCompiled, StateExecuting},
		{StateCompiling, EventCompileRejected, StateRejected},
		{StateRejected, EventPersisted, StateDone},
		{StateExecuting, EventExecuted, StateAggregating},
		{StateAggregating, EventAggregated, StatePersisting},
		{StatePersisting, EventPersisted, StateDone},
	}
	for _, tc := range legal {
		got, err := Transition(tc.from, tc.event)
		if err != nil || got != tc.to {
			t.Errorf("%v on %v: expected %v, got %v %v", tc.event, tc.from, tc.to, got, err)
		}
	}

	for s := StateReceived; s <= StateFailed; s++ {
		for e := EventDequeued; e <= EventFault; e++ {
			got, err := Transition(s, e)
			switch {
			case s.Terminal():
				if !errors.Is(err, ErrIllegalTransition) || got != s {
					t.Errorf("%v on terminal %v accepted", e, s)
				}
			case e == EventFault:
				if err != nil || got != StateFailed {
					t.Errorf("fault in %v: got %v %v", s, got, err)
				}
			case err == nil:
				found := false
				for _, tc := range legal {
					found = found || (tc.from == s && tc.event == e)
				}
				if !found {
					t.Errorf("%v on %v unexpectedly accepted", e, s)
				}
			}
		}
	}
}

func TestExecutingCannotSkipToDone(t *testing.T) {
	if _, err := Transition(StateExecuting, EventPersisted); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected illegal transition, got %v", err)
	}
	if _, err := Transition(StateReceived, EventCompiled); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected illegal transition, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind FailureKind
	}{
		{fmt.Errorf("%w: x", runner.ErrToolchain), FailureToolchain},
		{fmt.Errorf("%w: x", runner.ErrSandbox), FailureSandbox},
		{fmt.Errorf("%w: x", runner.ErrChecker), FailureChecker},
		{fmt.Errorf("persist: %w", store.ErrStaleClaim), FailureStaleClaim},
		{fmt.Errorf("persist: %w: timeout", store.ErrUnavailable), FailureStore},
		{fmt.Errorf("%w: y", problem.ErrInvalidConfig), FailureConfig},
		{context.DeadlineExceeded, FailureCancelled},
		{ErrIllegalTransition, FailureInvariant},
		{errors.New("unexpected"), FailureInvariant},
	}
	for _, tc := range tests {
		f := classify(context.Background(), tc.err)
		if f.Kind != tc.kind {
			t.Errorf("%v: expected %v, got %v", tc.err, tc.kind, f.Kind)
		}
		if !errors.Is(f, tc.err) {
			t.Errorf("%v: cause lost", tc.err)
		}
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	cause := errors.New("shutdown")
	cancel(cause)
	f := classify(ctx, fmt.Errorf("%w: killed", runner.ErrSandbox))
	if f.Kind != FailureCancelled || !errors.Is(f, cause) {
		t.Errorf("cancellation should take precedence, got %v", f)
	}
}
