package judger

import (
	"errors"
	"fmt"
)

// State is a state of the evaluation of one submission
type State int

// Evaluation states
const (
	StateReceived State = iota
	StateCompiling
	StateRejected
	StateExecuting
	StateAggregating
	StatePersisting
	StateDone
	StateFailed
)

var stateToString = []string{
	"RECEIVED",
	"COMPILING",
	"REJECTED",
	"EXECUTING",
	"AGGREGATING",
	"PERSISTING",
	"DONE",
	"FAILED",
}

func (s State) String() string {
	si := int(s)
	if si < 0 || si >= len(stateToString) {
		return fmt.Sprintf("State(%d)", si)
	}
	return stateToString[si]
}

// Terminal reports whether the evaluation has ended
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Event drives a state transition
type Event int

// Events
const (
	EventDequeued Event = iota
	EventCompiled
	EventCompileRejected
	EventExecuted
	EventAggregated
	EventPersisted
	EventFault
)

var eventToString = []string{
	"dequeued",
	"compiled",
	"compile rejected",
	"executed",
	"aggregated",
	"persisted",
	"fault",
}

func (e Event) String() string {
	ei := int(e)
	if ei < 0 || ei >= len(eventToString) {
		return fmt.Sprintf("Event(%d)", ei)
	}
	return eventToString[ei]
}

// ErrIllegalTransition is returned for an event not accepted in a state
var ErrIllegalTransition = errors.New("illegal state transition")

type edge struct {
	from  State
	event Event
}

var transitions = map[edge]State{
	{StateReceived, EventDequeued}:         StateCompiling,
	{StateCompiling, EventCompiled}:        StateExecuting,
	{StateCompiling, EventCompileRejected}: StateRejected,
	{StateRejected, EventPersisted}:        StateDone,
	{StateExecuting, EventExecuted}:        StateAggregating,
	{StateAggregating, EventAggregated}:    StatePersisting,
	{StatePersisting, EventPersisted}:      StateDone,
}

// Transition returns the state after event e in state s
func Transition(s State, e Event) (State, error) {
	if s.Terminal() {
		return s, fmt.Errorf("%w: %v on terminal %v", ErrIllegalTransition, e, s)
	}
	if e == EventFault {
		return StateFailed, nil
	}
	next, ok := transitions[edge{s, e}]
	if !ok {
		return s, fmt.Errorf("%w: %v in %v", ErrIllegalTransition, e, s)
	}
	return next, nil
}
