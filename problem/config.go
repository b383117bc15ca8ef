package problem

import (
	"errors"
	"fmt"
	"time"

	"github.com/criyle/go-evaluator/envexec"
	"github.com/criyle/go-evaluator/scoring"
	"github.com/criyle/go-evaluator/types"
)

// ErrInvalidConfig wraps every problem configuration error
var ErrInvalidConfig = errors.New("invalid problem config")

// Config defines a problem judgement configuration
type Config struct {
	ID        string
	Name      string
	LongName  string
	Statement string // path of the statement file

	ScoreKind types.ScoreKind
	Rule      scoring.Rule // combines subtask scores

	Limits  Limits // per testcase
	Compile Limits // zero fields use the language defaults
	Checker Checker

	Subtasks []Subtask
}

// Limits defines time and memory ceilings
type Limits struct {
	TimeLimit   time.Duration
	MemoryLimit envexec.Size
}

// CheckerType selects how outputs are judged
type CheckerType string

// Checker types
const (
	CheckerExact  CheckerType = "exact"
	CheckerCustom CheckerType = "custom"
)

// Checker defines how a testcase output is scored
type Checker struct {
	Type   CheckerType
	Args   []string // custom checker command, invoked with input, answer and output paths
	Dir    string   // working directory of the custom checker
	Limits Limits
}

// Subtask groups testcases scored under one rule
type Subtask struct {
	Name   string
	Rule   scoring.Rule
	Weight float64
	Cases  []Case
}

// Case defines single judge case by file path
type Case struct {
	Input  string
	Answer string
}

// Weights returns the subtask weights in declaration order
func (c *Config) Weights() []float64 {
	w := make([]float64, 0, len(c.Subtasks))
	for _, s := range c.Subtasks {
		w = append(w, s.Weight)
	}
	return w
}

// CaseCount returns the total number of testcases
func (c *Config) CaseCount() int {
	var n int
	for _, s := range c.Subtasks {
		n += len(s.Cases)
	}
	return n
}

// Validate reports the first configuration error
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: problem %q: %w", ErrInvalidConfig, c.ID, err)
	}
	return nil
}

func (c *Config) validate() error {
	if err := scoring.CheckRule(c.Rule, c.ScoreKind); err != nil {
		return fmt.Errorf("rule: %w", err)
	}
	if c.Limits.TimeLimit <= 0 || c.Limits.MemoryLimit == 0 {
		return errors.New("time and memory limits must be positive")
	}
	switch c.Checker.Type {
	case CheckerExact:
	case CheckerCustom:
		if len(c.Checker.Args) == 0 {
			return errors.New("custom checker without command")
		}
		if c.Checker.Limits.TimeLimit <= 0 || c.Checker.Limits.MemoryLimit == 0 {
			return errors.New("checker limits must be positive")
		}
	default:
		return fmt.Errorf("unknown checker type %q", c.Checker.Type)
	}
	if len(c.Subtasks) == 0 {
		return errors.New("no subtasks")
	}
	for i, s := range c.Subtasks {
		if len(s.Cases) == 0 {
			return fmt.Errorf("subtask %d (%s): no testcases", i, s.Name)
		}
		if err := scoring.CheckRule(s.Rule, c.ScoreKind); err != nil {
			return fmt.Errorf("subtask %d (%s): %w", i, s.Name, err)
		}
		if s.Weight < 0 {
			return fmt.Errorf("subtask %d (%s): negative weight", i, s.Name)
		}
		for j, cs := range s.Cases {
			if cs.Input == "" || cs.Answer == "" {
				return fmt.Errorf("subtask %d case %d: missing input or answer", i, j)
			}
		}
	}
	return nil
}
