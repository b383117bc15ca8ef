// Package scoring folds testcase scores into subtask scores and subtask
// scores into the overall score of a submission.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/criyle/go-evaluator/types"
)

// Rule selects how scores are combined
type Rule int

// Rules
const (
	RuleInvalid Rule = iota
	RuleMin
	RuleAllOrNothing
	RuleSum
)

var ruleToString = []string{
	"INVALID",
	"MIN",
	"ALL_OR_NOTHING",
	"SUM",
}

func (r Rule) String() string {
	ri := int(r)
	if ri < 0 || ri >= len(ruleToString) {
		return ruleToString[0]
	}
	return ruleToString[ri]
}

// Errors returned for invalid configuration
var (
	ErrInvalidRule  = errors.New("invalid scoring rule")
	ErrKindMismatch = errors.New("score kind mismatch")
	ErrEmpty        = errors.New("no scores to combine")
)

// ParseRule converts the configuration name to Rule
func ParseRule(s string) (Rule, error) {
	for i, v := range ruleToString[1:] {
		if v == s {
			return Rule(i + 1), nil
		}
	}
	return RuleInvalid, fmt.Errorf("%w: %q", ErrInvalidRule, s)
}

// CheckRule reports whether rule can combine scores of kind
func CheckRule(rule Rule, kind types.ScoreKind) error {
	switch rule {
	case RuleMin, RuleSum:
		if kind != types.KindReal {
			return fmt.Errorf("%w: %v requires real scores, got %v", ErrKindMismatch, rule, kind)
		}
	case RuleAllOrNothing:
		if kind != types.KindBoolean {
			return fmt.Errorf("%w: %v requires boolean scores, got %v", ErrKindMismatch, rule, kind)
		}
	default:
		return fmt.Errorf("%w: %v", ErrInvalidRule, rule)
	}
	return nil
}

// ShortCircuits reports whether s fixes the subtask score so the remaining
// testcases cannot change it
func ShortCircuits(rule Rule, s types.Score) bool {
	switch rule {
	case RuleMin:
		f, ok := s.Float()
		return ok && f <= 0
	case RuleAllOrNothing:
		b, ok := s.Bool()
		return ok && !b
	}
	return false
}

// Aggregate combines testcase results (in declaration order) into a subtask
// result. SUM takes the mean so the subtask score stays in [0,1].
func Aggregate(results []types.TestcaseResult, rule Rule, kind types.ScoreKind) (types.SubtaskResult, error) {
	scores := make([]types.Score, 0, len(results))
	for _, r := range results {
		scores = append(scores, r.Score)
	}
	s, err := fold(scores, nil, rule, kind)
	if err != nil {
		return types.SubtaskResult{}, err
	}
	if rule == RuleSum {
		f, _ := s.Float()
		s = types.Real(f / float64(len(scores)))
	}
	return types.SubtaskResult{Testcases: results, Score: s}, nil
}

// Combine computes the overall score from subtask scores. Weights only apply
// to SUM, a nil weights slice weighs every subtask 1.
func Combine(scores []types.Score, weights []float64, rule Rule, kind types.ScoreKind) (types.Score, error) {
	if weights != nil && len(weights) != len(scores) {
		return types.Score{}, fmt.Errorf("%d weights for %d scores", len(weights), len(scores))
	}
	return fold(scores, weights, rule, kind)
}

func fold(scores []types.Score, weights []float64, rule Rule, kind types.ScoreKind) (types.Score, error) {
	if err := CheckRule(rule, kind); err != nil {
		return types.Score{}, err
	}
	if len(scores) == 0 {
		return types.Score{}, ErrEmpty
	}
	for i, s := range scores {
		if s.Kind() != kind {
			return types.Score{}, fmt.Errorf("%w: score %d is %v, expected %v", ErrKindMismatch, i, s.Kind(), kind)
		}
	}

	switch rule {
	case RuleAllOrNothing:
		for _, s := range scores {
			if b, _ := s.Bool(); !b {
				return types.Boolean(false), nil
			}
		}
		return types.Boolean(true), nil

	case RuleMin:
		m := math.Inf(1)
		for _, s := range scores {
			f, _ := s.Float()
			m = math.Min(m, f)
		}
		return types.Real(m), nil

	default: // RuleSum
		var sum float64
		for i, s := range scores {
			f, _ := s.Float()
			w := 1.0
			if weights != nil {
				w = weights[i]
			}
			sum += w * f
		}
		return types.Real(sum), nil
	}
}
