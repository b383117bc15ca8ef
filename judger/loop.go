package judger

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/criyle/go-evaluator/problem"
	"github.com/criyle/go-evaluator/runner"
	"github.com/criyle/go-evaluator/scoring"
	"github.com/criyle/go-evaluator/types"
	"golang.org/x/sync/errgroup"
)

// execute runs subtasks in declaration order, results are indexed by
// subtask and testcase
func (e *evaluation) execute(ctx context.Context, p *problem.Config, exe *runner.Executable) ([][]types.TestcaseResult, error) {
	rt := make([][]types.TestcaseResult, len(p.Subtasks))
	for i := range p.Subtasks {
		r, err := e.runSubtask(ctx, p, &p.Subtasks[i], exe)
		if err != nil {
			return nil, fmt.Errorf("subtask %d: %w", i, err)
		}
		rt[i] = r
	}
	return rt, nil
}

// runSubtask fans testcases out to at most caseParallelism runner calls.
// With short-circuit enabled, a testcase is not started once an earlier one
// fixed the subtask score, and every testcase after the first such one is
// recorded as NONE regardless of completion order.
func (e *evaluation) runSubtask(ctx context.Context, p *problem.Config, s *problem.Subtask, exe *runner.Executable) ([]types.TestcaseResult, error) {
	var (
		results = make([]types.TestcaseResult, len(s.Cases))
		ran     = make([]bool, len(s.Cases))
		floor   atomic.Int64 // lowest index known to short-circuit
	)
	floor.Store(int64(len(s.Cases)))
	skipped := func(i int) bool {
		return e.shortCircuit && floor.Load() < int64(i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.caseParallelism)
	for i, c := range s.Cases {
		if skipped(i) {
			break
		}
		g.Go(func() error {
			if skipped(i) {
				return nil
			}
			r, err := e.executor.Execute(gctx, exe, c, p.Checker, p.Limits, p.ScoreKind)
			if err != nil {
				return fmt.Errorf("testcase %d: %w", i, err)
			}
			results[i], ran[i] = r, true
			if e.shortCircuit && scoring.ShortCircuits(s.Rule, r.Score) {
				lowerTo(&floor, int64(i))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	first := len(s.Cases)
	if e.shortCircuit {
		for i, r := range results {
			if ran[i] && scoring.ShortCircuits(s.Rule, r.Score) {
				first = i
				break
			}
		}
	}
	for i := range results {
		if ran[i] && i <= first {
			e.report.Cases++
			continue
		}
		results[i] = types.TestcaseResult{
			Outcome: types.TestcaseNone,
			Score:   types.MinScore(p.ScoreKind),
		}
	}
	return results, nil
}

func lowerTo(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n >= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}
