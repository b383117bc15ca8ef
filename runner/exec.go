package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/criyle/go-evaluator/envexec"
	"github.com/criyle/go-evaluator/problem"
	"github.com/criyle/go-evaluator/types"
	"go.uber.org/zap"
)

// Execute runs the executable on one testcase and scores its output with the
// checker. Limit violations and abnormal exits score the minimum of kind
// without consulting the checker.
func (r *Runner) Execute(ctx context.Context, exe *Executable, c problem.Case, chk problem.Checker, limits problem.Limits, kind types.ScoreKind) (types.TestcaseResult, error) {
	caseDir, err := os.MkdirTemp(exe.dir, "case-")
	if err != nil {
		return types.TestcaseResult{}, fmt.Errorf("%w: %w", ErrSandbox, err)
	}
	defer os.RemoveAll(caseDir)

	in, err := problem.OpenFile(c.Input)
	if err != nil {
		return types.TestcaseResult{}, fmt.Errorf("%w: input: %w", problem.ErrInvalidConfig, err)
	}
	defer in.Close()

	p := exe.param
	rt, err := r.sandbox.Run(ctx, &envexec.Cmd{
		Args:              p.Expand(exe.dir, p.RunArgs),
		Env:               p.Expand(exe.dir, p.Env),
		Dir:               caseDir,
		Stdin:             in,
		TimeLimit:         limits.TimeLimit,
		ClockLimit:        2 * limits.TimeLimit,
		MemoryLimit:       limits.MemoryLimit,
		ExtraMemoryLimit:  r.extraMemoryLimit,
		OutputLimit:       r.outputLimit,
		StrictMemoryLimit: p.StrictMemoryLimit,
		TickInterval:      r.tickInterval,
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.TestcaseResult{}, err
		}
		return types.TestcaseResult{}, startFault(err, ErrToolchain)
	}

	result := types.TestcaseResult{
		Score:  types.MinScore(kind),
		Time:   rt.Time,
		Memory: rt.Memory.Byte(),
	}
	switch rt.Status {
	case envexec.StatusAccepted:
		if rt.StdoutTruncated {
			result.Outcome = types.TestcaseOK
			result.Message = "output limit exceeded"
			break
		}
		result.Outcome, result.Score, result.Message, err = r.check(ctx, caseDir, c, chk, rt.Stdout, kind)
		if err != nil {
			return types.TestcaseResult{}, err
		}
	case envexec.StatusTimeLimitExceeded:
		result.Outcome = types.TestcaseTimeLimitExceeded
	case envexec.StatusMemoryLimitExceeded:
		result.Outcome = types.TestcaseMemoryLimitExceeded
	case envexec.StatusNonzeroExitStatus, envexec.StatusSignalled:
		result.Outcome = types.TestcaseRuntimeError
		result.Message = rt.Error
	default:
		return types.TestcaseResult{}, fmt.Errorf("%w: %v: %s", ErrSandbox, rt.Status, rt.Error)
	}

	r.logger.Debug("testcase finished",
		zap.String("input", c.Input),
		zap.Stringer("outcome", result.Outcome),
		zap.Stringer("score", result.Score),
		zap.Duration("time", result.Time),
		zap.Stringer("memory", rt.Memory))
	return result, nil
}
