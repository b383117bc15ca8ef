package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/criyle/go-evaluator/envexec"
	"github.com/criyle/go-evaluator/language"
	"github.com/criyle/go-evaluator/problem"
	"github.com/criyle/go-evaluator/types"
	"go.uber.org/zap"
)

// Compile writes the source into a private directory and runs the language
// toolchain. A non-nil Executable is returned only on SUCCESS and must be
// closed by the caller. A non-nil error is an infrastructure fault or
// cancellation, never a property of the source.
func (r *Runner) Compile(ctx context.Context, source []byte, lang language.Language, limits problem.Limits) (types.CompilationResult, *Executable, error) {
	param, err := r.languages.Get(lang)
	if err != nil {
		return types.CompilationResult{}, nil, err
	}

	dir, err := os.MkdirTemp(r.workDir, "sub-")
	if err != nil {
		return types.CompilationResult{}, nil, fmt.Errorf("%w: %w", ErrSandbox, err)
	}
	exe := &Executable{Language: lang, dir: dir, param: param}
	if err := os.WriteFile(filepath.Join(dir, param.SourceFileName), source, 0644); err != nil {
		exe.Close()
		return types.CompilationResult{}, nil, fmt.Errorf("%w: %w", ErrSandbox, err)
	}
	if param.Interpreted() {
		return types.CompilationResult{Outcome: types.CompilationSuccess}, exe, nil
	}

	timeLimit := limits.TimeLimit
	if timeLimit == 0 {
		timeLimit = param.CompileTimeLimit
	}
	memoryLimit := limits.MemoryLimit
	if memoryLimit == 0 {
		memoryLimit = param.CompileMemoryLimit
	}

	rt, err := r.sandbox.Run(ctx, &envexec.Cmd{
		Args:             param.Expand(dir, param.CompileArgs),
		Env:              param.Expand(dir, param.Env),
		Dir:              dir,
		TimeLimit:        timeLimit,
		ClockLimit:       2 * timeLimit,
		MemoryLimit:      memoryLimit,
		ExtraMemoryLimit: r.extraMemoryLimit,
		OutputLimit:      maxOutput,
		TickInterval:     r.tickInterval,
	})
	if err != nil {
		exe.Close()
		if ctx.Err() != nil {
			return types.CompilationResult{}, nil, err
		}
		return types.CompilationResult{}, nil, startFault(err, ErrToolchain)
	}
	if rt.Status == envexec.StatusInternalError {
		exe.Close()
		return types.CompilationResult{}, nil, fmt.Errorf("%w: compiler: %s", ErrSandbox, rt.Error)
	}

	result := types.CompilationResult{
		Time:   rt.Time,
		Memory: rt.Memory.Byte(),
		Error:  diagnostic(rt),
	}
	switch rt.Status {
	case envexec.StatusAccepted:
		result.Outcome = types.CompilationSuccess
		if _, err := os.Stat(filepath.Join(dir, param.ArtifactName)); err != nil {
			result.Outcome = types.CompilationRejected
			result.Error = truncate([]byte("compiler produced no "+param.ArtifactName+"\n"+result.Error), maxMessage)
		}
	case envexec.StatusNonzeroExitStatus:
		result.Outcome = types.CompilationRejected
	case envexec.StatusTimeLimitExceeded:
		result.Outcome = types.CompilationTimeLimitExceeded
	case envexec.StatusMemoryLimitExceeded:
		result.Outcome = types.CompilationMemoryLimitExceeded
	default:
		result.Outcome = types.CompilationRuntimeError
		if rt.Error != "" {
			result.Error = truncate([]byte(rt.Error+"\n"+result.Error), maxMessage)
		}
	}

	r.logger.Debug("compiled",
		zap.String("language", string(lang)),
		zap.Stringer("outcome", result.Outcome),
		zap.Duration("time", result.Time),
		zap.Stringer("memory", rt.Memory))

	if result.Outcome != types.CompilationSuccess {
		exe.Close()
		return result, nil, nil
	}
	return result, exe, nil
}

func diagnostic(rt envexec.Result) string {
	return truncate(slices.Concat(rt.Stderr, rt.Stdout), maxMessage)
}
