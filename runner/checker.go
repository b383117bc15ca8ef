package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/criyle/go-evaluator/envexec"
	"github.com/criyle/go-evaluator/pkg/diff"
	"github.com/criyle/go-evaluator/problem"
	"github.com/criyle/go-evaluator/types"
)

var checkerEnv = []string{"PATH=/usr/local/bin:/usr/bin:/bin"}

func (r *Runner) check(ctx context.Context, dir string, c problem.Case, chk problem.Checker, output []byte, kind types.ScoreKind) (types.TestcaseOutcome, types.Score, string, error) {
	switch chk.Type {
	case problem.CheckerExact:
		return exactCheck(c, output, kind)
	case problem.CheckerCustom:
		return r.customCheck(ctx, dir, c, chk, output, kind)
	}
	return 0, types.Score{}, "", fmt.Errorf("%w: unknown checker type %q", problem.ErrInvalidConfig, chk.Type)
}

// exactCheck compares line by line, ignoring trailing white space
func exactCheck(c problem.Case, output []byte, kind types.ScoreKind) (types.TestcaseOutcome, types.Score, string, error) {
	ans, err := problem.OpenFile(c.Answer)
	if err != nil {
		return 0, types.Score{}, "", fmt.Errorf("%w: answer: %w", problem.ErrInvalidConfig, err)
	}
	defer ans.Close()

	if err := diff.Compare(ans, bytes.NewReader(output)); err != nil {
		var de *diff.Error
		if !errors.As(err, &de) {
			return 0, types.Score{}, "", fmt.Errorf("%w: answer: %w", problem.ErrInvalidConfig, err)
		}
		return types.TestcaseOK, types.MinScore(kind), truncate([]byte(err.Error()), maxMessage), nil
	}
	return types.TestcaseOK, types.MaxScore(kind), "", nil
}

// customCheck runs `<checker> input answer output` and reads the score from
// the first token of its stdout
func (r *Runner) customCheck(ctx context.Context, dir string, c problem.Case, chk problem.Checker, output []byte, kind types.ScoreKind) (types.TestcaseOutcome, types.Score, string, error) {
	input, err := problem.Materialize(c.Input, dir, "input")
	if err != nil {
		return 0, types.Score{}, "", fmt.Errorf("%w: input: %w", problem.ErrInvalidConfig, err)
	}
	answer, err := problem.Materialize(c.Answer, dir, "answer")
	if err != nil {
		return 0, types.Score{}, "", fmt.Errorf("%w: answer: %w", problem.ErrInvalidConfig, err)
	}
	outPath := filepath.Join(dir, "output")
	if err := os.WriteFile(outPath, output, 0644); err != nil {
		return 0, types.Score{}, "", fmt.Errorf("%w: %w", ErrSandbox, err)
	}

	rt, err := r.sandbox.Run(ctx, &envexec.Cmd{
		Args:             append(slices.Clone(chk.Args), input, answer, outPath),
		Env:              checkerEnv,
		Dir:              chk.Dir,
		TimeLimit:        chk.Limits.TimeLimit,
		ClockLimit:       2 * chk.Limits.TimeLimit,
		MemoryLimit:      chk.Limits.MemoryLimit,
		ExtraMemoryLimit: r.extraMemoryLimit,
		OutputLimit:      maxMessage,
		TickInterval:     r.tickInterval,
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, types.Score{}, "", err
		}
		return 0, types.Score{}, "", startFault(err, ErrChecker)
	}
	msg := strings.TrimSpace(string(rt.Stderr))

	switch rt.Status {
	case envexec.StatusAccepted:
	case envexec.StatusInternalError:
		return 0, types.Score{}, "", fmt.Errorf("%w: checker: %s", ErrSandbox, rt.Error)
	default:
		return types.TestcaseCheckerError, types.MinScore(kind), checkerMessage(rt.Status.String(), rt.Error, msg), nil
	}

	score, err := parseScore(rt.Stdout, kind)
	if err != nil {
		return types.TestcaseCheckerError, types.MinScore(kind), checkerMessage(err.Error(), msg), nil
	}
	return types.TestcaseOK, score, msg, nil
}

func parseScore(out []byte, kind types.ScoreKind) (types.Score, error) {
	f := bytes.Fields(out)
	if len(f) == 0 {
		return types.Score{}, errors.New("checker printed no score")
	}
	v, err := strconv.ParseFloat(string(f[0]), 64)
	if err != nil {
		return types.Score{}, fmt.Errorf("checker printed invalid score %q", truncate(f[0], 64))
	}
	if math.IsNaN(v) || v < 0 || v > 1 {
		return types.Score{}, fmt.Errorf("checker score %v out of range [0, 1]", v)
	}
	if kind == types.KindBoolean {
		switch v {
		case 0:
			return types.Boolean(false), nil
		case 1:
			return types.Boolean(true), nil
		}
		return types.Score{}, fmt.Errorf("checker score %v is not 0 or 1 for a boolean problem", v)
	}
	return types.Real(v), nil
}

func checkerMessage(parts ...string) string {
	var b strings.Builder
	b.WriteString("checker: ")
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > len("checker: ") {
			b.WriteString("; ")
		}
		b.WriteString(p)
	}
	return truncate([]byte(b.String()), maxMessage)
}
