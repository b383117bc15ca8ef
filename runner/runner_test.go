//go:build unix

package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/criyle/go-evaluator/envexec"
	"github.com/criyle/go-evaluator/language"
	"github.com/criyle/go-evaluator/problem"
	"github.com/criyle/go-evaluator/types"
	"go.uber.org/zap/zaptest"
)

var testEnv = []string{"PATH=/usr/local/bin:/usr/bin:/bin"}

var limits = problem.Limits{TimeLimit: time.Second, MemoryLimit: 256 << 20}

// "c" copies the shell script as its artifact, "python3" runs the source directly
func newTestRunner(t *testing.T, compile string) *Runner {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	return New(Config{
		Sandbox: envexec.NewPool(2),
		Languages: language.Table{
			language.C: {
				SourceFileName:   "main.sh",
				ArtifactName:     "main",
				CompileArgs:      []string{"/bin/sh", "-c", compile},
				RunArgs:          []string{"/bin/sh", language.PlaceholderArtifact},
				Env:              testEnv,
				CompileTimeLimit: 5 * time.Second,
			},
			language.Python3: {
				SourceFileName: "main.sh",
				RunArgs:        []string{"/bin/sh", language.PlaceholderSource},
				Env:            testEnv,
			},
		},
		WorkDir:     t.TempDir(),
		OutputLimit: 1 << 20,
		Logger:      zaptest.NewLogger(t),
	})
}

const copyCompile = "cp {source} {artifact}"

func writeCase(t *testing.T, input, answer string) problem.Case {
	t.Helper()
	dir := t.TempDir()
	c := problem.Case{Input: filepath.Join(dir, "in"), Answer: filepath.Join(dir, "ans")}
	if err := os.WriteFile(c.Input, []byte(input), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c.Answer, []byte(answer), 0644); err != nil {
		t.Fatal(err)
	}
	return c
}

func compile(t *testing.T, r *Runner, lang language.Language, src string) *Executable {
	t.Helper()
	rt, exe, err := r.Compile(context.Background(), []byte(src), lang, problem.Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if rt.Outcome != types.CompilationSuccess {
		t.Fatalf("expected success, got %v: %s", rt.Outcome, rt.Error)
	}
	t.Cleanup(func() { exe.Close() })
	return exe
}

func TestCompileOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		compile string
		outcome types.CompilationOutcome
		message string
	}{
		{"success", copyCompile, types.CompilationSuccess, ""},
		{"rejected", "echo 'main.sh:1: syntax error' >&2; exit 1", types.CompilationRejected, "syntax error"},
		{"no artifact", "true", types.CompilationRejected, "no main"},
		{"time limit", "while :; do :; done", types.CompilationTimeLimitExceeded, ""},
		{"crash", "kill -SEGV $$", types.CompilationRuntimeError, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRunner(t, tc.compile)
			rt, exe, err := r.Compile(context.Background(), []byte("echo hi"), language.C, problem.Limits{TimeLimit: 200 * time.Millisecond})
			if err != nil {
				t.Fatal(err)
			}
			if rt.Outcome != tc.outcome {
				t.Fatalf("expected %v, got %v (%s)", tc.outcome, rt.Outcome, rt.Error)
			}
			if !strings.Contains(rt.Error, tc.message) {
				t.Errorf("expected message %q, got %q", tc.message, rt.Error)
			}
			if (exe != nil) != (tc.outcome == types.CompilationSuccess) {
				t.Errorf("executable returned for %v", rt.Outcome)
			}
			if exe != nil {
				exe.Close()
				if _, err := os.Stat(exe.dir); !os.IsNotExist(err) {
					t.Errorf("directory not removed: %v", err)
				}
			}
		})
	}
}

func TestCompileFaults(t *testing.T) {
	r := newTestRunner(t, copyCompile)
	if _, _, err := r.Compile(context.Background(), nil, language.Rust, limits); !errors.Is(err, language.ErrUnknownLanguage) {
		t.Errorf("expected unknown language, got %v", err)
	}

	r.languages[language.C] = language.ExecParam{
		SourceFileName: "main.c",
		ArtifactName:   "main",
		CompileArgs:    []string{"/nonexistent/gcc"},
		RunArgs:        []string{language.PlaceholderArtifact},
	}
	if _, _, err := r.Compile(context.Background(), nil, language.C, limits); !errors.Is(err, ErrToolchain) {
		t.Errorf("expected toolchain fault, got %v", err)
	}
}

func TestCompileInterpreted(t *testing.T) {
	r := newTestRunner(t, copyCompile)
	exe := compile(t, r, language.Python3, "read a b; echo $((a+b))")

	c := writeCase(t, "1 2\n", "3\n")
	rt, err := r.Execute(context.Background(), exe, c, problem.Checker{Type: problem.CheckerExact}, limits, types.KindBoolean)
	if err != nil {
		t.Fatal(err)
	}
	if rt.Outcome != types.TestcaseOK || rt.Score != types.Boolean(true) {
		t.Errorf("expected OK true, got %v %v (%s)", rt.Outcome, rt.Score, rt.Message)
	}
}

func TestExecuteOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		answer  string
		outcome types.TestcaseOutcome
		score   types.Score
	}{
		{"accepted", "read a b; echo $((a+b))", "3\n", types.TestcaseOK, types.Boolean(true)},
		{"trailing space", "read a b; echo \"$((a+b))  \"", "3", types.TestcaseOK, types.Boolean(true)},
		{"wrong answer", "read a b; echo $((a*b))", "3\n", types.TestcaseOK, types.Boolean(false)},
		{"time limit", "while :; do :; done", "3\n", types.TestcaseTimeLimitExceeded, types.Boolean(false)},
		{"runtime error", "exit 1", "3\n", types.TestcaseRuntimeError, types.Boolean(false)},
	}
	r := newTestRunner(t, copyCompile)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exe := compile(t, r, language.C, tc.src)
			c := writeCase(t, "1 2\n", tc.answer)
			rt, err := r.Execute(context.Background(), exe, c, problem.Checker{Type: problem.CheckerExact},
				problem.Limits{TimeLimit: 200 * time.Millisecond, MemoryLimit: 256 << 20}, types.KindBoolean)
			if err != nil {
				t.Fatal(err)
			}
			if rt.Outcome != tc.outcome || rt.Score != tc.score {
				t.Errorf("expected %v %v, got %v %v (%s)", tc.outcome, tc.score, rt.Outcome, rt.Score, rt.Message)
			}
		})
	}
}

func TestExecuteOutputLimit(t *testing.T) {
	r := newTestRunner(t, copyCompile)
	r.outputLimit = 16
	exe := compile(t, r, language.C, "echo 3; echo 0123456789012345678901234567890123456789")

	rt, err := r.Execute(context.Background(), exe, writeCase(t, "", "3\n"), problem.Checker{Type: problem.CheckerExact}, limits, types.KindReal)
	if err != nil {
		t.Fatal(err)
	}
	if rt.Outcome != types.TestcaseOK || rt.Score != types.Real(0) || rt.Message != "output limit exceeded" {
		t.Errorf("unexpected %+v", rt)
	}
}

func writeChecker(t *testing.T, script string) problem.Checker {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "checker")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return problem.Checker{
		Type:   problem.CheckerCustom,
		Args:   []string{path},
		Dir:    dir,
		Limits: problem.Limits{TimeLimit: time.Second, MemoryLimit: 128 << 20},
	}
}

func TestCustomChecker(t *testing.T) {
	partial := `if [ "$(cat "$3")" = "$(cat "$2")" ]; then echo 1; else echo 0.5 partially; fi; echo "checked $1" >&2`
	tests := []struct {
		name    string
		checker string
		kind    types.ScoreKind
		src     string
		outcome types.TestcaseOutcome
		score   types.Score
	}{
		{"full", partial, types.KindReal, "echo 3", types.TestcaseOK, types.Real(1)},
		{"partial", partial, types.KindReal, "echo 4", types.TestcaseOK, types.Real(0.5)},
		{"boolean full", partial, types.KindBoolean, "echo 3", types.TestcaseOK, types.Boolean(true)},
		{"boolean fraction", partial, types.KindBoolean, "echo 4", types.TestcaseCheckerError, types.Boolean(false)},
		{"garbage", "echo accepted", types.KindReal, "echo 3", types.TestcaseCheckerError, types.Real(0)},
		{"out of range", "echo 1.5", types.KindReal, "echo 3", types.TestcaseCheckerError, types.Real(0)},
		{"empty", "true", types.KindReal, "echo 3", types.TestcaseCheckerError, types.Real(0)},
		{"crash", "echo 1; exit 2", types.KindReal, "echo 3", types.TestcaseCheckerError, types.Real(0)},
	}
	r := newTestRunner(t, copyCompile)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exe := compile(t, r, language.C, tc.src)
			rt, err := r.Execute(context.Background(), exe, writeCase(t, "1 2\n", "3\n"), writeChecker(t, tc.checker), limits, tc.kind)
			if err != nil {
				t.Fatal(err)
			}
			if rt.Outcome != tc.outcome || rt.Score != tc.score {
				t.Errorf("expected %v %v, got %v %v (%s)", tc.outcome, tc.score, rt.Outcome, rt.Score, rt.Message)
			}
		})
	}
}

func TestCustomCheckerMissing(t *testing.T) {
	r := newTestRunner(t, copyCompile)
	exe := compile(t, r, language.C, "echo 3")
	chk := problem.Checker{
		Type:   problem.CheckerCustom,
		Args:   []string{filepath.Join(t.TempDir(), "checker")},
		Limits: limits,
	}
	if _, err := r.Execute(context.Background(), exe, writeCase(t, "", "3\n"), chk, limits, types.KindReal); !errors.Is(err, ErrChecker) {
		t.Errorf("expected checker fault, got %v", err)
	}
}

func TestExecuteMissingInput(t *testing.T) {
	r := newTestRunner(t, copyCompile)
	exe := compile(t, r, language.C, "echo 3")
	c := problem.Case{Input: "/nonexistent/in", Answer: "/nonexistent/ans"}
	if _, err := r.Execute(context.Background(), exe, c, problem.Checker{Type: problem.CheckerExact}, limits, types.KindReal); !errors.Is(err, problem.ErrInvalidConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestExecuteCancel(t *testing.T) {
	r := newTestRunner(t, copyCompile)
	exe := compile(t, r, language.C, "sleep 10")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.Execute(ctx, exe, writeCase(t, "", ""), problem.Checker{Type: problem.CheckerExact},
		problem.Limits{TimeLimit: 10 * time.Second, MemoryLimit: 256 << 20}, types.KindReal)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

// hog keeps 64 MiB of output in a shell variable
const hog = "x=$(head -c 67108864 /dev/zero | tr '\\0' a); echo ${#x}"

func skipUnlessLinux(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("memory is measured on linux only")
	}
}

func TestExecuteMemoryLimitExceeded(t *testing.T) {
	skipUnlessLinux(t)
	for _, strict := range []bool{false, true} {
		r := newTestRunner(t, copyCompile)
		p := r.languages[language.C]
		p.StrictMemoryLimit = strict
		r.languages[language.C] = p

		exe := compile(t, r, language.C, hog)
		rt, err := r.Execute(context.Background(), exe, writeCase(t, "", "67108864\n"), problem.Checker{Type: problem.CheckerExact},
			problem.Limits{TimeLimit: 10 * time.Second, MemoryLimit: 16 << 20}, types.KindBoolean)
		if err != nil {
			t.Fatal(err)
		}
		if rt.Outcome != types.TestcaseMemoryLimitExceeded || rt.Score != types.Boolean(false) {
			t.Errorf("strict=%v: expected MLE false, got %v %v (%s)", strict, rt.Outcome, rt.Score, rt.Message)
		}
	}
}

func TestCompileMemoryLimitExceeded(t *testing.T) {
	skipUnlessLinux(t)
	r := newTestRunner(t, hog+"; cp {source} {artifact}")
	rt, exe, err := r.Compile(context.Background(), []byte("echo hi"), language.C,
		problem.Limits{TimeLimit: 10 * time.Second, MemoryLimit: 16 << 20})
	if err != nil {
		t.Fatal(err)
	}
	if rt.Outcome != types.CompilationMemoryLimitExceeded || exe != nil {
		t.Errorf("expected MLE without executable, got %v %v (%s)", rt.Outcome, exe, rt.Error)
	}
}

func TestCustomCheckerRelativeProblemDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "problems", "p")
	if err := os.MkdirAll(filepath.Join(dir, "tests"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		problem.ConfigFileName: `
scoreKind: real
rule: SUM
timeLimit: 1s
memoryLimit: 256m
checker: { type: custom, command: "./checker", timeLimit: 1s, memoryLimit: 128m }
subtasks:
  - rule: SUM
    cases:
      - { input: tests/1.in, answer: tests/1.out }
`,
		"checker":     "#!/bin/sh\nif [ \"$(cat \"$3\")\" = \"$(cat \"$2\")\" ]; then echo 1; else echo 0; fi\n",
		"tests/1.in":  "1 2\n",
		"tests/1.out": "3\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0755); err != nil {
			t.Fatal(err)
		}
	}
	t.Chdir(root)

	p, err := problem.NewDirProvider("problems").Get(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	r := newTestRunner(t, copyCompile)
	exe := compile(t, r, language.C, "read a b; echo $((a+b))")
	rt, err := r.Execute(context.Background(), exe, p.Subtasks[0].Cases[0], p.Checker, p.Limits, p.ScoreKind)
	if err != nil {
		t.Fatal(err)
	}
	if rt.Outcome != types.TestcaseOK || rt.Score != types.Real(1) {
		t.Errorf("expected OK 1, got %v %v (%s)", rt.Outcome, rt.Score, rt.Message)
	}
}

func TestDiagnosticKeepsStreams(t *testing.T) {
	stderr := make([]byte, 3, 16)
	copy(stderr, "err")
	rt := envexec.Result{Stderr: stderr, Stdout: []byte("out")}

	if msg := diagnostic(rt); msg != "errout" {
		t.Errorf("unexpected diagnostic %q", msg)
	}
	if tail := stderr[:6]; string(tail[3:]) != "\x00\x00\x00" {
		t.Errorf("stderr buffer overwritten: %q", tail)
	}
}
