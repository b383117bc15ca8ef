// Package runner compiles submissions and runs them against testcases on
// top of the resource-limited executor.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/criyle/go-evaluator/envexec"
	"github.com/criyle/go-evaluator/language"
	"go.uber.org/zap"
)

const (
	// compiler output kept for diagnostic
	maxOutput = 4 << 20
	// diagnostic and checker message persisted or logged
	maxMessage = 64 << 10
)

// Infrastructure faults, never reflected in a submission's verdict
var (
	ErrToolchain = errors.New("toolchain unavailable")
	ErrSandbox   = errors.New("sandbox failure")
	ErrChecker   = errors.New("checker unavailable")
)

// Sandbox runs a single command under limits
type Sandbox interface {
	Run(context.Context, *envexec.Cmd) (envexec.Result, error)
}

// Config defines runner configuration
type Config struct {
	Sandbox          Sandbox
	Languages        language.Table
	WorkDir          string
	OutputLimit      envexec.Size
	ExtraMemoryLimit envexec.Size
	TickInterval     time.Duration
	Logger           *zap.Logger
}

// Runner turns submissions into executables and testcase verdicts
type Runner struct {
	sandbox          Sandbox
	languages        language.Table
	workDir          string
	outputLimit      envexec.Size
	extraMemoryLimit envexec.Size
	tickInterval     time.Duration
	logger           *zap.Logger
}

// New creates a runner
func New(conf Config) *Runner {
	r := &Runner{
		sandbox:          conf.Sandbox,
		languages:        conf.Languages,
		workDir:          conf.WorkDir,
		outputLimit:      conf.OutputLimit,
		extraMemoryLimit: conf.ExtraMemoryLimit,
		tickInterval:     conf.TickInterval,
		logger:           conf.Logger,
	}
	if r.workDir != "" {
		if abs, err := filepath.Abs(r.workDir); err == nil {
			r.workDir = abs
		}
	}
	if r.sandbox == nil {
		r.sandbox = envexec.NewPool(runtime.NumCPU())
	}
	if r.languages == nil {
		r.languages = language.DefaultTable()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Executable is a compiled submission inside its private directory
type Executable struct {
	Language language.Language

	dir       string
	param     language.ExecParam
	closeOnce sync.Once
}

// Close removes the executable's directory
func (e *Executable) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.dir != "" {
			err = os.RemoveAll(e.dir)
		}
	})
	return err
}

// startFault converts a failure to start a process into an infrastructure fault
func startFault(err error, missing error) error {
	var se *envexec.StartError
	if errors.As(err, &se) && (errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)) {
		return fmt.Errorf("%w: %w", missing, err)
	}
	return fmt.Errorf("%w: %w", ErrSandbox, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "\n[...]"
}
