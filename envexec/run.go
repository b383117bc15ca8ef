package envexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const (
	defaultTickInterval = 50 * time.Millisecond
	defaultOutputLimit  = 64 << 20
	waitDelay           = time.Second
)

// ErrEmptyArgs is returned when Cmd has nothing to execute
var ErrEmptyArgs = errors.New("envexec: empty args")

// StartError is returned when the process could not be started
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// Run starts the command in its own process group and waits for it under the
// limits of c. Limit violations and abnormal exits are reported in the Result.
// A non-nil error means the command could not be run at all, or ctx was done
// (in which case the process group is killed and reaped before returning).
func Run(ctx context.Context, c *Cmd) (Result, error) {
	if len(c.Args) == 0 {
		return Result{}, ErrEmptyArgs
	}
	if ctx.Err() != nil {
		return Result{}, context.Cause(ctx)
	}

	outputLimit := c.OutputLimit
	if outputLimit == 0 {
		outputLimit = defaultOutputLimit
	}
	stdout, stderr := newCollector(outputLimit), newCollector(outputLimit)

	cmd := exec.Command(c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	if cmd.Env == nil {
		cmd.Env = []string{}
	}
	cmd.Stdin = c.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, &StartError{Path: c.Args[0], Err: err}
	}
	proc := cmd.Process
	if err := setLimits(proc.Pid, c); err != nil {
		killGroup(proc)
		cmd.Wait()
		return Result{}, fmt.Errorf("set limits: %w", err)
	}

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	tick := c.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if limit := max(c.ClockLimit, c.TimeLimit); limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		deadline = timer.C
	}

	var (
		status      Status
		peak        Size
		peakVirtual Size
		waitErr     error
	)
loop:
	for {
		select {
		case waitErr = <-waitCh:
			break loop

		case <-deadline:
			status = StatusTimeLimitExceeded
			killGroup(proc)
			waitErr = <-waitCh
			break loop

		case <-ticker.C:
			m, v, err := memoryUsage(proc.Pid)
			if err != nil {
				continue
			}
			peak = max(peak, m)
			peakVirtual = max(peakVirtual, v)
			if c.StrictMemoryLimit {
				m = max(m, v)
			}
			if c.MemoryLimit > 0 && m > c.MemoryLimit+c.ExtraMemoryLimit {
				status = StatusMemoryLimitExceeded
				killGroup(proc)
				waitErr = <-waitCh
				break loop
			}

		case <-ctx.Done():
			killGroup(proc)
			<-waitCh
			return Result{}, context.Cause(ctx)
		}
	}
	runTime := time.Since(startTime)
	// stray children left in the group
	killGroup(proc)

	state := cmd.ProcessState
	if state == nil {
		return Result{
			Status:  StatusInternalError,
			Error:   fmt.Sprint(waitErr),
			RunTime: runTime,
		}, nil
	}

	result := Result{
		Status:     status,
		ExitStatus: state.ExitCode(),
		Time:       state.UserTime() + state.SystemTime(),
		RunTime:    runTime,
		Memory:     max(peak, maxRSS(state)),
	}
	result.Stdout, result.StdoutTruncated = stdout.Bytes()
	result.Stderr, result.StderrTruncated = stderr.Bytes()
	if result.Status == StatusInvalid {
		result.Status, result.Error = exitStatus(state)
		// an abnormal exit after the address space passed a strict limit
		if c.StrictMemoryLimit && c.MemoryLimit > 0 && peakVirtual > c.MemoryLimit &&
			(result.Status == StatusNonzeroExitStatus || result.Status == StatusSignalled) {
			result.Status = StatusMemoryLimitExceeded
		}
	}
	if c.TimeLimit > 0 && result.Time > c.TimeLimit {
		result.Status = StatusTimeLimitExceeded
	}
	if c.MemoryLimit > 0 && result.Memory > c.MemoryLimit {
		result.Status = StatusMemoryLimitExceeded
	}
	return result, nil
}
