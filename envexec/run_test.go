//go:build unix

package envexec

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"
)

var testEnv = []string{"PATH=/usr/local/bin:/usr/bin:/bin"}

func shell(t *testing.T, script string) *Cmd {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	return &Cmd{
		Args: []string{"/bin/sh", "-c", script},
		Env:  testEnv,
	}
}

func TestRunAccepted(t *testing.T) {
	c := shell(t, "read x; echo $x$x; echo err >&2")
	c.Stdin = strings.NewReader("ab\n")
	c.TimeLimit = 5 * time.Second

	rt, err := Run(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if rt.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %v (%s)", rt.Status, rt.Error)
	}
	if string(rt.Stdout) != "abab\n" || string(rt.Stderr) != "err\n" {
		t.Errorf("unexpected output %q %q", rt.Stdout, rt.Stderr)
	}
	if rt.StdoutTruncated {
		t.Error("unexpected truncation")
	}
}

func TestRunExitStatus(t *testing.T) {
	tests := []struct {
		script string
		status Status
		exit   int
	}{
		{"exit 3", StatusNonzeroExitStatus, 3},
		{"kill -SEGV $$", StatusSignalled, -1},
		{"true", StatusAccepted, 0},
	}
	for _, tc := range tests {
		rt, err := Run(context.Background(), shell(t, tc.script))
		if err != nil {
			t.Fatal(err)
		}
		if rt.Status != tc.status || rt.ExitStatus != tc.exit {
			t.Errorf("%s: expected %v(%d), got %v(%d)", tc.script, tc.status, tc.exit, rt.Status, rt.ExitStatus)
		}
	}
}

func TestRunWallClockLimit(t *testing.T) {
	c := shell(t, "sleep 10")
	c.TimeLimit = 100 * time.Millisecond

	start := time.Now()
	rt, err := Run(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if rt.Status != StatusTimeLimitExceeded {
		t.Errorf("expected TLE, got %v", rt.Status)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Errorf("process was not killed in time: %v", d)
	}
}

func TestRunClockLimitAboveTimeLimit(t *testing.T) {
	c := shell(t, "sleep 0.3")
	c.TimeLimit = 100 * time.Millisecond
	c.ClockLimit = 3 * time.Second

	rt, err := Run(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	// sleeping uses no cpu time
	if rt.Status != StatusAccepted {
		t.Errorf("expected accepted, got %v", rt.Status)
	}
}

// hog keeps 64 MiB of output in a shell variable
const hog = "x=$(head -c 67108864 /dev/zero | tr '\\0' a); echo ${#x}"

func TestRunMemoryLimit(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("memory is measured on linux only")
	}
	tests := []struct {
		name   string
		script string
		limit  Size
		strict bool
		status Status
	}{
		{"polled", hog, 16 << 20, false, StatusMemoryLimitExceeded},
		{"strict", hog, 16 << 20, true, StatusMemoryLimitExceeded},
		{"strict within limit", "echo ok", 256 << 20, true, StatusAccepted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := shell(t, tc.script)
			c.TimeLimit = 10 * time.Second
			c.MemoryLimit = tc.limit
			c.StrictMemoryLimit = tc.strict
			c.TickInterval = 5 * time.Millisecond

			rt, err := Run(context.Background(), c)
			if err != nil {
				t.Fatal(err)
			}
			if rt.Status != tc.status {
				t.Errorf("expected %v, got %v (memory %v, %s)", tc.status, rt.Status, rt.Memory, rt.Error)
			}
		})
	}
}

func TestRunOutputTruncated(t *testing.T) {
	c := shell(t, "i=0; while [ $i -lt 100 ]; do echo 0123456789; i=$((i+1)); done")
	c.OutputLimit = 32

	rt, err := Run(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	if rt.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %v", rt.Status)
	}
	if len(rt.Stdout) != 32 || !rt.StdoutTruncated {
		t.Errorf("expected 32 truncated bytes, got %d %v", len(rt.Stdout), rt.StdoutTruncated)
	}
}

func TestRunCancelKillsGroup(t *testing.T) {
	c := shell(t, "sleep 10 & sleep 10; wait")
	ctx, cancel := context.WithCancelCause(context.Background())
	cause := errors.New("withdrawn")
	time.AfterFunc(100*time.Millisecond, func() { cancel(cause) })

	start := time.Now()
	_, err := Run(ctx, c)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cancel cause, got %v", err)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Errorf("cancel took %v", d)
	}
}

func TestRunStartError(t *testing.T) {
	_, err := Run(context.Background(), &Cmd{Args: []string{"definitely-not-a-command-1234"}})
	var se *StartError
	if !errors.As(err, &se) {
		t.Fatalf("expected start error, got %v", err)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	_, err = Run(context.Background(), &Cmd{Args: []string{"/nonexistent/bin/tool"}})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not exist, got %v", err)
	}

	if _, err := Run(context.Background(), &Cmd{}); !errors.Is(err, ErrEmptyArgs) {
		t.Errorf("expected empty args, got %v", err)
	}
}

func TestPoolQueues(t *testing.T) {
	p := NewPool(1)
	c := shell(t, "sleep 1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(context.Background(), c)
	}()
	for i := 0; p.Active() == 0 && i < 100; i++ {
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Run(ctx, shell(t, "true")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected to wait for a slot, got %v", err)
	}
	<-done
	if p.Active() != 0 {
		t.Errorf("expected no active runs, got %d", p.Active())
	}
}
