package envexec

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

var pageSize = Size(os.Getpagesize())

// address space backstop for strict limits, far enough above the limit that
// the poller reports the breach before an allocation fails
const (
	asBackstopFactor = 4
	asBackstopExtra  = 1 << 30
)

// setLimits installs kernel backstops, the poller in Run enforces the limits
func setLimits(pid int, c *Cmd) error {
	if c.TimeLimit > 0 {
		// whole seconds, one extra so the wall clock check usually fires first
		sec := uint64(c.TimeLimit.Seconds()) + 1
		if err := unix.Prlimit(pid, unix.RLIMIT_CPU, &unix.Rlimit{Cur: sec, Max: sec + 1}, nil); err != nil {
			return fmt.Errorf("rlimit cpu: %w", err)
		}
	}
	if c.StrictMemoryLimit && c.MemoryLimit > 0 {
		limit := c.MemoryLimit + c.ExtraMemoryLimit
		as := uint64(max(asBackstopFactor*limit, limit+asBackstopExtra))
		if err := unix.Prlimit(pid, unix.RLIMIT_AS, &unix.Rlimit{Cur: as, Max: as}, nil); err != nil {
			return fmt.Errorf("rlimit as: %w", err)
		}
	}
	return nil
}

// memoryUsage reads the resident set and virtual sizes from /proc/<pid>/statm
func memoryUsage(pid int) (rss, virtual Size, err error) {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/statm")
	if err != nil {
		return 0, 0, err
	}
	f := bytes.Fields(b)
	if len(f) < 2 {
		return 0, 0, fmt.Errorf("invalid statm: %q", b)
	}
	size, err := strconv.ParseUint(string(f[0]), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	resident, err := strconv.ParseUint(string(f[1]), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return Size(resident) * pageSize, Size(size) * pageSize, nil
}

func maxRSS(state *os.ProcessState) Size {
	if u, ok := state.SysUsage().(*syscall.Rusage); ok {
		return Size(u.Maxrss) << 10 // KiB on linux
	}
	return 0
}
