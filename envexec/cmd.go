package envexec

import (
	"io"
	"time"
)

// Cmd defines instruction to run a program on the host under limits
type Cmd struct {
	// exec argument, environment and working directory
	Args []string
	Env  []string
	Dir  string

	// Stdin is passed to the process directly when it is an *os.File
	Stdin io.Reader

	// resource limits
	TimeLimit         time.Duration // cpu time
	ClockLimit        time.Duration // wall time, TimeLimit is used when smaller
	MemoryLimit       Size
	ExtraMemoryLimit  Size
	OutputLimit       Size // per stream, extra output is discarded
	StrictMemoryLimit bool // count address space against MemoryLimit

	// TickInterval is the interval of memory usage polling
	TickInterval time.Duration
}

// Result defines the running result for single Cmd
type Result struct {
	Status Status

	ExitStatus int

	Error string // error

	Time    time.Duration
	RunTime time.Duration
	Memory  Size // byte

	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool
}
