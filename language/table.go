package language

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/criyle/go-evaluator/envexec"
)

// Placeholders expanded in args and env
const (
	PlaceholderSource   = "{source}"
	PlaceholderArtifact = "{artifact}"
	PlaceholderDir      = "{dir}"
)

// ExecParam defines specs to compile / run program
type ExecParam struct {
	SourceFileName string
	ArtifactName   string   // empty when the source is run directly
	CompileArgs    []string // empty for interpreted languages
	RunArgs        []string
	Env            []string

	// default compile limits
	CompileTimeLimit   time.Duration
	CompileMemoryLimit envexec.Size

	// address space limit breaks runtimes that reserve large virtual memory
	StrictMemoryLimit bool
}

// Interpreted reports whether the language has no compile step
func (p ExecParam) Interpreted() bool {
	return len(p.CompileArgs) == 0
}

// Expand replaces placeholders in args with paths inside dir
func (p ExecParam) Expand(dir string, args []string) []string {
	r := strings.NewReplacer(
		PlaceholderSource, filepath.Join(dir, p.SourceFileName),
		PlaceholderArtifact, filepath.Join(dir, p.ArtifactName),
		PlaceholderDir, dir,
	)
	rt := make([]string, 0, len(args))
	for _, a := range args {
		rt = append(rt, r.Replace(a))
	}
	return rt
}

// Table maps each language to its ExecParam
type Table map[Language]ExecParam

// Get returns ExecParam for the language
func (t Table) Get(l Language) (ExecParam, error) {
	p, ok := t[l]
	if !ok {
		return ExecParam{}, fmt.Errorf("%w: %q has no toolchain entry", ErrUnknownLanguage, l)
	}
	return p, nil
}

var defaultEnv = []string{
	"PATH=/usr/local/bin:/usr/bin:/bin",
	"HOME=" + PlaceholderDir,
	"LANG=C.UTF-8",
}

// DefaultTable returns toolchain settings for a typical linux host
func DefaultTable() Table {
	const (
		compileTime   = 10 * time.Second
		compileMemory = 512 << 20
	)
	return Table{
		C: {
			SourceFileName:     "main.c",
			ArtifactName:       "main",
			CompileArgs:        []string{"/usr/bin/gcc", "-O2", "-std=c17", "-o", PlaceholderArtifact, PlaceholderSource, "-lm"},
			RunArgs:            []string{PlaceholderArtifact},
			Env:                defaultEnv,
			CompileTimeLimit:   compileTime,
			CompileMemoryLimit: compileMemory,
			StrictMemoryLimit:  true,
		},
		CPP: {
			SourceFileName:     "main.cpp",
			ArtifactName:       "main",
			CompileArgs:        []string{"/usr/bin/g++", "-O2", "-std=c++17", "-o", PlaceholderArtifact, PlaceholderSource},
			RunArgs:            []string{PlaceholderArtifact},
			Env:                defaultEnv,
			CompileTimeLimit:   compileTime,
			CompileMemoryLimit: compileMemory,
			StrictMemoryLimit:  true,
		},
		Rust: {
			SourceFileName:     "main.rs",
			ArtifactName:       "main",
			CompileArgs:        []string{"rustc", "-O", "--edition", "2021", "-o", PlaceholderArtifact, PlaceholderSource},
			RunArgs:            []string{PlaceholderArtifact},
			Env:                defaultEnv,
			CompileTimeLimit:   2 * compileTime,
			CompileMemoryLimit: compileMemory,
			StrictMemoryLimit:  true,
		},
		Go: {
			SourceFileName:     "main.go",
			ArtifactName:       "main",
			CompileArgs:        []string{"go", "build", "-o", PlaceholderArtifact, PlaceholderSource},
			RunArgs:            []string{PlaceholderArtifact},
			Env:                append([]string{"GOCACHE=" + PlaceholderDir + "/.cache", "CGO_ENABLED=0"}, defaultEnv...),
			CompileTimeLimit:   2 * compileTime,
			CompileMemoryLimit: 1 << 30,
		},
		Python3: {
			SourceFileName: "main.py",
			RunArgs:        []string{"python3", PlaceholderSource},
			Env:            defaultEnv,
		},
		Java: {
			SourceFileName:     "Main.java",
			ArtifactName:       "Main.class",
			CompileArgs:        []string{"javac", "-encoding", "UTF-8", "-d", PlaceholderDir, PlaceholderSource},
			RunArgs:            []string{"java", "-cp", PlaceholderDir, "Main"},
			Env:                defaultEnv,
			CompileTimeLimit:   2 * compileTime,
			CompileMemoryLimit: 1 << 30,
		},
	}
}
