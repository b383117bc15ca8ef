package problem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/criyle/go-evaluator/envexec"
	"github.com/criyle/go-evaluator/scoring"
	"github.com/criyle/go-evaluator/types"
	"github.com/goccy/go-yaml"
	"github.com/google/shlex"
)

// ConfigFileName is the name of the problem configuration in a problem directory
const ConfigFileName = "problem.yaml"

type yamlLimits struct {
	TimeLimit   string `yaml:"timeLimit"`
	MemoryLimit string `yaml:"memoryLimit"`
}

type yamlConfig struct {
	Name        string     `yaml:"name"`
	LongName    string     `yaml:"longName"`
	Statement   string     `yaml:"statement"`
	ScoreKind   string     `yaml:"scoreKind"`
	Rule        string     `yaml:"rule"`
	TimeLimit   string     `yaml:"timeLimit"`
	MemoryLimit string     `yaml:"memoryLimit"`
	Compile     yamlLimits `yaml:"compile"`
	Checker     struct {
		Type        string `yaml:"type"`
		Command     string `yaml:"command"`
		TimeLimit   string `yaml:"timeLimit"`
		MemoryLimit string `yaml:"memoryLimit"`
	} `yaml:"checker"`
	Subtasks []struct {
		Name   string   `yaml:"name"`
		Rule   string   `yaml:"rule"`
		Weight *float64 `yaml:"weight"`
		Cases  []struct {
			Input  string `yaml:"input"`
			Answer string `yaml:"answer"`
		} `yaml:"cases"`
	} `yaml:"subtasks"`
}

// Load reads and validates <dir>/problem.yaml. Paths in the result are
// absolute.
func Load(id, dir string) (*Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return nil, err
	}
	c, err := Parse(id, dir, b)
	if err != nil {
		return nil, err
	}
	for i, s := range c.Subtasks {
		for j, cs := range s.Cases {
			for _, p := range []string{cs.Input, cs.Answer} {
				if _, err := os.Stat(p); err != nil {
					return nil, fmt.Errorf("%w: problem %q subtask %d case %d: %w", ErrInvalidConfig, id, i, j, err)
				}
			}
		}
	}
	return c, nil
}

// Parse parses problem.yaml content. Relative paths resolve against dir.
func Parse(id, dir string, b []byte) (*Config, error) {
	var y yamlConfig
	if err := yaml.Unmarshal(b, &y); err != nil {
		return nil, fmt.Errorf("%w: problem %q: %w", ErrInvalidConfig, id, err)
	}
	c, err := y.convert(id, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: problem %q: %w", ErrInvalidConfig, id, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (y *yamlConfig) convert(id, dir string) (*Config, error) {
	c := &Config{
		ID:       id,
		Name:     y.Name,
		LongName: y.LongName,
	}
	if y.Statement != "" {
		c.Statement = resolve(dir, y.Statement)
	}

	var err error
	if c.ScoreKind, err = types.ParseScoreKind(y.ScoreKind); err != nil {
		return nil, err
	}
	if c.Rule, err = scoring.ParseRule(y.Rule); err != nil {
		return nil, err
	}
	if c.Limits, err = (yamlLimits{TimeLimit: y.TimeLimit, MemoryLimit: y.MemoryLimit}).convert(); err != nil {
		return nil, err
	}
	if c.Compile, err = y.Compile.convert(); err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	c.Checker.Type = CheckerType(y.Checker.Type)
	if c.Checker.Type == "" {
		c.Checker.Type = CheckerExact
	}
	if y.Checker.Command != "" {
		args, err := shlex.Split(y.Checker.Command)
		if err != nil {
			return nil, fmt.Errorf("checker command: %w", err)
		}
		if len(args) > 0 && strings.ContainsRune(args[0], '/') {
			args[0] = resolve(dir, args[0])
		}
		c.Checker.Args = args
		c.Checker.Dir = dir
	}
	if c.Checker.Limits, err = (yamlLimits{TimeLimit: y.Checker.TimeLimit, MemoryLimit: y.Checker.MemoryLimit}).convert(); err != nil {
		return nil, fmt.Errorf("checker: %w", err)
	}

	for _, ys := range y.Subtasks {
		s := Subtask{
			Name:   ys.Name,
			Weight: 1,
		}
		if ys.Weight != nil {
			s.Weight = *ys.Weight
		}
		if s.Rule, err = scoring.ParseRule(ys.Rule); err != nil {
			return nil, fmt.Errorf("subtask %s: %w", ys.Name, err)
		}
		for _, yc := range ys.Cases {
			s.Cases = append(s.Cases, Case{
				Input:  resolve(dir, yc.Input),
				Answer: resolve(dir, yc.Answer),
			})
		}
		c.Subtasks = append(c.Subtasks, s)
	}
	return c, nil
}

func (y yamlLimits) convert() (Limits, error) {
	var (
		l   Limits
		err error
	)
	if y.TimeLimit != "" {
		if l.TimeLimit, err = time.ParseDuration(y.TimeLimit); err != nil {
			return l, fmt.Errorf("timeLimit: %w", err)
		}
	}
	if y.MemoryLimit != "" {
		if l.MemoryLimit, err = envexec.ParseSize(y.MemoryLimit); err != nil {
			return l, fmt.Errorf("memoryLimit: %w", err)
		}
	}
	return l, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
