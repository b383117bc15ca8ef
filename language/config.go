package language

import (
	"fmt"
	"os"
	"time"

	"github.com/criyle/go-evaluator/envexec"
	"github.com/goccy/go-yaml"
	"github.com/google/shlex"
)

// override is one entry of languages.yaml, empty fields keep the default
type override struct {
	Source             string   `yaml:"source"`
	Artifact           string   `yaml:"artifact"`
	Compile            string   `yaml:"compile"`
	Run                string   `yaml:"run"`
	Env                []string `yaml:"env"`
	CompileTimeLimit   string   `yaml:"compileTimeLimit"`
	CompileMemoryLimit string   `yaml:"compileMemoryLimit"`
	StrictMemoryLimit  *bool    `yaml:"strictMemoryLimit"`
}

// LoadTable reads toolchain overrides from a YAML file on top of DefaultTable.
// A missing file yields the default table.
func LoadTable(path string) (Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}
	if err := t.apply(b); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func (t Table) apply(b []byte) error {
	var m map[string]override
	if err := yaml.Unmarshal(b, &m); err != nil {
		return err
	}
	for name, o := range m {
		l, err := Parse(name)
		if err != nil {
			return err
		}
		p := t[l]
		if o.Source != "" {
			p.SourceFileName = o.Source
		}
		if o.Artifact != "" {
			p.ArtifactName = o.Artifact
		}
		if o.Compile != "" {
			if p.CompileArgs, err = shlex.Split(o.Compile); err != nil {
				return fmt.Errorf("%s compile: %w", name, err)
			}
		}
		if o.Run != "" {
			if p.RunArgs, err = shlex.Split(o.Run); err != nil {
				return fmt.Errorf("%s run: %w", name, err)
			}
		}
		if o.Env != nil {
			p.Env = o.Env
		}
		if o.CompileTimeLimit != "" {
			if p.CompileTimeLimit, err = time.ParseDuration(o.CompileTimeLimit); err != nil {
				return fmt.Errorf("%s compileTimeLimit: %w", name, err)
			}
		}
		if o.CompileMemoryLimit != "" {
			if p.CompileMemoryLimit, err = envexec.ParseSize(o.CompileMemoryLimit); err != nil {
				return fmt.Errorf("%s compileMemoryLimit: %w", name, err)
			}
		}
		if o.StrictMemoryLimit != nil {
			p.StrictMemoryLimit = *o.StrictMemoryLimit
		}
		if len(p.RunArgs) == 0 {
			return fmt.Errorf("%s: empty run command", name)
		}
		t[l] = p
	}
	return nil
}
