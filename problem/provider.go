package problem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrNotFound is returned for a problem id without configuration
var ErrNotFound = errors.New("problem not found")

// Provider resolves the problem configuration of a submission
type Provider interface {
	Get(ctx context.Context, id string) (*Config, error)
}

// DirProvider loads <root>/<id>/problem.yaml and caches the parsed result
type DirProvider struct {
	root  string
	cache *xsync.MapOf[string, *Config]
}

var _ Provider = &DirProvider{}

// NewDirProvider creates a provider backed by a read-only directory tree. A
// relative root is taken against the current working directory.
func NewDirProvider(root string) *DirProvider {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &DirProvider{
		root:  root,
		cache: xsync.NewMapOf[string, *Config](),
	}
}

// Get returns the cached configuration or loads it from disk
func (p *DirProvider) Get(ctx context.Context, id string) (*Config, error) {
	if c, ok := p.cache.Load(id); ok {
		return c, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: invalid problem id %q", ErrInvalidConfig, id)
	}
	c, err := Load(id, filepath.Join(p.root, id))
	if errors.Is(err, os.ErrNotExist) && !errors.Is(err, ErrInvalidConfig) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	c, _ = p.cache.LoadOrStore(id, c)
	return c, nil
}

// Invalidate drops the cached configuration of id
func (p *DirProvider) Invalidate(id string) {
	p.cache.Delete(id)
}
