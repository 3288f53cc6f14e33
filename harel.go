// Package harel is the pipeline orchestrator (component G): it drives a
// host source file through extraction, lexing, parsing, resolution, and
// emission, and caches the result so that repeated Load calls for an
// unchanged file are free.
package harel

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dekarrin/harel/internal/dsl/ast"
	"github.com/dekarrin/harel/internal/dsl/emit"
	"github.com/dekarrin/harel/internal/dsl/export"
	"github.com/dekarrin/harel/internal/dsl/extract"
	"github.com/dekarrin/harel/internal/dsl/parse"
	"github.com/dekarrin/harel/internal/dsl/resolve"
)

// Artifact is everything the pipeline can produce from one host file: the
// resolved semantic model plus every generated rendering of it.
type Artifact struct {
	Spec     *ast.Spec
	Go       string
	YAML     []byte
	PlantUML string
}

type cacheEntry struct {
	modTime  time.Time
	artifact *Artifact
}

// Compiler runs the full pipeline and memoizes the result per source
// path, keyed on the file's modification time so an edited file is
// recompiled but an unchanged one is served from cache.
type Compiler struct {
	// Extract configures the host-file delimiters; the zero value uses
	// extract.DefaultDelimiter.
	Extract extract.Options

	// GoPackage names the package declaration in generated Go source.
	// Defaults to "machines" if empty.
	GoPackage string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates a Compiler with default extraction delimiters and package
// name "machines".
func New() *Compiler {
	return &Compiler{GoPackage: "machines", cache: make(map[string]cacheEntry)}
}

func (c *Compiler) pkgName() string {
	if c.GoPackage == "" {
		return "machines"
	}
	return c.GoPackage
}

// Load compiles the DSL region(s) of the host file at path through the
// full pipeline, returning a cached Artifact if the file's modification
// time has not changed since the last Load.
func (c *Compiler) Load(path string) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("harel: stat %s: %w", path, err)
	}

	c.mu.Lock()
	if entry, ok := c.cache[path]; ok && entry.modTime.Equal(info.ModTime()) {
		c.mu.Unlock()
		return entry.artifact, nil
	}
	c.mu.Unlock()

	hostData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harel: read %s: %w", path, err)
	}

	artifact, err := c.compile(extract.Source(string(hostData), c.Extract))
	if err != nil {
		return nil, fmt.Errorf("harel: compile %s: %w", path, err)
	}

	c.mu.Lock()
	c.cache[path] = cacheEntry{modTime: info.ModTime(), artifact: artifact}
	c.mu.Unlock()

	return artifact, nil
}

// Spec compiles path and returns just its resolved semantic model,
// bypassing emission of the Go/YAML/PlantUML renderings already cached
// on a prior Load of the same path.
func (c *Compiler) Spec(path string) (*ast.Spec, error) {
	artifact, err := c.Load(path)
	if err != nil {
		return nil, err
	}
	return artifact.Spec, nil
}

// Source compiles raw DSL text directly, with no host-file extraction
// step and no caching. Used by callers (the REPL, the HTTP service) that
// already hold the DSL text rather than a path to extract it from.
func (c *Compiler) Source(src string) (*Artifact, error) {
	return c.compile(src)
}

func (c *Compiler) compile(dslSrc string) (*Artifact, error) {
	spec, err := parse.Parse(dslSrc)
	if err != nil {
		return nil, err
	}

	if err := resolve.Spec(spec); err != nil {
		return nil, err
	}

	goSrc, err := emit.Go(spec, c.pkgName())
	if err != nil {
		return nil, err
	}

	yamlDoc, err := export.YAML(spec)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Spec:     spec,
		Go:       goSrc,
		YAML:     yamlDoc,
		PlantUML: export.PlantUML(spec),
	}, nil
}

// Forget drops any cached artifact for path, forcing the next Load to
// recompile regardless of modification time.
func (c *Compiler) Forget(path string) {
	c.mu.Lock()
	delete(c.cache, path)
	c.mu.Unlock()
}
