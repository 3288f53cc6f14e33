package harel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostFile = "package host\n\n%%\n" +
	"machine M:\n" +
	"    *state a:\n" +
	"        ev_go -> b\n" +
	"    state b:\n" +
	"        pass\n" +
	"%%\n"

func TestCompiler_LoadProducesAllRenderings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.go.txt")
	require.NoError(t, os.WriteFile(path, []byte(hostFile), 0644))

	c := New()
	artifact, err := c.Load(path)
	require.NoError(t, err)

	assert.Len(t, artifact.Spec.Machines(), 1)
	assert.Contains(t, artifact.Go, "func NewM() *runtime.MachineDef")
	assert.Contains(t, string(artifact.YAML), "name: M")
	assert.Contains(t, artifact.PlantUML, "@startuml")
}

func TestCompiler_LoadCachesUntilFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.go.txt")
	require.NoError(t, os.WriteFile(path, []byte(hostFile), 0644))

	c := New()
	first, err := c.Load(path)
	require.NoError(t, err)

	second, err := c.Load(path)
	require.NoError(t, err)
	assert.Same(t, first, second)

	// Force a distinct mtime so the cache is guaranteed to observe a
	// change regardless of filesystem timestamp granularity.
	newer := time.Now().Add(time.Second)
	require.NoError(t, os.WriteFile(path, []byte(hostFile), 0644))
	require.NoError(t, os.Chtimes(path, newer, newer))

	third, err := c.Load(path)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestCompiler_ForgetForcesRecompile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host.go.txt")
	require.NoError(t, os.WriteFile(path, []byte(hostFile), 0644))

	c := New()
	first, err := c.Load(path)
	require.NoError(t, err)

	c.Forget(path)

	second, err := c.Load(path)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestCompiler_Source_NoExtractionOrCaching(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        pass\n"

	c := New()
	artifact, err := c.Source(src)
	require.NoError(t, err)
	assert.Len(t, artifact.Spec.Machines(), 1)
}

func TestCompiler_LoadMissingFileIsError(t *testing.T) {
	c := New()
	_, err := c.Load(filepath.Join(t.TempDir(), "missing.go.txt"))
	assert.Error(t, err)
}
