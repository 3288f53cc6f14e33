package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/harel/internal/dsl/parse"
)

func TestRegionClosure_MissingStartIsError(t *testing.T) {
	src := "machine M:\n" +
		"    state a:\n" +
		"        pass\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)
	err = Spec(spec)
	assert.Error(t, err)
}

func TestRegionClosure_DuplicateStartIsError(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        pass\n" +
		"    *state b:\n" +
		"        pass\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)
	err = Spec(spec)
	assert.Error(t, err)
}

func TestAssignPaths_NamesAndFullNames(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        *state a1:\n" +
		"            pass\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)
	require.NoError(t, Spec(spec))

	m := spec.Machines()[0]
	assert.Equal(t, "M", m.FullName)
	assert.Equal(t, "M", m.DotName)

	a := m.Regions[0][0]
	assert.Equal(t, "M_0_a", a.FullName)
	assert.Equal(t, "M.a", a.DotName)
	assert.Equal(t, []string{"M", "a"}, a.NameList)

	a1 := a.Regions[0][0]
	assert.Equal(t, "M_0_a_0_a1", a1.FullName)
	assert.Equal(t, "M.a.a1", a1.DotName)
}

func TestResolveTarget_UpAndSiblingFallback(t *testing.T) {
	src := "machine M:\n" +
		"    *state outer:\n" +
		"        *state a:\n" +
		"            go -> b\n" +
		"        state b:\n" +
		"            pass\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)
	require.NoError(t, Spec(spec))

	m := spec.Machines()[0]
	outer := m.Regions[0][0]
	a := outer.Regions[0][0]
	b := outer.Regions[0][1]

	tr := a.Transitions[0]
	require.NotNil(t, tr.Target)
	assert.Same(t, b, tr.Target)
	assert.True(t, tr.Unconfigure)
}

func TestResolveTarget_ChildLookupDoesNotUnconfigure(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        go -> b\n" +
		"        *state b:\n" +
		"            pass\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)
	require.NoError(t, Spec(spec))

	m := spec.Machines()[0]
	a := m.Regions[0][0]
	tr := a.Transitions[0]
	require.NotNil(t, tr.Target)
	assert.False(t, tr.Unconfigure)
}

func TestResolveTarget_UpPastRootIsError(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        go -> ^^.a\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)
	err = Spec(spec)
	assert.Error(t, err)
}

func TestDefaultTransitionUniqueness(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        [x] -> b\n" +
		"        [y] -> b\n" +
		"    state b:\n" +
		"        pass\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)
	err = Spec(spec)
	assert.Error(t, err)
}

func TestMergeEvents_ArityMismatchIsError(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        ev(x) -> b\n" +
		"    state b:\n" +
		"        ev(x, y) -> a\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)
	err = Spec(spec)
	assert.Error(t, err)
}

func TestMergeEvents_SuperclassRegisteredWithPlaceholderParams(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        ev_specific(x) is ev_general(0) -> a\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)
	require.NoError(t, Spec(spec))

	m := spec.Machines()[0]
	e, ok := m.Event("ev_general")
	require.True(t, ok)
	assert.Len(t, e.Params, 1)
}

func TestActiveEvents_UnionOfSelfAndDescendants(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        ev_top -> a\n" +
		"        *state a1:\n" +
		"            ev_inner: pass\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)
	require.NoError(t, Spec(spec))

	m := spec.Machines()[0]
	a := m.Regions[0][0]
	assert.ElementsMatch(t, []string{"ev_top", "ev_inner"}, a.ActiveEvents)

	a1 := a.Regions[0][0]
	assert.ElementsMatch(t, []string{"ev_inner"}, a1.ActiveEvents)
}

func TestResolveTarget_UnknownNameListsKnownSiblings(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        go -> nope\n" +
		"    state b:\n" +
		"        pass\n" +
		"    state c:\n" +
		"        pass\n"
	spec, err := parse.Parse(src)
	require.NoError(t, err)

	err = Spec(spec)
	require.Error(t, err)
	assert.ErrorContains(t, err, `no state named "nope"`)
	assert.ErrorContains(t, err, "a, b, and c")
}
