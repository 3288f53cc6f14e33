package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dekarrin/harel/internal/dsl/ast"
)

func TestParse_SimpleMachineOneState(t *testing.T) {
	src := "machine Light:\n" +
		"    *state off:\n" +
		"        turn_on -> on\n" +
		"    state on:\n" +
		"        turn_off -> off\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, spec.Items, 1)

	m, ok := spec.Items[0].(*ast.Machine)
	require.True(t, ok)
	assert.Equal(t, "Light", m.Name)
	assert.Equal(t, "", m.Superclass)
	require.Len(t, m.Regions, 1)
	require.Len(t, m.Regions[0], 2)

	off := m.Regions[0][0]
	assert.Equal(t, "off", off.Name)
	assert.True(t, off.Start)
	require.Len(t, off.Transitions, 1)
	assert.Equal(t, "turn_on", off.Transitions[0].Event)
	assert.Equal(t, 0, off.Transitions[0].UpCount)
	assert.Equal(t, []string{"on"}, off.Transitions[0].DownPath)

	on := m.Regions[0][1]
	assert.False(t, on.Start)
	assert.Equal(t, "turn_off", on.Transitions[0].Event)
}

func TestParse_SuperclassAndParams(t *testing.T) {
	src := "machine Sub(Base):\n" +
		"    *state idle:\n" +
		"        pass\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	m := spec.Items[0].(*ast.Machine)
	assert.Equal(t, "Sub", m.Name)
	assert.Equal(t, "Base", m.Superclass)
}

func TestParse_EventWithParamsAndSuperclasses(t *testing.T) {
	src := "machine M:\n" +
		"    *state s:\n" +
		"        ev_specific(x, y) is ev_general(0, y) -> s\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	m := spec.Items[0].(*ast.Machine)
	s := m.Regions[0][0]
	require.Len(t, s.Transitions, 1)
	tr := s.Transitions[0]
	assert.Equal(t, "ev_specific", tr.Event)
	assert.Equal(t, []string{"x", "y"}, tr.Params)
	require.Len(t, tr.Supers, 1)
	assert.Equal(t, "ev_general", tr.Supers[0].Name)
	assert.Equal(t, []string{"0", "y"}, tr.Supers[0].Args)
}

func TestParse_GuardedInternalTransitionWithPass(t *testing.T) {
	src := "machine M:\n" +
		"    *state s:\n" +
		"        tick [count > 0]: pass\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	m := spec.Items[0].(*ast.Machine)
	tr := m.Regions[0][0].Transitions[0]
	assert.True(t, tr.HasCondition)
	assert.Equal(t, "count > 0", tr.Condition)
	assert.True(t, tr.Internal)
	assert.True(t, tr.IsPass)
}

func TestParse_InternalTransitionWithIndentedCodeBlock(t *testing.T) {
	src := "machine M:\n" +
		"    *state s:\n" +
		"        tick:\n" +
		"            x = x + 1\n" +
		"            log(x)\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	m := spec.Items[0].(*ast.Machine)
	tr := m.Regions[0][0].Transitions[0]
	assert.False(t, tr.IsPass)
	assert.Equal(t, []string{"x = x + 1", "log(x)"}, tr.Code)
}

func TestParse_DefaultTransitionAndUpTarget(t *testing.T) {
	src := "machine M:\n" +
		"    *state outer:\n" +
		"        *state a:\n" +
		"            [ready] -> ^.b\n" +
		"        state b:\n" +
		"            pass\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	m := spec.Items[0].(*ast.Machine)
	outer := m.Regions[0][0]
	a := outer.Regions[0][0]
	require.Len(t, a.Transitions, 1)
	tr := a.Transitions[0]
	assert.Equal(t, "", tr.Event)
	assert.True(t, tr.HasCondition)
	assert.Equal(t, "ready", tr.Condition)
	assert.Equal(t, 1, tr.UpCount)
	assert.Equal(t, []string{"b"}, tr.DownPath)
}

func TestParse_AndStateRegions(t *testing.T) {
	src := "machine M:\n" +
		"    *state top:\n" +
		"        *state left:\n" +
		"            pass\n" +
		"        ---\n" +
		"        *state right:\n" +
		"            pass\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	m := spec.Items[0].(*ast.Machine)
	top := m.Regions[0][0]
	require.True(t, top.IsAndState())
	require.Len(t, top.Regions, 2)
	assert.Equal(t, "left", top.Regions[0][0].Name)
	assert.Equal(t, "right", top.Regions[1][0].Name)
	assert.Equal(t, 0, top.Regions[0][0].RegionIndex)
	assert.Equal(t, 1, top.Regions[1][0].RegionIndex)
}

func TestParse_TimeoutWithScaleAndTarget(t *testing.T) {
	src := "machine M:\n" +
		"    *state waiting:\n" +
		"        ms(timeout_ms) [retries < 3] -> ^.retrying: retries = retries + 1\n" +
		"    state retrying:\n" +
		"        pass\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	m := spec.Items[0].(*ast.Machine)
	waiting := m.Regions[0][0]
	require.Len(t, waiting.Timeouts, 1)
	to := waiting.Timeouts[0]
	assert.Equal(t, "ms", to.Scale)
	assert.Equal(t, "timeout_ms", to.ValueExpr)
	assert.True(t, to.HasCondition)
	assert.Equal(t, "retries < 3", to.Condition)
	assert.True(t, to.HasTarget)
	assert.Equal(t, 1, to.UpCount)
	assert.Equal(t, []string{"retrying"}, to.DownPath)
	assert.Equal(t, []string{"retries = retries + 1"}, to.Code)
}

func TestParse_EnterExitClauses(t *testing.T) {
	src := "machine M:\n" +
		"    *state s:\n" +
		"        enter: log('enter s')\n" +
		"        exit:\n" +
		"            log('exit s')\n" +
		"            flush()\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	m := spec.Items[0].(*ast.Machine)
	s := m.Regions[0][0]
	assert.Equal(t, []string{"log('enter s')"}, s.Enter)
	assert.Equal(t, []string{"log('exit s')", "flush()"}, s.Exit)
}

func TestParse_ConstantsAndImports(t *testing.T) {
	src := "import fmt\n" +
		"MAX_RETRIES = 3\n" +
		"machine M:\n" +
		"    *state s:\n" +
		"        pass\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, spec.Items, 3)

	imp, ok := spec.Items[0].(*ast.Import)
	require.True(t, ok)
	assert.Equal(t, "fmt", imp.Text)

	c, ok := spec.Items[1].(*ast.Constant)
	require.True(t, ok)
	assert.Equal(t, "MAX_RETRIES", c.Name)
	assert.Equal(t, "3", c.Expr)

	_, ok = spec.Items[2].(*ast.Machine)
	require.True(t, ok)
}

func TestParse_NestedDottedTarget(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        *state a1:\n" +
		"            go -> ^.b.b1\n" +
		"    state b:\n" +
		"        *state b1:\n" +
		"            pass\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	m := spec.Items[0].(*ast.Machine)
	a1 := m.Regions[0][0].Regions[0][0]
	tr := a1.Transitions[0]
	assert.Equal(t, 1, tr.UpCount)
	assert.Equal(t, []string{"b", "b1"}, tr.DownPath)
}

func TestParse_MissingTargetOrBodyIsSyntaxError(t *testing.T) {
	src := "machine M:\n" +
		"    *state s:\n" +
		"        tick\n"

	_, err := Parse(src)
	assert.Error(t, err)
}

func TestParse_StableStateIDsAssignedInOrder(t *testing.T) {
	src := "machine M:\n" +
		"    *state a:\n" +
		"        pass\n" +
		"    state b:\n" +
		"        pass\n"

	spec, err := Parse(src)
	require.NoError(t, err)
	m := spec.Items[0].(*ast.Machine)
	a := m.Regions[0][0]
	b := m.Regions[0][1]
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, m.ID, a.ID)
}
