// Package emit implements the code emitter (component E): given a fully
// resolved *ast.Spec, it produces Go source text that builds a
// runtime.MachineDef for each declared machine. The DSL's guard
// conditions and action/entry/exit code are opaque host-language text;
// targeting Go, they are spliced in as literal Go expressions and
// statements rather than interpreted, so the emitted file is just
// another Go source file that imports runtime and the spec's own
// declared imports.
package emit

import (
	"fmt"
	"go/format"
	"strings"

	"github.com/dekarrin/harel/internal/dsl/ast"
)

// Go generates a single Go source file defining one exported
// New<Machine> function per machine in spec, each returning a
// *runtime.MachineDef. pkg is the package name for the generated file.
func Go(spec *ast.Spec, pkg string) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "package %s\n\n", pkg)

	imports := []string{`"github.com/dekarrin/harel/runtime"`}
	for _, it := range spec.Items {
		if imp, ok := it.(*ast.Import); ok {
			imports = append(imports, strings.TrimSpace(imp.Text))
		}
	}
	b.WriteString("import (\n")
	for _, imp := range imports {
		fmt.Fprintf(&b, "\t%s\n", imp)
	}
	b.WriteString(")\n\n")

	for _, it := range spec.Items {
		if c, ok := it.(*ast.Constant); ok {
			fmt.Fprintf(&b, "var %s = %s\n", c.Name, strings.TrimSpace(c.Expr))
		}
	}
	b.WriteString("\n")

	for _, m := range spec.Machines() {
		emitMachine(&b, m)
	}

	formatted, err := format.Source([]byte(b.String()))
	if err != nil {
		return b.String(), fmt.Errorf("emit: formatting generated source: %w", err)
	}
	return string(formatted), nil
}

// stateVar returns the stable local variable name for a state, derived
// from its parse-time ID so every reference to the same state within a
// machine's generated function agrees without a second lookup pass.
func stateVar(s *ast.State) string {
	return fmt.Sprintf("st%d", s.ID)
}

func exportedFuncName(machineName string) string {
	if machineName == "" {
		return "NewMachine"
	}
	return "New" + strings.ToUpper(machineName[:1]) + machineName[1:]
}

func emitMachine(b *strings.Builder, m *ast.Machine) {
	states := m.AllStates()

	fmt.Fprintf(b, "// %s builds the compiled definition for the %q machine.\n", exportedFuncName(m.Name), m.Name)
	fmt.Fprintf(b, "func %s() *runtime.MachineDef {\n", exportedFuncName(m.Name))

	for _, s := range states {
		fmt.Fprintf(b, "\t%s := &runtime.StateDef{}\n", stateVar(s))
	}
	b.WriteString("\n")

	for _, s := range states {
		emitStateBody(b, s, m)
	}

	b.WriteString("\tevents := map[string]*runtime.EventDef{\n")
	for _, e := range m.Events {
		emitEventDef(b, e, m)
	}
	b.WriteString("\t}\n\n")

	fmt.Fprintf(b, "\treturn &runtime.MachineDef{\n\t\tName: %q,\n\t\tRoot: %s,\n\t\tEvents: events,\n\t\tSuperclass: %q,\n\t}\n", m.Name, stateVar(m.State), m.Superclass)
	b.WriteString("}\n\n")
}

func emitStateBody(b *strings.Builder, s *ast.State, m *ast.Machine) {
	v := stateVar(s)
	fmt.Fprintf(b, "\t%s.FullName = %q\n", v, s.FullName)
	if s.Start {
		fmt.Fprintf(b, "\t%s.Start = true\n", v)
	}
	if s.Parent != nil {
		fmt.Fprintf(b, "\t%s.Parent = %s\n", v, stateVar(s.Parent))
		fmt.Fprintf(b, "\t%s.RegionIndex = %d\n", v, s.RegionIndex)
	}
	if len(s.Regions) > 0 {
		fmt.Fprintf(b, "\t%s.Regions = [][]*runtime.StateDef{\n", v)
		for _, region := range s.Regions {
			b.WriteString("\t\t{")
			for i, c := range region {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(stateVar(c))
			}
			b.WriteString("},\n")
		}
		b.WriteString("\t}\n")
	}
	if len(s.Enter) > 0 {
		fmt.Fprintf(b, "\t%s.Enter = func(inst *runtime.Instance) {\n%s\t}\n", v, indentLines(s.Enter, 2))
	}
	if len(s.Exit) > 0 {
		fmt.Fprintf(b, "\t%s.Exit = func(inst *runtime.Instance) {\n%s\t}\n", v, indentLines(s.Exit, 2))
	}
	if len(s.Transitions) > 0 {
		fmt.Fprintf(b, "\t%s.Transitions = []*runtime.TransitionDef{\n", v)
		for _, tr := range s.Transitions {
			emitTransition(b, tr, m)
		}
		b.WriteString("\t}\n")
	}
	if len(s.Timeouts) > 0 {
		fmt.Fprintf(b, "\t%s.Timeouts = []*runtime.TimeoutDef{\n", v)
		for _, to := range s.Timeouts {
			emitTimeout(b, to)
		}
		b.WriteString("\t}\n")
	}
	b.WriteString("\n")
}

// paramLocals binds one transition declaration's own parameter names to
// local variables inside its guard/action closure. The dispatcher binds
// Vars under the event's canonical parameter names (the first
// declaration's names - resolve.mergeEvents only requires later
// declarations to agree on arity, not spelling), so each local is read
// back by its position in canonical, not by matching localNames[i]
// against the Vars key directly. The blank assignment keeps the
// closure compiling even if a piece of embedded code doesn't reference
// a given parameter.
func paramLocals(canonical, localNames []string, indent string) string {
	var b strings.Builder
	for i, local := range localNames {
		key := local
		if i < len(canonical) {
			key = canonical[i]
		}
		fmt.Fprintf(&b, "%s%s := inst.Vars[%q]\n%s_ = %s\n", indent, local, key, indent, local)
	}
	return b.String()
}

// canonicalParams returns the parameter names the dispatcher actually
// binds Vars under for event, i.e. the machine's merged EventDef.
func canonicalParams(m *ast.Machine, event string) []string {
	if e, ok := m.Event(event); ok {
		return e.Params
	}
	return nil
}

func indentLines(lines []string, tabs int) string {
	prefix := strings.Repeat("\t", tabs)
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%s%s\n", prefix, l)
	}
	return b.String()
}

func emitTransition(b *strings.Builder, tr *ast.Transition, m *ast.Machine) {
	canonical := canonicalParams(m, tr.Event)
	b.WriteString("\t\t{\n")
	if tr.Event != "" {
		fmt.Fprintf(b, "\t\t\tEvent: %q,\n", tr.Event)
	}
	if tr.HasCondition {
		fmt.Fprintf(b, "\t\t\tGuard: func(inst *runtime.Instance) bool {\n%s\t\t\t\treturn %s\n\t\t\t},\n",
			paramLocals(canonical, tr.Params, "\t\t\t\t"), strings.TrimSpace(tr.Condition))
	}
	if tr.Target != nil {
		fmt.Fprintf(b, "\t\t\tTarget: %s,\n", stateVar(tr.Target))
	}
	if len(tr.Code) > 0 {
		fmt.Fprintf(b, "\t\t\tAction: func(inst *runtime.Instance) {\n%s%s\t\t\t},\n",
			paramLocals(canonical, tr.Params, "\t\t\t\t"), indentLines(tr.Code, 4))
	}
	b.WriteString("\t\t},\n")
}

func emitTimeout(b *strings.Builder, to *ast.Timeout) {
	b.WriteString("\t\t{\n")
	fmt.Fprintf(b, "\t\t\tScale: %q,\n", to.Scale)
	fmt.Fprintf(b, "\t\t\tValue: func(inst *runtime.Instance) float64 { return float64(%s) },\n", strings.TrimSpace(to.ValueExpr))
	if to.HasCondition {
		fmt.Fprintf(b, "\t\t\tGuard: func(inst *runtime.Instance) bool { return %s },\n", strings.TrimSpace(to.Condition))
	}
	if to.Target != nil {
		fmt.Fprintf(b, "\t\t\tTarget: %s,\n", stateVar(to.Target))
	}
	if len(to.Code) > 0 {
		fmt.Fprintf(b, "\t\t\tAction: func(inst *runtime.Instance) {\n%s\t\t\t},\n", indentLines(to.Code, 4))
	}
	b.WriteString("\t\t},\n")
}

// emitEventDef writes one EventDef entry. An event's Supers list is a
// property of the event, but the ast only records it on the transition
// declaration(s) that wrote `is`; every declaration for a given event
// must agree on parameter count (checked in resolve.mergeEvents), so
// the first declaring transition found is representative enough to
// supply both the parameter names in scope and the argument
// expressions for the superclass calls.
func emitEventDef(b *strings.Builder, e *ast.Event, m *ast.Machine) {
	fmt.Fprintf(b, "\t\t%q: {\n\t\t\tName: %q,\n", e.Name, e.Name)
	if len(e.Params) > 0 {
		fmt.Fprintf(b, "\t\t\tParams: []string{%s},\n", quoteList(e.Params))
	}
	if tr := representativeSuperTransition(m, e.Name); tr != nil {
		canonical := canonicalParams(m, tr.Event)
		b.WriteString("\t\t\tSupers: []runtime.SuperEvent{\n")
		for _, sup := range tr.Supers {
			fmt.Fprintf(b, "\t\t\t\t{\n\t\t\t\t\tName: %q,\n\t\t\t\t\tArgExprs: []func(inst *runtime.Instance) interface{}{\n", sup.Name)
			for _, arg := range sup.Args {
				fmt.Fprintf(b, "\t\t\t\t\t\tfunc(inst *runtime.Instance) interface{} {\n%s\t\t\t\t\t\t\treturn %s\n\t\t\t\t\t\t},\n",
					paramLocals(canonical, tr.Params, "\t\t\t\t\t\t\t"), strings.TrimSpace(arg))
			}
			b.WriteString("\t\t\t\t\t},\n\t\t\t\t},\n")
		}
		b.WriteString("\t\t\t},\n")
	}
	b.WriteString("\t\t},\n")
}

func representativeSuperTransition(m *ast.Machine, eventName string) *ast.Transition {
	for _, s := range m.AllStates() {
		for _, tr := range s.Transitions {
			if tr.Event == eventName && len(tr.Supers) > 0 {
				return tr
			}
		}
	}
	return nil
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}

