// Package sim builds a live *runtime.MachineDef from a resolved
// *ast.Machine the same way internal/dsl/emit's Go function builds Go
// source text for one, but it wires the result straight into memory
// instead of through a second compile step. Guard conditions and
// action/entry/exit code are opaque host-language text - there is no
// interpreter for it anywhere in this module, nor anywhere in the
// corpus this module was grounded on - so a simulated guard always
// reports what it would have evaluated and returns true, and a
// simulated action reports the source lines it stands in for instead
// of running them. This is what lets cmd/harelsh drive a real
// runtime.Instance (entry/exit ordering, AND-region configure/
// unconfigure, superclass fallthrough, LCA retargeting) against a
// freshly parsed machine without ever invoking the Go compiler.
package sim

import (
	"fmt"
	"strings"

	"github.com/dekarrin/harel/internal/dsl/ast"
	"github.com/dekarrin/harel/runtime"
)

// simulatedTimeoutMillis is the delay substituted for a timeout's
// ms(expr)/s(expr) value expression, which - like guards and actions -
// is opaque text that cannot be evaluated without a real compile. An
// hour is long enough that no timeout fires spontaneously during an
// interactive session; Reporter still narrates the real expression so
// the operator knows what was skipped.
const simulatedTimeoutMillis = 60 * 60 * 1000

// Reporter receives one line of narration each time a simulated guard,
// action, or timeout value stands in for real opaque code. A nil
// Reporter passed to Build is replaced with a no-op.
type Reporter func(line string)

// Build compiles m into a *runtime.MachineDef whose guards default to
// true, whose timeout delays default to simulatedTimeoutMillis, and
// whose actions and entry/exit handlers narrate to report instead of
// executing, so every opaque line of the original is at least
// surfaced rather than silently dropped.
func Build(m *ast.Machine, report Reporter) *runtime.MachineDef {
	if report == nil {
		report = func(string) {}
	}

	states := m.AllStates()
	defs := make(map[*ast.State]*runtime.StateDef, len(states))
	for _, s := range states {
		defs[s] = &runtime.StateDef{}
	}
	for _, s := range states {
		buildState(defs[s], s, defs, m, report)
	}

	events := make(map[string]*runtime.EventDef, len(m.Events))
	for _, e := range m.Events {
		events[e.Name] = buildEventDef(e, m, report)
	}

	return &runtime.MachineDef{
		Name:       m.Name,
		Root:       defs[m.State],
		Events:     events,
		Superclass: m.Superclass,
	}
}

func buildState(def *runtime.StateDef, s *ast.State, defs map[*ast.State]*runtime.StateDef, m *ast.Machine, report Reporter) {
	def.FullName = s.FullName
	def.Start = s.Start

	if s.Parent != nil {
		def.Parent = defs[s.Parent]
		def.RegionIndex = s.RegionIndex
	}

	if len(s.Regions) > 0 {
		def.Regions = make([][]*runtime.StateDef, len(s.Regions))
		for i, region := range s.Regions {
			row := make([]*runtime.StateDef, len(region))
			for j, c := range region {
				row[j] = defs[c]
			}
			def.Regions[i] = row
		}
	}

	if len(s.Enter) > 0 {
		name, lines := s.FullName, s.Enter
		def.Enter = func(inst *runtime.Instance) {
			narrateCode(report, fmt.Sprintf("entering %s", name), lines)
		}
	}
	if len(s.Exit) > 0 {
		name, lines := s.FullName, s.Exit
		def.Exit = func(inst *runtime.Instance) {
			narrateCode(report, fmt.Sprintf("exiting %s", name), lines)
		}
	}

	for _, tr := range s.Transitions {
		def.Transitions = append(def.Transitions, buildTransition(tr, defs, m, report))
	}
	for _, to := range s.Timeouts {
		def.Timeouts = append(def.Timeouts, buildTimeout(to, defs, report))
	}
}

func buildTransition(tr *ast.Transition, defs map[*ast.State]*runtime.StateDef, m *ast.Machine, report Reporter) *runtime.TransitionDef {
	def := &runtime.TransitionDef{Event: tr.Event}
	label := describeTransition(tr)

	if tr.HasCondition {
		cond := strings.TrimSpace(tr.Condition)
		def.Guard = func(inst *runtime.Instance) bool {
			report(fmt.Sprintf("%s: would evaluate guard %q, assuming true", label, cond))
			return true
		}
	}
	if tr.Target != nil {
		def.Target = defs[tr.Target]
	}
	if len(tr.Code) > 0 {
		lines := tr.Code
		def.Action = func(inst *runtime.Instance) {
			narrateCode(report, label, lines)
		}
	}
	return def
}

func buildTimeout(to *ast.Timeout, defs map[*ast.State]*runtime.StateDef, report Reporter) *runtime.TimeoutDef {
	label := describeTimeout(to)
	valueExpr := strings.TrimSpace(to.ValueExpr)

	def := &runtime.TimeoutDef{
		Scale: "ms",
		Value: func(inst *runtime.Instance) float64 {
			report(fmt.Sprintf("%s: would evaluate duration %s(%s), substituting %dms", label, to.Scale, valueExpr, simulatedTimeoutMillis))
			return simulatedTimeoutMillis
		},
	}
	if to.HasCondition {
		cond := strings.TrimSpace(to.Condition)
		def.Guard = func(inst *runtime.Instance) bool {
			report(fmt.Sprintf("%s: would evaluate guard %q, assuming true", label, cond))
			return true
		}
	}
	if to.Target != nil {
		def.Target = defs[to.Target]
	}
	if len(to.Code) > 0 {
		lines := to.Code
		def.Action = func(inst *runtime.Instance) {
			narrateCode(report, label, lines)
		}
	}
	return def
}

// buildEventDef mirrors emit.emitEventDef: every declaration of an
// event must agree on parameter arity (enforced by resolve), so the
// first declaring transition found is representative enough to supply
// the superclass forwarding clauses.
func buildEventDef(e *ast.Event, m *ast.Machine, report Reporter) *runtime.EventDef {
	def := &runtime.EventDef{Name: e.Name, Params: e.Params}

	tr := representativeSuperTransition(m, e.Name)
	if tr == nil {
		return def
	}
	for _, sup := range tr.Supers {
		se := runtime.SuperEvent{Name: sup.Name}
		for _, arg := range sup.Args {
			expr := strings.TrimSpace(arg)
			supName := sup.Name
			se.ArgExprs = append(se.ArgExprs, func(inst *runtime.Instance) interface{} {
				report(fmt.Sprintf("forwarding %s to %s: would evaluate argument %q, passing nil", e.Name, supName, expr))
				return nil
			})
		}
		def.Supers = append(def.Supers, se)
	}
	return def
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

func describeTransition(tr *ast.Transition) string {
	owner := ""
	if tr.Owner != nil {
		owner = tr.Owner.FullName
	}
	if tr.Event == "" {
		return fmt.Sprintf("default transition in %s", owner)
	}
	return fmt.Sprintf("%s in %s", tr.Event, owner)
}

func describeTimeout(to *ast.Timeout) string {
	owner := ""
	if to.Owner != nil {
		owner = to.Owner.FullName
	}
	return fmt.Sprintf("%s(%s) in %s", to.Scale, strings.TrimSpace(to.ValueExpr), owner)
}

func narrateCode(report Reporter, label string, lines []string) {
	report(fmt.Sprintf("%s: would run %d line(s) of code:", label, len(lines)))
	for _, l := range lines {
		report("    " + l)
	}
}
