// Package resolve implements the semantic resolver (component D): it
// completes the tree the parser builds - computing name paths, binding
// transition/timeout targets, checking region and event invariants -
// or reports the first violation as a semantic error naming the
// offending state or event, per §4.D of the specification.
package resolve

import (
	"fmt"
	"sort"

	"github.com/dekarrin/harel/internal/dsl/ast"
	"github.com/dekarrin/harel/internal/dslerr"
	"github.com/dekarrin/harel/internal/util"
)

// Spec resolves every machine in s in place and returns s for chaining.
func Spec(s *ast.Spec) (*ast.Spec, error) {
	for _, m := range s.Machines() {
		if err := Machine(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Machine runs the full resolution pipeline over a single machine.
func Machine(m *ast.Machine) error {
	if err := checkRegionClosure(m.State); err != nil {
		return err
	}
	assignPaths(m.State)
	if err := resolveTargets(m); err != nil {
		return err
	}
	if err := checkDefaultTransitionUniqueness(m.State); err != nil {
		return err
	}
	if err := mergeEvents(m); err != nil {
		return err
	}
	assignActiveEvents(m.State)
	return nil
}

// checkRegionClosure ensures every region (including the machine root's
// own region set) has exactly one start state.
func checkRegionClosure(s *ast.State) error {
	for ri, region := range s.Regions {
		starts := 0
		for _, c := range region {
			if c.Start {
				starts++
			}
		}
		if starts == 0 {
			return dslerr.Semantic(s.Pos, s.Name, "region %d has no start state", ri)
		}
		if starts > 1 {
			return dslerr.Semantic(s.Pos, s.Name, "region %d has more than one start state", ri)
		}
		for _, c := range region {
			if err := checkRegionClosure(c); err != nil {
				return err
			}
		}
	}
	return nil
}

// assignPaths performs the depth-first walk computing FullName, DotName,
// NameList and OrN for every state, rooted at the machine itself.
func assignPaths(root *ast.State) {
	root.FullName = root.Name
	root.DotName = root.Name
	root.NameList = []string{root.Name}

	var walk func(p *ast.State)
	walk = func(p *ast.State) {
		for ri, region := range p.Regions {
			for idx, child := range region {
				child.FullName = fmt.Sprintf("%s_%d_%s", p.FullName, ri, child.Name)
				child.DotName = p.DotName + "." + child.Name
				child.NameList = append(append([]string{}, p.NameList...), child.Name)
				child.OrN = idx
				walk(child)
			}
		}
	}
	walk(root)
}

func findChild(s *ast.State, name string) *ast.State {
	for _, region := range s.Regions {
		for _, c := range region {
			if c.Name == name {
				return c
			}
		}
	}
	return nil
}

// resolveTarget implements §4.D.3: ascend UpCount levels, then resolve
// downPath, falling back to the parent's children for the first
// component (sibling-targeting without an explicit "^").
func resolveTarget(owner *ast.State, upCount int, downPath []string, pos dslerr.Position, named string) (*ast.State, bool, error) {
	cur := owner
	for i := 0; i < upCount; i++ {
		if cur.Parent == nil {
			return nil, false, dslerr.Semantic(pos, named, "target ascends past the machine root")
		}
		cur = cur.Parent
	}
	if len(downPath) == 0 {
		return cur, false, nil
	}

	unconfigure := false
	first := downPath[0]
	next := findChild(cur, first)
	if next == nil {
		if cur.Parent == nil {
			return nil, false, noStateError(pos, named, first, cur)
		}
		next = findChild(cur.Parent, first)
		if next == nil {
			return nil, false, noStateError(pos, named, first, cur.Parent)
		}
		unconfigure = true
	}
	cur = next
	for _, name := range downPath[1:] {
		next := findChild(cur, name)
		if next == nil {
			return nil, false, noStateError(pos, named, name, cur)
		}
		cur = next
	}
	return cur, unconfigure, nil
}

// childNames returns the names of every direct child of s, across all
// of its regions, in declaration order.
func childNames(s *ast.State) []string {
	var names []string
	for _, region := range s.Regions {
		for _, c := range region {
			names = append(names, c.Name)
		}
	}
	return names
}

// noStateError reports a transition/timeout target naming a state that
// doesn't exist under scope, suggesting the names that do exist there
// so a typo is easy to spot.
func noStateError(pos dslerr.Position, named, target string, scope *ast.State) error {
	candidates := childNames(scope)
	if len(candidates) == 0 {
		return dslerr.Semantic(pos, named, "no state named %q under %q", target, scope.FullName)
	}
	return dslerr.Semantic(pos, named, "no state named %q under %q; known states there are %s", target, scope.FullName, util.MakeTextList(candidates))
}

func resolveTargets(m *ast.Machine) error {
	var walk func(s *ast.State) error
	walk = func(s *ast.State) error {
		for _, tr := range s.Transitions {
			if len(tr.DownPath) == 0 && tr.UpCount == 0 {
				continue // internal handler, no target
			}
			named := tr.Event
			if named == "" {
				named = "<default>"
			}
			target, unconfigure, err := resolveTarget(tr.Owner, tr.UpCount, tr.DownPath, tr.Pos, named)
			if err != nil {
				return err
			}
			tr.Target = target
			tr.Unconfigure = unconfigure
		}
		for _, to := range s.Timeouts {
			if !to.HasTarget {
				continue
			}
			target, unconfigure, err := resolveTarget(to.Owner, to.UpCount, to.DownPath, to.Pos, fmt.Sprintf("%s(%s)", to.Scale, to.ValueExpr))
			if err != nil {
				return err
			}
			to.Target = target
			to.Unconfigure = unconfigure
		}
		for _, region := range s.Regions {
			for _, c := range region {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(m.State)
}

func checkDefaultTransitionUniqueness(s *ast.State) error {
	var walk func(s *ast.State) error
	walk = func(s *ast.State) error {
		defaults := 0
		for _, tr := range s.Transitions {
			if tr.Event == "" {
				defaults++
			}
		}
		if defaults > 1 {
			return dslerr.Semantic(s.Pos, s.Name, "state has %d default transitions, at most one is allowed", defaults)
		}
		for _, region := range s.Regions {
			for _, c := range region {
				if err := walk(c); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(s)
}

// mergeEvents implements §4.D.5: every declaration of an event name must
// agree on parameter arity, and declared event superclasses are folded
// into the event table (registered with placeholder parameter names if
// nothing else declares them directly) so later arity checks also cover
// them.
func mergeEvents(m *ast.Machine) error {
	for _, s := range m.AllStates() {
		for _, tr := range s.Transitions {
			if tr.Event == "" {
				continue
			}
			e, ok := m.Event(tr.Event)
			if !ok {
				e = m.RegisterEvent(tr.Event, tr.Params)
			}
			if len(e.Params) != len(tr.Params) {
				return dslerr.Semantic(tr.Pos, tr.Event, "declared with %d parameter(s) here but %d elsewhere", len(tr.Params), len(e.Params))
			}
			for _, sup := range tr.Supers {
				se, ok := m.Event(sup.Name)
				if !ok {
					se = m.RegisterEvent(sup.Name, placeholderParams(len(sup.Args)))
				}
				if len(se.Params) != len(sup.Args) {
					return dslerr.Semantic(tr.Pos, sup.Name, "superclass event invoked with %d argument(s) here but declared with %d parameter(s)", len(sup.Args), len(se.Params))
				}
			}
		}
	}
	return nil
}

func placeholderParams(n int) []string {
	if n == 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("_arg%d", i)
	}
	return out
}

// assignActiveEvents implements §4.D.6: every state's ActiveEvents is the
// union of event names declared on it and on every descendant.
func assignActiveEvents(s *ast.State) map[string]bool {
	seen := map[string]bool{}
	for _, tr := range s.Transitions {
		if tr.Event != "" {
			seen[tr.Event] = true
		}
	}
	for _, region := range s.Regions {
		for _, c := range region {
			for name := range assignActiveEvents(c) {
				seen[name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	s.ActiveEvents = names
	return seen
}
