// Package ast holds the semantic model (§3 of the specification): the
// tree of machines, states, events, transitions, and timeouts produced
// by the parser and completed by the resolver. Nodes are linked with
// plain pointers rather than an arena of integer indices - Go's garbage
// collector already handles the back-pointer cycles (State.Parent,
// Transition.Target) that a manually managed arena exists to avoid in
// languages without a collector - but every State still carries a
// stable ID assigned at parse time, so diagnostics and the emitter can
// refer to a state without walking the tree.
package ast

import "github.com/dekarrin/harel/internal/dslerr"

// Spec is the root of a parsed DSL file: an ordered sequence of
// constants, imports, and machines.
type Spec struct {
	Items []Item
}

// Machines returns the machines declared in the spec, in declaration
// order.
func (s *Spec) Machines() []*Machine {
	var out []*Machine
	for _, it := range s.Items {
		if m, ok := it.(*Machine); ok {
			out = append(out, m)
		}
	}
	return out
}

// Item is a top-level spec element: *Constant, *Import, or *Machine.
type Item interface {
	itemNode()
}

// Constant is a `NAME = rest-of-line` top-level declaration, passed
// through to emitted code verbatim.
type Constant struct {
	Name string
	Expr string
	Pos  dslerr.Position
}

func (*Constant) itemNode() {}

// Import is an `import rest-of-line` top-level declaration.
type Import struct {
	Text string
	Pos  dslerr.Position
}

func (*Import) itemNode() {}

// EventSuper records one `is PARENT(args)` clause attached to a
// transition: when the owning event is unhandled, it is re-dispatched as
// Name with Args substituted for the parent event's declared parameters.
type EventSuper struct {
	Name string
	Args []string
}

// Transition is a single `EVENT(...) [guard] -> target: code` clause, a
// `pass`/code-only internal handler, or (when Event == "") a default /
// immediate transition evaluated on state entry.
type Transition struct {
	Owner  *State
	Event  string // "" for a default/immediate transition
	Params []string
	Supers []EventSuper

	HasCondition bool
	Condition    string

	// Internal is true for transitions with no target ("EVENT: code" or
	// "EVENT: pass"): they run Code (if any) without changing state.
	Internal bool
	IsPass   bool

	UpCount    int
	DownPath   []string
	Target     *State
	Unconfigure bool

	Code []string

	N   int // declaration order among the owner's transitions for Event
	Pos dslerr.Position
}

// Timeout is a single `ms(expr)`/`s(expr)` clause.
type Timeout struct {
	Owner *State

	Scale     string // "ms" or "s"
	ValueExpr string

	HasCondition bool
	Condition    string

	HasTarget   bool
	UpCount     int
	DownPath    []string
	Target      *State
	Unconfigure bool

	Code []string

	N   int
	Pos dslerr.Position
}

// State is the recursive entity described in §3. A Machine is a State
// with Parent == nil plus machine-only fields.
type State struct {
	ID   int
	Name string

	Start  bool
	Parent *State

	Enter []string
	Exit  []string

	Transitions []*Transition
	Timeouts    []*Timeout

	// Regions holds one slice of child states per parallel region. A
	// single region makes this an OR-state; more than one makes it an
	// AND-state.
	Regions [][]*State

	// RegionIndex is this state's index within Parent.Regions (0 for the
	// machine root, which has no parent).
	RegionIndex int

	// Resolved by internal/dsl/resolve.
	FullName string
	DotName  string
	NameList []string

	// OrN is this state's ordinal position within its region's slice -
	// the order the emitter tries default configurators/transitions in.
	OrN int

	// ActiveEvents is the union of event names declared on this state and
	// every descendant, i.e. the set of events the emitted handler table
	// for this state must recognize so dispatch can recurse through it.
	ActiveEvents []string

	Pos dslerr.Position
}

// Machine is the root state of a statechart plus its event table and
// optional base-class name.
type Machine struct {
	*State
	Name       string
	Superclass string // opaque base-class identifier, "" if none

	Events     []*Event
	eventIndex map[string]*Event
}

func (*Machine) itemNode() {}

// Event is one named event accepted by a machine, with the parameter
// list that every declaration of it must agree on.
type Event struct {
	Name   string
	Params []string
}

// NewMachine creates an empty Machine rooted at a fresh State.
func NewMachine(name, superclass string, pos dslerr.Position) *Machine {
	root := &State{Name: name, Pos: pos}
	return &Machine{
		State:      root,
		Name:       name,
		Superclass: superclass,
		eventIndex: make(map[string]*Event),
	}
}

// Event looks up a previously registered event by name.
func (m *Machine) Event(name string) (*Event, bool) {
	e, ok := m.eventIndex[name]
	return e, ok
}

// RegisterEvent adds name to the machine's event table if it is new, or
// returns the existing entry. The caller is responsible for checking
// parameter-arity consistency across declarations.
func (m *Machine) RegisterEvent(name string, params []string) *Event {
	if e, ok := m.eventIndex[name]; ok {
		return e
	}
	e := &Event{Name: name, Params: params}
	m.eventIndex[name] = e
	m.Events = append(m.Events, e)
	return e
}

// AllStates returns every state in the machine, including the root,
// in a stable depth-first, region-major order.
func (m *Machine) AllStates() []*State {
	var out []*State
	var walk func(s *State)
	walk = func(s *State) {
		out = append(out, s)
		for _, region := range s.Regions {
			for _, child := range region {
				walk(child)
			}
		}
	}
	walk(m.State)
	return out
}

// IsAndState reports whether s has more than one parallel region.
func (s *State) IsAndState() bool {
	return len(s.Regions) > 1
}

// IsLeaf reports whether s has no child regions at all.
func (s *State) IsLeaf() bool {
	return len(s.Regions) == 0
}
