package runtime

import "github.com/dekarrin/harel/internal/dslerr"

// MaxImmediateDepth bounds the chain of immediate (target-having,
// unconditional-or-guarded) transitions a single dispatch may take
// before the engine gives up and reports dslerr.Overflow instead of
// recursing forever. A well-formed machine never approaches this; it
// exists to turn an authoring mistake (a transition cycle with no
// timer or external event in between) into a reported error instead of
// a stack overflow.
const MaxImmediateDepth = 1000

type activeEntry struct {
	timers []TimerHandle
}

// Instance is one running machine built from a MachineDef. Vars is a
// shared variable bag that generated guard/action closures read and
// write; the DSL has no static type system, so this is the Go stand-in
// for the host language's free-form local/instance variables.
type Instance struct {
	def     *MachineDef
	reactor Reactor

	active      map[*StateDef]*activeEntry
	running     bool
	dispatching bool
	depth       int

	Vars map[string]interface{}
}

// NewInstance creates a stopped Instance. Call Start to enter the root.
func NewInstance(def *MachineDef, r Reactor) *Instance {
	return &Instance{
		def:     def,
		reactor: r,
		active:  make(map[*StateDef]*activeEntry),
		Vars:    make(map[string]interface{}),
	}
}

func (i *Instance) isActive(s *StateDef) bool {
	_, ok := i.active[s]
	return ok
}

// Active reports whether the state with the given FullName is in the
// active-state set, for tests and diagnostics.
func (i *Instance) Active(fullName string) bool {
	for s := range i.active {
		if s.FullName == fullName {
			return true
		}
	}
	return false
}

type overflowSignal struct{ state string }

// Start enters the machine root. Returns dslerr.Usage if already
// running.
func (i *Instance) Start() (err error) {
	if i.running {
		return dslerr.Usage("machine %q already started", i.def.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			if ov, ok := r.(overflowSignal); ok {
				err = dslerr.Overflow(ov.state, "immediate-transition depth exceeded %d", MaxImmediateDepth)
				return
			}
			panic(r)
		}
	}()
	i.running = true
	i.depth = 0
	i.enter(i.def.Root)
	return nil
}

// End unconfigures the machine root: recursive exit and timer
// cancellation.
func (i *Instance) End() error {
	if !i.running {
		return dslerr.Usage("machine %q is not running", i.def.Name)
	}
	if i.isActive(i.def.Root) {
		i.unconfigure(i.def.Root)
	}
	i.running = false
	return nil
}

// Fire submits event to the scheduler for dispatch, binding args
// positionally to the event's declared parameters. It validates that
// the machine is running and enforces the re-entrancy guard: calling
// Fire from inside a guard/action closure that is itself running as
// part of dispatching an event is a usage error - route the follow-up
// event through the scheduler instead (a Reactor.Call from the action
// closure, or simply let the DSL-level superclass/transition chain
// handle it).
func (i *Instance) Fire(event string, args ...interface{}) error {
	if !i.running {
		return dslerr.Usage("event %q fired on machine %q before start", event, i.def.Name)
	}
	if i.dispatching {
		return dslerr.Usage("recursive event %q fired while dispatching on machine %q", event, i.def.Name)
	}
	i.reactor.Call(func() {
		i.dispatchTop(event, args)
	})
	return nil
}

func (i *Instance) bindParams(params []string, args []interface{}) {
	for idx, name := range params {
		if idx < len(args) {
			i.Vars[name] = args[idx]
		}
	}
}

func (i *Instance) dispatchTop(event string, args []interface{}) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(overflowSignal); ok {
				// A dispatch-time overflow simply stops this round's
				// transition chain rather than crashing the reactor;
				// Start's own recover is what surfaces dslerr.Overflow
				// for the initial entry into the root.
				return
			}
			panic(r)
		}
	}()
	i.dispatching = true
	i.depth = 0
	defer func() { i.dispatching = false }()

	i.tryDispatch(event, args)
}

// tryDispatch runs one event, and if nothing handled it, re-dispatches
// as each declared superclass event in turn (§4.E step 4), with
// forwarding argument expressions evaluated against the specializing
// event's just-bound Vars before the parent event's own params
// overwrite them.
func (i *Instance) tryDispatch(event string, args []interface{}) bool {
	ev := i.def.Events[event]
	if ev != nil {
		i.bindParams(ev.Params, args)
	}
	if i.dispatch(i.def.Root, event) {
		return true
	}
	if ev == nil {
		return false
	}
	for _, sup := range ev.Supers {
		forwarded := make([]interface{}, len(sup.ArgExprs))
		for idx, expr := range sup.ArgExprs {
			forwarded[idx] = expr(i)
		}
		if i.tryDispatch(sup.Name, forwarded) {
			return true
		}
	}
	return false
}

// dispatch implements §4.E's event dispatch: recurse into active
// descendants first (bottom-up handling), then try this state's own
// transitions for event, then fall through to superclass events if
// nothing handled it anywhere in the active chain from here down.
func (i *Instance) dispatch(s *StateDef, event string) bool {
	handled := false
	for _, region := range s.Regions {
		for _, c := range region {
			if i.isActive(c) {
				if i.dispatch(c, event) {
					handled = true
				}
			}
		}
	}
	for _, tr := range s.Transitions {
		if tr.Event != event {
			continue
		}
		if tr.Guard != nil && !tr.Guard(i) {
			continue
		}
		i.applyTransition(s, tr)
		handled = true
		break
	}
	return handled
}

func (i *Instance) applyTransition(owner *StateDef, tr *TransitionDef) {
	if tr.Target == nil {
		if tr.Action != nil {
			tr.Action(i)
		}
		return
	}
	i.depth++
	if i.depth > MaxImmediateDepth {
		panic(overflowSignal{state: owner.FullName})
	}
	anchor := lca(owner, tr.Target)
	if anchor != owner {
		branch := owner
		for branch.Parent != anchor {
			branch = branch.Parent
		}
		if i.isActive(branch) {
			i.unconfigure(branch)
		}
	}
	if tr.Action != nil {
		tr.Action(i)
	}
	i.enter(tr.Target)
}

// enter implements the entry protocol: configure the outermost
// not-yet-active ancestor top-down, routing the actual target through
// as the configurator for its own region.
func (i *Instance) enter(s *StateDef) {
	if s.Parent != nil && !i.isActive(s.Parent) {
		cfgs := map[int]func(){s.RegionIndex: func() { i.configure(s, nil) }}
		i.configure(s.Parent, cfgs)
		return
	}
	i.configure(s, nil)
}

// configure implements §4.E's configure(S, configurators?).
func (i *Instance) configure(s *StateDef, configurators map[int]func()) {
	// Displace whatever is currently active in this region, including s
	// itself: a transition retargeting a state that is already active
	// (a self-transition) exits and re-enters it rather than being a
	// no-op.
	if s.Parent != nil {
		for _, sib := range s.Parent.Regions[s.RegionIndex] {
			if i.isActive(sib) {
				i.unconfigure(sib)
			}
		}
	}
	if s.Parent != nil && !i.isActive(s.Parent) {
		outer := map[int]func(){s.RegionIndex: func() { i.configure(s, configurators) }}
		i.configure(s.Parent, outer)
		return
	}

	entry := &activeEntry{}
	i.active[s] = entry
	if s.Enter != nil {
		s.Enter(i)
	}
	for _, to := range s.Timeouts {
		entry.timers = append(entry.timers, i.scheduleTimeout(s, to))
	}

	for ri, region := range s.Regions {
		if cfg, ok := configurators[ri]; ok {
			cfg()
		} else if start := regionStart(region); start != nil {
			i.configure(start, nil)
		}
	}

	i.fireImmediate(s)
}

func (i *Instance) unconfigure(s *StateDef) {
	for _, region := range s.Regions {
		for _, c := range region {
			if i.isActive(c) {
				i.unconfigure(c)
			}
		}
	}
	if s.Exit != nil {
		s.Exit(i)
	}
	if entry, ok := i.active[s]; ok {
		for _, h := range entry.timers {
			i.reactor.CancelAfter(h)
		}
	}
	delete(i.active, s)
}

func (i *Instance) fireImmediate(s *StateDef) {
	for _, tr := range s.Transitions {
		if tr.Event != "" {
			continue
		}
		if tr.Guard != nil && !tr.Guard(i) {
			continue
		}
		i.applyTransition(s, tr)
		return
	}
}

func (i *Instance) scheduleTimeout(owner *StateDef, to *TimeoutDef) TimerHandle {
	fire := func() {
		if !i.isActive(owner) {
			return
		}
		if to.Guard != nil && !to.Guard(i) {
			return
		}
		i.depth = 0
		if to.Target == nil {
			if to.Action != nil {
				to.Action(i)
			}
			return
		}
		def := &TransitionDef{Target: to.Target, Action: to.Action}
		i.applyTransition(owner, def)
	}
	value := to.Value(i)
	if to.Scale == "ms" {
		return i.reactor.AfterMillis(value, fire)
	}
	return i.reactor.AfterSeconds(value, fire)
}
