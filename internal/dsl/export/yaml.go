// Package export implements the two auxiliary exporters named in §6:
// a YAML dump of the resolved semantic model and a PlantUML statechart
// diagram. Neither affects the emitted machine's behavior; both are
// read-only views over the same *ast.Spec the emitter consumes.
package export

import (
	"gopkg.in/yaml.v3"

	"github.com/dekarrin/harel/internal/dsl/ast"
)

// specDoc is the YAML shape of a whole spec: every resolver-internal
// bookkeeping field (state IDs, OrN, ActiveEvents, the Unconfigure
// flag) is simply absent from these structs rather than tagged with a
// leading underscore and hidden - the same outcome the spec's "fields
// beginning with `_` hidden" rule describes, reached by only ever
// giving the DTO the fields a reader of the diagram actually wants.
type specDoc struct {
	Machines []machineDoc `yaml:"machines"`
}

type machineDoc struct {
	Name       string     `yaml:"name"`
	Superclass string     `yaml:"superclass,omitempty"`
	Events     []eventDoc `yaml:"events,omitempty"`
	State      stateDoc   `yaml:"state"`
}

type eventDoc struct {
	Name   string   `yaml:"name"`
	Params []string `yaml:"params,omitempty"`
}

type stateDoc struct {
	Name        string          `yaml:"name"`
	FullName    string          `yaml:"full_name"`
	Start       bool            `yaml:"start,omitempty"`
	Enter       []string        `yaml:"enter,omitempty"`
	Exit        []string        `yaml:"exit,omitempty"`
	Transitions []transitionDoc `yaml:"transitions,omitempty"`
	Timeouts    []timeoutDoc    `yaml:"timeouts,omitempty"`
	Regions     [][]stateDoc    `yaml:"regions,omitempty"`
}

type transitionDoc struct {
	Event     string   `yaml:"event,omitempty"`
	Params    []string `yaml:"params,omitempty"`
	Condition string   `yaml:"condition,omitempty"`
	Pass      bool     `yaml:"pass,omitempty"`
	Target    string   `yaml:"target,omitempty"`
	Code      []string `yaml:"code,omitempty"`
}

type timeoutDoc struct {
	Scale     string   `yaml:"scale"`
	Value     string   `yaml:"value"`
	Condition string   `yaml:"condition,omitempty"`
	Target    string   `yaml:"target,omitempty"`
	Code      []string `yaml:"code,omitempty"`
}

// YAML renders the resolved model of every machine in spec.
func YAML(spec *ast.Spec) ([]byte, error) {
	doc := specDoc{}
	for _, m := range spec.Machines() {
		doc.Machines = append(doc.Machines, machineDocFrom(m))
	}
	return yaml.Marshal(doc)
}

func machineDocFrom(m *ast.Machine) machineDoc {
	md := machineDoc{
		Name:       m.Name,
		Superclass: m.Superclass,
		State:      stateDocFrom(m.State),
	}
	for _, e := range m.Events {
		md.Events = append(md.Events, eventDoc{Name: e.Name, Params: e.Params})
	}
	return md
}

func stateDocFrom(s *ast.State) stateDoc {
	sd := stateDoc{
		Name:     s.Name,
		FullName: s.FullName,
		Start:    s.Start,
		Enter:    s.Enter,
		Exit:     s.Exit,
	}
	for _, tr := range s.Transitions {
		sd.Transitions = append(sd.Transitions, transitionDocFrom(tr))
	}
	for _, to := range s.Timeouts {
		sd.Timeouts = append(sd.Timeouts, timeoutDocFrom(to))
	}
	for _, region := range s.Regions {
		var rd []stateDoc
		for _, c := range region {
			rd = append(rd, stateDocFrom(c))
		}
		sd.Regions = append(sd.Regions, rd)
	}
	return sd
}

func transitionDocFrom(tr *ast.Transition) transitionDoc {
	td := transitionDoc{
		Event:     tr.Event,
		Params:    tr.Params,
		Condition: tr.Condition,
		Pass:      tr.IsPass,
		Code:      tr.Code,
	}
	if tr.Target != nil {
		td.Target = tr.Target.FullName
	}
	return td
}

func timeoutDocFrom(to *ast.Timeout) timeoutDoc {
	td := timeoutDoc{
		Scale:     to.Scale,
		Value:     to.ValueExpr,
		Condition: to.Condition,
		Code:      to.Code,
	}
	if to.Target != nil {
		td.Target = to.Target.FullName
	}
	return td
}
