package export

import (
	"fmt"
	"strings"

	"github.com/dekarrin/harel/internal/dsl/ast"
)

// PlantUML renders every machine in spec as a single @startuml document:
// one nested state block per machine, AND-regions separated by `--`, an
// initial-state arrow per region, and one labeled arrow per transition
// and timeout.
func PlantUML(spec *ast.Spec) string {
	var b strings.Builder
	b.WriteString("@startuml\n")
	for _, m := range spec.Machines() {
		writeState(&b, m.State, 0)
	}
	b.WriteString("@enduml\n")
	return b.String()
}

func writeState(b *strings.Builder, s *ast.State, depth int) {
	indent := strings.Repeat("  ", depth)
	if len(s.Regions) == 0 {
		fmt.Fprintf(b, "%sstate \"%s\" as %s\n", indent, s.Name, s.FullName)
		writeArrows(b, s, indent)
		return
	}

	fmt.Fprintf(b, "%sstate \"%s\" as %s {\n", indent, s.Name, s.FullName)
	inner := indent + "  "
	for ri, region := range s.Regions {
		if ri > 0 {
			fmt.Fprintf(b, "%s--\n", inner)
		}
		if start := regionStart(region); start != nil {
			fmt.Fprintf(b, "%s[*] --> %s\n", inner, start.FullName)
		}
		for _, child := range region {
			writeState(b, child, depth+1)
		}
	}
	fmt.Fprintf(b, "%s}\n", indent)
	writeArrows(b, s, indent)
}

func regionStart(region []*ast.State) *ast.State {
	for _, s := range region {
		if s.Start {
			return s
		}
	}
	return nil
}

func writeArrows(b *strings.Builder, s *ast.State, indent string) {
	for _, tr := range s.Transitions {
		if tr.Target == nil {
			continue
		}
		fmt.Fprintf(b, "%s%s --> %s : %s\n", indent, s.FullName, tr.Target.FullName, transitionLabel(tr))
	}
	for _, to := range s.Timeouts {
		if to.Target == nil {
			continue
		}
		fmt.Fprintf(b, "%s%s --> %s : %s\n", indent, s.FullName, to.Target.FullName, timeoutLabel(to))
	}
}

func transitionLabel(tr *ast.Transition) string {
	label := tr.Event
	if tr.HasCondition {
		label = fmt.Sprintf("[%s] %s", strings.TrimSpace(tr.Condition), label)
	}
	return strings.TrimSpace(label)
}

func timeoutLabel(to *ast.Timeout) string {
	label := fmt.Sprintf("%s(%s)", to.Scale, strings.TrimSpace(to.ValueExpr))
	if to.HasCondition {
		label = fmt.Sprintf("[%s] %s", strings.TrimSpace(to.Condition), label)
	}
	return label
}
