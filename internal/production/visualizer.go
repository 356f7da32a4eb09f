package production

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/comalice/machinestore/chart"
)

// DefaultVisualizer renders machine definitions as Graphviz DOT.
type DefaultVisualizer struct{}

// edge represents a transition edge between two state paths.
type edge struct {
	From  string
	To    string
	Label string
}

// ExportDOT generates Graphviz DOT source for the statechart. current lists
// the active leaf paths; they and their ancestors are highlighted.
func (v *DefaultVisualizer) ExportDOT(config chart.MachineConfig, current []string) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "digraph %q {\n", config.ID)
	buf.WriteString(`  rankdir=LR;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
  "__start" [shape=point];
`)

	active := activeStates(current)
	for _, id := range sortedStateIDs(config) {
		renderState(&buf, id, config.States[id], active, "  ")
	}

	fmt.Fprintf(&buf, "  \"__start\" -> %q;\n", config.Initial)
	for _, e := range collectEdges(config) {
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.From, e.To, e.Label)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// ExportJSON serializes the machine config to JSON.
func (v *DefaultVisualizer) ExportJSON(config chart.MachineConfig) ([]byte, error) {
	return json.MarshalIndent(config, "", "  ")
}

// activeStates returns the active leaf paths and all their ancestors.
func activeStates(current []string) map[string]bool {
	active := make(map[string]bool)
	for _, path := range current {
		segments := strings.Split(path, ".")
		for i := range segments {
			active[strings.Join(segments[:i+1], ".")] = true
		}
	}
	return active
}

// collectEdges returns every targeted transition in document order.
// Delayed transitions are labelled "after <delay>".
func collectEdges(config chart.MachineConfig) []edge {
	var edges []edge
	config.Walk(func(path string, state *chart.StateConfig) bool {
		for _, event := range sortedKeys(state.On) {
			for _, trans := range state.On[event] {
				if trans.Target != "" {
					edges = append(edges, edge{From: path, To: trans.Target, Label: edgeLabel(event, trans)})
				}
			}
		}
		for _, delay := range sortedKeys(state.After) {
			for _, trans := range state.After[delay] {
				if trans.Target != "" {
					edges = append(edges, edge{From: path, To: trans.Target, Label: edgeLabel("after "+delay, trans)})
				}
			}
		}
		return true
	})
	return edges
}

func edgeLabel(event string, trans chart.TransitionConfig) string {
	if g, ok := trans.Guard.(string); ok && g != "" {
		return fmt.Sprintf("%s [%s]", event, g)
	}
	return event
}

// renderState recursively renders states; compound and parallel states
// become clusters containing a node for the state itself.
func renderState(buf *bytes.Buffer, path string, state *chart.StateConfig, active map[string]bool, indent string) {
	if len(state.Children) == 0 {
		label, attrs := nodeStyle(state)
		if active[path] {
			attrs += " style=filled fillcolor=lightgreen"
		}
		fmt.Fprintf(buf, "%s%q [label=%q%s];\n", indent, path, label, attrs)
		return
	}

	fmt.Fprintf(buf, "%ssubgraph %q {\n", indent, "cluster_"+path)
	fmt.Fprintf(buf, "%s  label=%q;\n", indent, fmt.Sprintf("%s (%s)", state.ID, state.Type))
	style := ""
	if active[path] {
		style = " style=filled fillcolor=orange"
	}
	if state.Type == chart.Parallel {
		fmt.Fprintf(buf, "%s  style=dashed;\n", indent)
		if !active[path] {
			style = " style=filled fillcolor=lightblue"
		}
	}
	fmt.Fprintf(buf, "%s  %q [label=%q shape=ellipse%s];\n", indent, path, state.ID, style)
	for _, child := range state.Children {
		renderState(buf, path+"."+child.ID, child, active, indent+"  ")
	}
	fmt.Fprintf(buf, "%s}\n", indent)
}

func nodeStyle(state *chart.StateConfig) (label, attrs string) {
	switch state.Type {
	case chart.Final:
		return state.ID, " shape=doublecircle"
	case chart.ShallowHistory:
		return "H", " shape=circle"
	case chart.DeepHistory:
		return "H*", " shape=circle"
	default:
		return state.ID, ""
	}
}

func sortedStateIDs(config chart.MachineConfig) []string {
	ids := make([]string, 0, len(config.States))
	for id := range config.States {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string][]chart.TransitionConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
