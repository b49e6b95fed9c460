// Package visualization renders controller diagrams as Graphviz documents
package visualization

import (
	"bytes"
	"cmp"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/1thirty-five/signalctl"
)

// DOTGenerator generates Graphviz DOT format representations of a controller
type DOTGenerator struct {
	diagram signalctl.Diagram
	options DOTOptions
}

// DOTOptions configures the DOT generation
type DOTOptions struct {
	ShowGuardConditions bool
	ShowDurations       bool
	ShowColors          bool
	RankDirection       string // "TB", "LR", "BT", "RL"
	NodeShape           string
	ClusterStyle        string
}

// DefaultDOTOptions returns sensible default options for DOT generation
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		ShowGuardConditions: true,
		ShowDurations:       true,
		ShowColors:          true,
		RankDirection:       "LR",
		NodeShape:           "box",
		ClusterStyle:        "rounded",
	}
}

// NewDOTGenerator creates a new DOT generator for the given diagram
func NewDOTGenerator(diagram signalctl.Diagram, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &DOTGenerator{
		diagram: diagram,
		options: opts,
	}
}

// Generate creates a DOT representation of the diagram
func (g *DOTGenerator) Generate() (string, error) {
	if _, ok := g.diagram.State(g.diagram.Initial); !ok {
		return "", fmt.Errorf("initial state %q is not part of the diagram", g.diagram.Initial)
	}
	order, err := g.nodeOrder()
	if err != nil {
		return "", fmt.Errorf("failed to order states: %w", err)
	}

	var dot strings.Builder

	dot.WriteString("digraph Controller {\n")
	dot.WriteString(fmt.Sprintf("  rankdir=%s;\n", g.options.RankDirection))
	dot.WriteString("  compound=true;\n")
	dot.WriteString(fmt.Sprintf("  node [shape=%s];\n", g.options.NodeShape))
	dot.WriteString("  edge [fontsize=10];\n\n")

	g.generateStates(&dot, order)
	dot.WriteString("\n")
	if err := g.generateTransitions(&dot); err != nil {
		return "", fmt.Errorf("failed to generate transitions: %w", err)
	}

	dot.WriteString("}\n")

	return dot.String(), nil
}

// nodeOrder lists the state ids breadth first from the initial state,
// ties broken by declaration order; unreachable states come last
func (g *DOTGenerator) nodeOrder() ([]string, error) {
	ids := make(map[string]int64, len(g.diagram.States))
	dg := simple.NewDirectedGraph()
	for i, s := range g.diagram.States {
		if _, dup := ids[s.ID]; dup {
			return nil, fmt.Errorf("duplicate state %q", s.ID)
		}
		ids[s.ID] = int64(i)
		dg.AddNode(simple.Node(i))
	}

	link := func(from, to string) error {
		f, ok := ids[from]
		if !ok {
			return fmt.Errorf("unknown state %q", from)
		}
		t, ok := ids[to]
		if !ok {
			return fmt.Errorf("unknown state %q", to)
		}
		if f != t {
			dg.SetEdge(dg.NewEdge(simple.Node(f), simple.Node(t)))
		}
		return nil
	}
	// A cluster is entered through its first child
	for _, s := range g.diagram.States {
		if children := g.diagram.Children(s.ID); len(children) > 0 {
			if err := link(s.ID, children[0].ID); err != nil {
				return nil, err
			}
		}
	}
	for _, t := range g.diagram.Transitions {
		if err := link(t.From, t.To); err != nil {
			return nil, err
		}
	}

	depth := make(map[int64]int, len(g.diagram.States))
	var bfs traverse.BreadthFirst
	bfs.Walk(dg, simple.Node(ids[g.diagram.Initial]), func(n graph.Node, d int) bool {
		depth[n.ID()] = d
		return false
	})

	unreachable := len(g.diagram.States)
	rank := func(i int) int {
		if d, ok := depth[int64(i)]; ok {
			return d
		}
		return unreachable
	}
	idx := make([]int, len(g.diagram.States))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(rank(a), rank(b))
	})

	order := make([]string, len(idx))
	for i, j := range idx {
		order[i] = g.diagram.States[j].ID
	}
	return order, nil
}

// generateStates generates DOT nodes, nesting children in clusters
func (g *DOTGenerator) generateStates(dot *strings.Builder, order []string) {
	dot.WriteString("  // States\n")

	for _, id := range order {
		state, _ := g.diagram.State(id)
		if state.Parent != "" {
			continue
		}
		children := g.diagram.Children(id)
		if len(children) == 0 {
			g.generateStateNode(dot, "  ", state)
			continue
		}

		dot.WriteString(fmt.Sprintf("  subgraph \"cluster_%s\" {\n", state.ID))
		dot.WriteString(fmt.Sprintf("    label=\"%s\";\n", escape(state.Label)))
		dot.WriteString(fmt.Sprintf("    style=\"%s\";\n", g.options.ClusterStyle))
		for _, child := range g.orderedChildren(order, id) {
			g.generateStateNode(dot, "    ", child)
		}
		dot.WriteString("  }\n")
	}
}

func (g *DOTGenerator) orderedChildren(order []string, parent string) []signalctl.DiagramState {
	var out []signalctl.DiagramState
	for _, id := range order {
		if s, _ := g.diagram.State(id); s.Parent == parent {
			out = append(out, s)
		}
	}
	return out
}

// generateStateNode generates a DOT node for a single state
func (g *DOTGenerator) generateStateNode(dot *strings.Builder, indent string, state signalctl.DiagramState) {
	shape := g.options.NodeShape
	fillColor := "lightblue"
	label := state.Label

	switch state.Kind {
	case signalctl.DiagramLifecycle:
		shape = "ellipse"
		fillColor = "lightgrey"
	case signalctl.DiagramSubPhase:
		fillColor = fillFor(state.V, state.H)
		if g.options.ShowColors {
			label += fmt.Sprintf("\\nV=%s H=%s", state.V, state.H)
		}
		if g.options.ShowDurations {
			label += fmt.Sprintf("\\n%v", state.Duration)
		}
	}
	if state.ID == g.diagram.Initial {
		fillColor = "lightgreen"
		label += "\\n(initial)"
	}

	dot.WriteString(fmt.Sprintf("%s\"%s\" [shape=%s style=\"filled\" fillcolor=%s label=\"%s\"];\n",
		indent, state.ID, shape, fillColor, escape(label)))
}

// generateTransitions generates DOT edges. Edges touching a cluster are
// anchored on its first child.
func (g *DOTGenerator) generateTransitions(dot *strings.Builder) error {
	dot.WriteString("  // Transitions\n")

	for _, t := range g.diagram.Transitions {
		from, fromCluster := g.anchor(t.From)
		to, toCluster := g.anchor(t.To)

		var attrs []string
		label := t.Trigger
		if g.options.ShowGuardConditions && t.Guard != "" {
			label += fmt.Sprintf(" [%s]", t.Guard)
		}
		if label != "" {
			attrs = append(attrs, fmt.Sprintf("label=\"%s\"", escape(label)))
		}
		if fromCluster {
			attrs = append(attrs, fmt.Sprintf("ltail=\"cluster_%s\"", t.From))
		}
		if toCluster {
			attrs = append(attrs, fmt.Sprintf("lhead=\"cluster_%s\"", t.To))
		}

		dot.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\"", from, to))
		if len(attrs) > 0 {
			dot.WriteString(" [" + strings.Join(attrs, " ") + "]")
		}
		dot.WriteString(";\n")
	}

	return nil
}

func (g *DOTGenerator) anchor(id string) (string, bool) {
	if children := g.diagram.Children(id); len(children) > 0 {
		return children[0].ID, true
	}
	return id, false
}

func fillFor(v, h signalctl.Color) string {
	switch {
	case v.Permissive() || h.Permissive():
		return "palegreen"
	case v == signalctl.Yellow || h == signalctl.Yellow:
		return "khaki"
	default:
		return "lightpink"
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}

	return os.WriteFile(filename, []byte(content), 0644)
}

// SVGGenerator generates SVG representations by calling Graphviz
type SVGGenerator struct {
	dotGenerator *DOTGenerator
}

// NewSVGGenerator creates a new SVG generator
func NewSVGGenerator(diagram signalctl.Diagram, options ...DOTOptions) *SVGGenerator {
	return &SVGGenerator{
		dotGenerator: NewDOTGenerator(diagram, options...),
	}
}

// Generate creates an SVG representation of the diagram
func (g *SVGGenerator) Generate() (string, error) {
	dotContent, err := g.dotGenerator.Generate()
	if err != nil {
		return "", err
	}

	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)

	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}

	return out.String(), nil
}

// GenerateSVG creates an SVG representation of the diagram
func (g *DOTGenerator) GenerateSVG() (string, error) {
	svgGen := &SVGGenerator{dotGenerator: g}
	return svgGen.Generate()
}
