// Package diagram renders scenario step graphs as Mermaid flowcharts or
// ASCII art, optionally overlaid with the results of a past execution.
package diagram

// NodeKind classifies a diagram node.
type NodeKind string

const (
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition" // step gated by a condition expression
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string // node IDs grouped by dependency depth, in layout order
}

// Node represents a single step in the diagram.
type Node struct {
	ID          string
	Label       string
	Kind        NodeKind
	Integration string
	Status      *StatusOverlay
}

// StatusOverlay carries the outcome of a step from a past execution.
type StatusOverlay struct {
	Status     string // from schema.StepStatus
	DurationMs int64
	ResourceID string
	Error      string
}

// Edge represents a dependency between two nodes.
type Edge struct {
	From string
	To   string
}
