// Package graph holds the workflow graph: typed processing nodes, the edges
// between them and their per-type configuration.
//
// A Workflow is read-only for the duration of a run. Node types drive stage
// selection in the engine; edges are validated but do not order stages.
package graph

import "time"

// NodeType tags a node with the processing concern it configures.
type NodeType string

const (
	NodeDataSource NodeType = "datasource"
	NodeCleaning   NodeType = "cleaning"
	NodeChunking   NodeType = "chunking"
	NodeEmbedding  NodeType = "embedding"
	NodeConnector  NodeType = "connector"
)

// Known reports whether the engine has a stage for this node type.
func (t NodeType) Known() bool {
	switch t {
	case NodeDataSource, NodeCleaning, NodeChunking, NodeEmbedding, NodeConnector:
		return true
	}
	return false
}

// Position is the canvas location of a node. It has no execution meaning.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is one typed configuration unit of a workflow.
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Type     NodeType       `json:"type" yaml:"type"`
	Position Position       `json:"position" yaml:"position"`
	Data     map[string]any `json:"data" yaml:"data"`
}

// Edge connects two nodes by id.
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Workflow is a named node graph.
type Workflow struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Nodes       []Node    `json:"nodes" yaml:"nodes"`
	Edges       []Edge    `json:"edges" yaml:"edges"`
	Hash        string    `json:"hash,omitempty" yaml:"-"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// NodesOfType returns the nodes tagged t, in declaration order.
func (w *Workflow) NodesOfType(t NodeType) []Node {
	var nodes []Node
	for _, n := range w.Nodes {
		if n.Type == t {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// HasNodeType reports whether at least one node is tagged t.
func (w *Workflow) HasNodeType(t NodeType) bool {
	for _, n := range w.Nodes {
		if n.Type == t {
			return true
		}
	}
	return false
}
