package graph

import (
	"fmt"
	"sort"

	"github.com/jack-wz/utest/internal/apperr"
)

// Validate checks the structure of a workflow and the configuration of every
// known node. It rejects duplicate node ids, self-referential edges and edges
// whose source or target is not a node of the workflow. Nodes of an unknown
// type are accepted as-is.
func Validate(w *Workflow) error {
	if w == nil {
		return apperr.Validation("workflow is required")
	}

	nodeIDs := make(map[string]bool, len(w.Nodes))
	for _, n := range w.Nodes {
		if n.ID == "" {
			return &apperr.ValidationError{Field: "nodes", Msg: "node id is required"}
		}
		if nodeIDs[n.ID] {
			return &apperr.ValidationError{Field: "nodes", Msg: fmt.Sprintf("duplicate node id %q", n.ID)}
		}
		nodeIDs[n.ID] = true
	}

	// Sorted for deterministic error reporting.
	edges := make([]Edge, len(w.Edges))
	copy(edges, w.Edges)
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})

	for _, e := range edges {
		if e.Source == e.Target {
			return &apperr.ValidationError{Field: "edges", Msg: fmt.Sprintf("self-referential edge %q -> %q", e.Source, e.Target)}
		}
		if !nodeIDs[e.Source] {
			return &apperr.ValidationError{Field: "edges", Msg: fmt.Sprintf("edge %q references unknown node %q", e.ID, e.Source)}
		}
		if !nodeIDs[e.Target] {
			return &apperr.ValidationError{Field: "edges", Msg: fmt.Sprintf("edge %q references unknown node %q", e.ID, e.Target)}
		}
	}

	for _, n := range w.Nodes {
		if _, err := ParseConfig(n); err != nil {
			return err
		}
	}
	return nil
}
