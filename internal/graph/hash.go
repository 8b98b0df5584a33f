package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Hash returns a stable SHA-256 over the workflow's nodes and edges.
//
// Name, description, timestamps and node positions are excluded, as is the
// declaration order of nodes and edges. Data bags are compared by value.
func Hash(w *Workflow) (string, error) {
	type node struct {
		ID   string         `json:"id"`
		Type NodeType       `json:"type"`
		Data map[string]any `json:"data"`
	}
	type edge struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}

	nodes := make([]node, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		nodes = append(nodes, node{ID: n.ID, Type: n.Type, Data: n.Data})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]edge, 0, len(w.Edges))
	for _, e := range w.Edges {
		edges = append(edges, edge{Source: e.Source, Target: e.Target})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})

	// encoding/json sorts map keys, so data bags serialize deterministically.
	data, err := json.Marshal(struct {
		Nodes []node `json:"nodes"`
		Edges []edge `json:"edges"`
	}{nodes, edges})
	if err != nil {
		return "", fmt.Errorf("failed to serialize workflow for hashing: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
