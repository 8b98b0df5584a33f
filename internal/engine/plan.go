package engine

import (
	"fmt"
	"strings"

	"github.com/jack-wz/utest/internal/graph"
)

// Artifact names data handed from one stage to the next.
type Artifact string

const (
	ArtifactElements Artifact = "elements"
	ArtifactChunks   Artifact = "chunks"
	ArtifactVectors  Artifact = "vectors"
)

// Stage names as reported in results.
const (
	StageExtraction    = "extraction"
	StageCleaning      = "cleaning"
	StageChunking      = "chunking"
	StageEmbedding     = "embedding"
	StageVectorStorage = "vector_storage"
)

// Progress written when a run starts and when it completes.
const (
	ProgressStarted   = 5
	ProgressCompleted = 100
)

// StageSpec declares one pipeline stage: the node type that enables it, the
// artifacts it consumes (any one suffices) and produces, and the progress
// written once it finishes.
type StageSpec struct {
	Name      string
	NodeType  graph.NodeType
	Inputs    []Artifact
	Outputs   []Artifact
	Milestone int
}

// Pipeline is the fixed stage order. Declared edges do not change it.
var Pipeline = []StageSpec{
	{Name: StageExtraction, NodeType: graph.NodeDataSource, Outputs: []Artifact{ArtifactElements}, Milestone: 25},
	{Name: StageCleaning, NodeType: graph.NodeCleaning, Inputs: []Artifact{ArtifactElements}, Outputs: []Artifact{ArtifactElements}, Milestone: 40},
	{Name: StageChunking, NodeType: graph.NodeChunking, Inputs: []Artifact{ArtifactElements}, Outputs: []Artifact{ArtifactChunks}, Milestone: 60},
	{Name: StageEmbedding, NodeType: graph.NodeEmbedding, Inputs: []Artifact{ArtifactChunks, ArtifactElements}, Outputs: []Artifact{ArtifactVectors}, Milestone: 80},
	{Name: StageVectorStorage, NodeType: graph.NodeConnector, Inputs: []Artifact{ArtifactVectors}, Milestone: 95},
}

// Step is a planned stage with the nodes that configure it.
type Step struct {
	StageSpec
	Nodes []graph.Node
}

// Plan is the ordered list of stages a workflow will run.
type Plan struct {
	Steps   []Step
	Skipped []SkippedStage
}

// Names returns the planned stage names in order.
func (p Plan) Names() []string {
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	return names
}

// BuildPlan selects the stages of Pipeline that w enables. A stage is
// skipped when no node of its type exists or when none of its inputs is
// produced by an earlier planned stage.
func BuildPlan(w *graph.Workflow) Plan {
	var plan Plan
	available := map[Artifact]bool{}

	for _, spec := range Pipeline {
		nodes := w.NodesOfType(spec.NodeType)
		if len(nodes) == 0 {
			plan.Skipped = append(plan.Skipped, SkippedStage{Stage: spec.Name, Reason: fmt.Sprintf("no %s node", spec.NodeType)})
			continue
		}
		if len(spec.Inputs) > 0 && !anyAvailable(spec.Inputs, available) {
			plan.Skipped = append(plan.Skipped, SkippedStage{Stage: spec.Name, Reason: "missing input: " + joinArtifacts(spec.Inputs)})
			continue
		}
		for _, a := range spec.Outputs {
			available[a] = true
		}
		plan.Steps = append(plan.Steps, Step{StageSpec: spec, Nodes: nodes})
	}
	return plan
}

func anyAvailable(inputs []Artifact, available map[Artifact]bool) bool {
	for _, a := range inputs {
		if available[a] {
			return true
		}
	}
	return false
}

func joinArtifacts(as []Artifact) string {
	s := make([]string, len(as))
	for i, a := range as {
		s[i] = string(a)
	}
	return strings.Join(s, " or ")
}
