package weft

import (
	"fmt"
	"time"

	"github.com/volvoxlabs/weft/pkg/api"
)

// GraphBuilder provides a fluent API for defining workflow graphs:
//
//	g := weft.NewGraph("proposal-pipeline").
//	    Node("search", "volvox_search_documents",
//	        weft.Inputs(map[string]string{"query": "query"}),
//	        weft.Outputs(map[string]string{"documents": "documents"})).
//	    Node("summarize", "volvox_summarize_documents",
//	        weft.Inputs(map[string]string{"documents": "documents"}),
//	        weft.Outputs(map[string]string{"summary": "summary"}),
//	        weft.Terminal()).
//	    Edge("search", "summarize", weft.Truthy("documents")).
//	    Graph()
//
//	if err := engine.RegisterGraph(g); err != nil {
//	    log.Fatal(err)
//	}
//
// The first node added becomes the start node unless StartAt overrides it.
type GraphBuilder struct {
	g api.WorkflowGraph
}

// NewGraph creates a new graph builder with the given name.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{g: api.WorkflowGraph{Name: name}}
}

// Version sets the graph version.
func (b *GraphBuilder) Version(v string) *GraphBuilder {
	b.g.Version = v
	return b
}

// StartAt overrides the start node.
func (b *GraphBuilder) StartAt(id string) *GraphBuilder {
	b.g.Start = id
	return b
}

// Node appends a tool-invoking node.
func (b *GraphBuilder) Node(id, tool string, opts ...NodeOption) *GraphBuilder {
	if id == "" {
		panic("weft: node id must not be empty")
	}
	n := api.NodeSpec{ID: id, Tool: tool}
	for _, opt := range opts {
		opt(&n)
	}
	b.g.Nodes = append(b.g.Nodes, n)
	if b.g.Start == "" {
		b.g.Start = id
	}
	return b
}

// PureNode appends a routing-only node that invokes no tool.
func (b *GraphBuilder) PureNode(id string, opts ...NodeOption) *GraphBuilder {
	return b.Node(id, "", opts...)
}

// Edge appends an edge. Guards are tried in the order given; an edge with
// no guards matches unconditionally.
func (b *GraphBuilder) Edge(from, to string, guards ...api.Guard) *GraphBuilder {
	b.g.Edges = append(b.g.Edges, api.EdgeSpec{From: from, To: to, Guards: guards})
	return b
}

// Graph returns the built WorkflowGraph. It does not validate; validation
// happens at registration.
func (b *GraphBuilder) Graph() api.WorkflowGraph {
	return b.g
}

// Register validates and publishes the graph on the given engine.
func (b *GraphBuilder) Register(e Engine) error {
	return e.RegisterGraph(b.g)
}

// NodeOption configures one node of a graph under construction.
type NodeOption func(*api.NodeSpec)

// Inputs sets the node's input mapping: tool argument name to context key.
func Inputs(m map[string]string) NodeOption {
	return func(n *api.NodeSpec) { n.Inputs = m }
}

// Outputs sets the node's output mapping: tool result key to context key.
func Outputs(m map[string]string) NodeOption {
	return func(n *api.NodeSpec) { n.Outputs = m }
}

// Terminal marks the node as a run-ending node.
func Terminal() NodeOption {
	return func(n *api.NodeSpec) { n.Terminal = true }
}

// AwaitInput parks the run in SUSPENDED when it reaches this node; Resume
// supplies the input and executes it.
func AwaitInput() NodeOption {
	return func(n *api.NodeSpec) { n.AwaitInput = true }
}

// Timeout bounds this node's tool call, overriding the descriptor's and
// the engine's defaults.
func Timeout(d time.Duration) NodeOption {
	return func(n *api.NodeSpec) { n.Timeout = d }
}

// WithRetry retries the node's tool on failure per the given policy.
// Exhausting the attempts fails the run.
func WithRetry(policy api.RetryPolicy) NodeOption {
	if policy.MaxAttempts < 1 {
		panic(fmt.Sprintf("weft: retry policy needs MaxAttempts >= 1, got %d", policy.MaxAttempts))
	}
	p := policy
	return func(n *api.NodeSpec) {
		n.OnFailure = &api.FailurePolicy{Kind: api.RetryNode, Retry: &p}
	}
}

// SkipTo routes the run to the named node when this node's tool fails.
func SkipTo(target string) NodeOption {
	return func(n *api.NodeSpec) {
		n.OnFailure = &api.FailurePolicy{Kind: api.SkipToNode, SkipTo: target}
	}
}
