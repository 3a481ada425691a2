// Package weft is an embeddable coordination layer for multi-step AI
// workflows: it executes directed graphs whose nodes invoke registered
// tools and whose edges route on the run's accumulated context.
//
// Weft runs fully in Go, supports multiple persistence backends, and
// integrates into existing services without external infrastructure.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Registry
//  2. WorkflowGraph
//  3. Engine
//  4. GraphBuilder
//  5. Events
//
// # Registry
//
// Every external capability a workflow can invoke is registered as a
// ToolDescriptor: a name, typed input/output schemas, a timeout, and a
// handler. The registry validates every call against the schemas, so a
// node that feeds a tool the wrong shape fails loudly instead of producing
// garbage downstream.
//
// # WorkflowGraph
//
// A graph is nodes plus guarded edges. Each node maps context keys to tool
// arguments, invokes its tool, and writes declared results back to the
// context. Outgoing edges are tried in declaration order and the first
// guard that matches selects the next node; guards are plain data (key,
// operator, value), so graphs serialize and routing is auditable from the
// definition alone.
//
// Graphs are validated at registration: unreachable nodes, dangling edges,
// terminal nodes with successors, and cycles with no keyed guard are all
// rejected before any run starts.
//
// # Engine
//
// The Engine publishes graphs and drives runs. Run executes synchronously;
// Submit schedules the run on its own goroutine and returns immediately.
// Each run executes one node at a time on a single goroutine; concurrency
// exists across runs.
//
// Nodes can declare failure policies: fail the run (default), retry with
// exponential backoff, or skip to a designated node. Nodes marked
// AwaitInput suspend the run until Resume supplies the data it is waiting
// for, and Cancel stops a run cooperatively at the next node boundary.
//
// Storage backends:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Redis
//
// # GraphBuilder
//
// GraphBuilder is the ergonomic way to define graphs in Go:
//
//	g := weft.NewGraph("triage").
//	    Node("classify", "classifier",
//	        weft.Inputs(map[string]string{"text": "ticket"}),
//	        weft.Outputs(map[string]string{"label": "label"})).
//	    Node("escalate", "pager", weft.Terminal()).
//	    Node("archive", "archiver", weft.Terminal()).
//	    Edge("classify", "escalate", weft.Eq("label", "urgent")).
//	    Edge("classify", "archive").
//	    Graph()
//
// # Events
//
// Every run emits an append-only sequence of execution events (node
// started/succeeded/failed, routing decisions, run lifecycle). Events go
// to a pluggable sink; the bundled in-process bus fans them out to per-run
// subscribers without ever blocking the engine, and the HTTP server
// exposes them as a live SSE stream.
package weft
