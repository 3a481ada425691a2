package api

import "fmt"

// Validate performs the structural checks a graph must pass before it is
// published: unique ids, resolvable endpoints, reachability from start,
// outgoing-edge coverage for non-terminal nodes, and keyed guards on every
// cycle. It returns a *GraphInvalidError carrying all violations found.
//
// Cycles are permitted; the engine does not statically prove termination.
// What it does reject is a cycle none of whose edges carries a guard that
// reads a context key, because such a loop can never route out.
func (g WorkflowGraph) Validate() error {
	var violations []string
	addf := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	if g.Name == "" {
		addf("graph name is required")
	}
	if len(g.Nodes) == 0 {
		addf("graph has no nodes")
	}

	nodes := make(map[string]NodeSpec, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			addf("node with empty id")
			continue
		}
		if _, dup := nodes[n.ID]; dup {
			addf("duplicate node id %q", n.ID)
			continue
		}
		nodes[n.ID] = n

		if n.Pure() && (len(n.Inputs) > 0 || len(n.Outputs) > 0) {
			addf("pure node %q declares tool mappings", n.ID)
		}
		if n.OnFailure != nil {
			switch n.OnFailure.Kind {
			case FailRun:
			case RetryNode:
				if n.OnFailure.Retry == nil || n.OnFailure.Retry.MaxAttempts < 1 {
					addf("node %q RETRY policy needs MaxAttempts >= 1", n.ID)
				}
			case SkipToNode:
				if n.OnFailure.SkipTo == "" {
					addf("node %q SKIP_TO policy needs a target node", n.ID)
				}
			default:
				addf("node %q has unknown failure policy %q", n.ID, n.OnFailure.Kind)
			}
		}
	}

	// SkipTo targets can only be checked once all ids are known.
	for _, n := range g.Nodes {
		if n.OnFailure != nil && n.OnFailure.Kind == SkipToNode && n.OnFailure.SkipTo != "" {
			if _, ok := nodes[n.OnFailure.SkipTo]; !ok {
				addf("node %q SKIP_TO target %q does not exist", n.ID, n.OnFailure.SkipTo)
			}
		}
	}

	if g.Start == "" {
		addf("start node is required")
	} else if _, ok := nodes[g.Start]; !ok {
		addf("start node %q does not exist", g.Start)
	}

	outgoing := make(map[string]int, len(g.Nodes))
	adjacency := make(map[string][]string, len(g.Nodes))
	for i, e := range g.Edges {
		if _, ok := nodes[e.From]; !ok {
			addf("edge %d references unknown source node %q", i, e.From)
			continue
		}
		if _, ok := nodes[e.To]; !ok {
			addf("edge %d references unknown target node %q", i, e.To)
			continue
		}
		outgoing[e.From]++
		adjacency[e.From] = append(adjacency[e.From], e.To)
		for _, guard := range e.Guards {
			if !validGuardOp(guard.Op) {
				addf("edge %s->%s has unknown guard op %q", e.From, e.To, guard.Op)
			}
			if guard.Op != OpAlways && guard.Key == "" {
				addf("edge %s->%s guard %q needs a context key", e.From, e.To, guard.Op)
			}
		}
	}

	for id, n := range nodes {
		if n.Terminal && outgoing[id] > 0 {
			addf("terminal node %q has outgoing edges", id)
		}
		if !n.Terminal && outgoing[id] == 0 {
			addf("non-terminal node %q has no outgoing edges", id)
		}
	}

	if _, ok := nodes[g.Start]; ok {
		// SKIP_TO targets count as reachable: the failure policy is a
		// routing path even when no edge points at the target.
		reachAdjacency := make(map[string][]string, len(adjacency))
		for id, next := range adjacency {
			reachAdjacency[id] = append([]string(nil), next...)
		}
		for _, n := range g.Nodes {
			if n.OnFailure != nil && n.OnFailure.Kind == SkipToNode && n.OnFailure.SkipTo != "" {
				reachAdjacency[n.ID] = append(reachAdjacency[n.ID], n.OnFailure.SkipTo)
			}
		}

		reached := make(map[string]bool, len(nodes))
		queue := []string{g.Start}
		reached[g.Start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range reachAdjacency[cur] {
				if !reached[next] {
					reached[next] = true
					queue = append(queue, next)
				}
			}
		}
		for id := range nodes {
			if !reached[id] {
				addf("node %q is not reachable from start", id)
			}
		}
	}

	violations = append(violations, g.unguardedCycles(adjacency)...)

	if len(violations) > 0 {
		return &GraphInvalidError{Graph: g.Name, Violations: violations}
	}
	return nil
}

// unguardedCycles finds strongly connected components that contain a cycle
// and have no keyed guard on any internal edge.
func (g WorkflowGraph) unguardedCycles(adjacency map[string][]string) []string {
	components := stronglyConnected(adjacency)

	var violations []string
	for _, comp := range components {
		inComp := make(map[string]bool, len(comp))
		for _, id := range comp {
			inComp[id] = true
		}

		cyclic := len(comp) > 1
		if !cyclic {
			// A single node is only cyclic if it has a self-loop.
			for _, next := range adjacency[comp[0]] {
				if next == comp[0] {
					cyclic = true
					break
				}
			}
		}
		if !cyclic {
			continue
		}

		keyed := false
		for _, e := range g.Edges {
			if !inComp[e.From] || !inComp[e.To] {
				continue
			}
			for _, guard := range e.Guards {
				if _, ok := guard.RequiresKey(); ok {
					keyed = true
					break
				}
			}
		}
		if !keyed {
			violations = append(violations,
				fmt.Sprintf("cycle through %v has no guard referencing a context key", comp))
		}
	}
	return violations
}

// stronglyConnected is Tarjan's algorithm. Graphs are authoring-scale, so
// the recursive form is fine.
func stronglyConnected(adjacency map[string][]string) [][]string {
	index := 0
	indexes := make(map[string]int)
	lowlinks := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var components [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indexes[v] = index
		lowlinks[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adjacency[v] {
			if _, seen := indexes[w]; !seen {
				strongconnect(w)
				if lowlinks[w] < lowlinks[v] {
					lowlinks[v] = lowlinks[w]
				}
			} else if onStack[w] && indexes[w] < lowlinks[v] {
				lowlinks[v] = indexes[w]
			}
		}

		if lowlinks[v] == indexes[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			components = append(components, comp)
		}
	}

	for v := range adjacency {
		if _, seen := indexes[v]; !seen {
			strongconnect(v)
		}
	}
	return components
}

// RouteKeys returns the distinct context keys read by the guards on node
// id's outgoing edges. The engine checks these before calling ResolveNext
// so that an absent key is a MappingError, never a NoMatchingRoute.
func (g WorkflowGraph) RouteKeys(id string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, e := range g.Outgoing(id) {
		for _, guard := range e.Guards {
			if key, ok := guard.RequiresKey(); ok && !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// ResolveNext evaluates node id's outgoing edges in declaration order
// against the context snapshot and returns the first matching target.
// Tie-break is strictly first-match: never "most specific", never "all
// matching", so routing is deterministic and auditable from the graph
// definition alone. No match is a *NoMatchingRouteError, fatal to the run.
func (g WorkflowGraph) ResolveNext(id string, values map[string]any) (string, error) {
	for _, e := range g.Outgoing(id) {
		if e.matches(values) {
			return e.To, nil
		}
	}
	return "", &NoMatchingRouteError{Node: id}
}
