package agents

// CausalGraph is a bounded, cycle-safe symptom -> candidate-cause adjacency
// used to ground the Diagnosis role's output in something more than an
// LLM's bare claim (spec §4.5: Diagnosis runs "bounded causal graph analysis
// with cycle detection and max fan-out").
type CausalGraph struct {
	Edges map[string][]string
}

// NewCausalGraph wraps edges, a symptom -> candidate-causes adjacency list.
// A nil map is treated as empty.
func NewCausalGraph(edges map[string][]string) *CausalGraph {
	if edges == nil {
		edges = make(map[string][]string)
	}
	return &CausalGraph{Edges: edges}
}

// WalkResult is a bounded graph-walk's output.
type WalkResult struct {
	RootCauses []string
	Truncated  bool // true if maxDepth or maxFanOut cut the walk short, or a cycle was cut
}

type walkFrame struct {
	node  string
	depth int
}

// Walk runs a bounded breadth-first search from start: never revisits a
// node (cycle detection), never explores past maxDepth hops, and never
// follows more than maxFanOut edges out of a single node. A node with no
// further edges is a root-cause leaf. Truncated reports whether a bound cut
// the walk short of exhausting every reachable node.
func (g *CausalGraph) Walk(start string, maxDepth, maxFanOut int) WalkResult {
	if maxDepth < 1 {
		maxDepth = 1
	}
	if maxFanOut < 1 {
		maxFanOut = 1
	}

	visited := map[string]bool{start: true}
	queue := []walkFrame{{node: start, depth: 0}}
	var leaves []string
	truncated := false

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		causes := g.Edges[cur.node]
		if len(causes) == 0 {
			leaves = append(leaves, cur.node)
			continue
		}
		if cur.depth >= maxDepth {
			truncated = true
			leaves = append(leaves, causes...)
			continue
		}

		fanOut := causes
		if len(fanOut) > maxFanOut {
			truncated = true
			fanOut = fanOut[:maxFanOut]
		}
		for _, next := range fanOut {
			if visited[next] {
				truncated = true
				continue
			}
			visited[next] = true
			queue = append(queue, walkFrame{node: next, depth: cur.depth + 1})
		}
	}

	return WalkResult{RootCauses: dedupeStrings(leaves), Truncated: truncated}
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
