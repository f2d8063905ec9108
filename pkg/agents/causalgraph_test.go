package agents

import "testing"

func TestCausalGraphWalk(t *testing.T) {
	graph := NewCausalGraph(map[string][]string{
		"symptom":              {"resource_exhaustion", "dependency_failure"},
		"resource_exhaustion":  {"memory_leak"},
		"dependency_failure":   {"network_partition", "downstream_outage"},
	})

	result := graph.Walk("symptom", 3, 4)
	if result.Truncated {
		t.Errorf("expected no truncation within bounds, got %+v", result)
	}
	want := map[string]bool{"memory_leak": true, "network_partition": true, "downstream_outage": true}
	if len(result.RootCauses) != len(want) {
		t.Fatalf("expected %d root causes, got %v", len(want), result.RootCauses)
	}
	for _, c := range result.RootCauses {
		if !want[c] {
			t.Errorf("unexpected root cause %q", c)
		}
	}
}

func TestCausalGraphWalkLeafNode(t *testing.T) {
	graph := NewCausalGraph(nil)
	result := graph.Walk("isolated", 3, 4)
	if result.Truncated {
		t.Error("a node with no outgoing edges should never be reported truncated")
	}
	if len(result.RootCauses) != 1 || result.RootCauses[0] != "isolated" {
		t.Errorf("expected the start node itself as the sole root cause, got %v", result.RootCauses)
	}
}

func TestCausalGraphWalkMaxDepthTruncates(t *testing.T) {
	graph := NewCausalGraph(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"d"},
	})
	result := graph.Walk("a", 1, 4)
	if !result.Truncated {
		t.Error("expected truncation once maxDepth is reached with more edges remaining")
	}
	if len(result.RootCauses) != 1 || result.RootCauses[0] != "c" {
		t.Errorf("expected the depth-bound frontier's unexplored children, got %v", result.RootCauses)
	}
}

func TestCausalGraphWalkMaxFanOutTruncates(t *testing.T) {
	graph := NewCausalGraph(map[string][]string{
		"a": {"b", "c", "d", "e"},
	})
	result := graph.Walk("a", 3, 2)
	if !result.Truncated {
		t.Error("expected truncation once maxFanOut caps the explored edges")
	}
	if len(result.RootCauses) != 2 {
		t.Errorf("expected exactly maxFanOut root causes, got %v", result.RootCauses)
	}
}

func TestCausalGraphWalkCycleDetection(t *testing.T) {
	graph := NewCausalGraph(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	})
	result := graph.Walk("a", 5, 5)
	if !result.Truncated {
		t.Error("expected the cycle back to a visited node to be reported as truncation")
	}
}
