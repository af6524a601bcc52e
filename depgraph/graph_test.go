package depgraph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDetectCircularDependencyFindsCycle(t *testing.T) {
	g := New[string]()
	g.AddNode("M1", []string{"X"}, []string{"Y"})
	g.AddNode("M2", []string{"Y"}, []string{"X"})

	cycle := g.DetectCircularDependency()
	if cycle == nil {
		t.Fatalf("expected a cycle")
	}

	path := make([]string, len(cycle))
	for i, n := range cycle {
		path[i] = n.Value
	}
	want := []string{"M1", "M2", "M1"}
	if diff := cmp.Diff(want, path); diff != "" {
		t.Fatalf("unexpected cycle path (-want +got):\n%s", diff)
	}
}

func TestDetectCircularDependencyAcyclic(t *testing.T) {
	g := New[string]()
	g.AddNode("A", []string{"X"}, nil)
	g.AddNode("B", nil, []string{"X"})

	if cycle := g.DetectCircularDependency(); cycle != nil {
		t.Fatalf("expected no cycle, got %v", cycle)
	}
}

func TestTraverseOrdersProvidersAfterConsumers(t *testing.T) {
	g := New[string]()
	// B1 provides Bx, B2 consumes Bx — per the initializer's reversed
	// module graph, B1's node "consumes" what B2 "provides" so B1 runs
	// after B2.
	g.AddNode("B1", nil, []string{"Bx"})
	g.AddNode("B2", []string{"Bx"}, nil)

	var mu sync.Mutex
	var order []string
	err := g.Traverse(context.Background(), func(_ context.Context, n *Node[string]) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, n.Value)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "B2" || order[1] != "B1" {
		t.Fatalf("expected [B2 B1], got %v", order)
	}
}

func TestTraverseRunsIndependentNodesConcurrently(t *testing.T) {
	g := New[string]()
	g.AddNode("A", nil, nil)
	g.AddNode("B", nil, nil)

	var running int32
	var mu sync.Mutex
	var sawBoth bool
	err := g.Traverse(context.Background(), func(_ context.Context, n *Node[string]) error {
		mu.Lock()
		running++
		if running == 2 {
			sawBoth = true
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sawBoth {
		t.Fatalf("expected both independent nodes to run concurrently")
	}
}

func TestTraverseFailFastStillWaitsForSiblings(t *testing.T) {
	g := New[string]()
	g.AddNode("fails", nil, nil)
	g.AddNode("slow", nil, nil)

	var slowFinished bool
	boom := errors.New("boom")
	err := g.Traverse(context.Background(), func(_ context.Context, n *Node[string]) error {
		if n.Value == "fails" {
			return boom
		}
		time.Sleep(20 * time.Millisecond)
		slowFinished = true
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if !slowFinished {
		t.Fatalf("expected the sibling visit to still run to completion")
	}
}

func TestTraverseUnknownConsumedIdIsExternallySatisfied(t *testing.T) {
	g := New[string]()
	g.AddNode("A", nil, []string{"nobody-provides-this"})

	visited := false
	err := g.Traverse(context.Background(), func(_ context.Context, n *Node[string]) error {
		visited = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !visited {
		t.Fatalf("expected node to be visited despite the unresolvable id")
	}
}

func TestTraverseEmptyGraph(t *testing.T) {
	g := New[int]()
	if err := g.Traverse(context.Background(), func(context.Context, *Node[int]) error { return nil }); err != nil {
		t.Fatalf("unexpected error on empty graph: %v", err)
	}
}
