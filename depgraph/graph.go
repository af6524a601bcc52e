// Package depgraph is the generic directed-graph utility the initializer
// builds its module-ordering and cycle-detection on. It knows nothing about
// plugins, services, or extension points — just nodes, the string ids they
// provide, and the string ids they consume.
package depgraph

import (
	"context"
)

// Node is one vertex of a Graph. Provides and Consumes are ids; a node
// becomes ready for Traverse once every node providing one of its Consumes
// ids has completed.
type Node[T any] struct {
	Value    T
	Provides []string
	Consumes []string
}

// Graph is a set of nodes related by the ids they provide and consume.
// Multiple nodes may provide the same id; a consumer then waits on all of
// them. Ids with no provider are treated as externally satisfied.
type Graph[T any] struct {
	nodes []*Node[T]
}

// New returns an empty Graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{}
}

// AddNode appends a node and returns it.
func (g *Graph[T]) AddNode(value T, provides, consumes []string) *Node[T] {
	n := &Node[T]{Value: value, Provides: provides, Consumes: consumes}
	g.nodes = append(g.nodes, n)
	return n
}

// Nodes returns the graph's nodes in insertion order.
func (g *Graph[T]) Nodes() []*Node[T] {
	return g.nodes
}

// edges returns, per node index, the set of node indices it depends on
// (deps[i]) and the set of node indices that depend on it (dependents[i]).
// Node i depends on node j when i consumes an id that j provides. A node
// never depends on itself even if its own provides/consumes overlap —
// self-loops would otherwise deadlock Traverse and add nothing but noise
// to DetectCircularDependency's diagnostics.
func (g *Graph[T]) edges() (deps, dependents [][]int) {
	n := len(g.nodes)
	providerIndex := make(map[string][]int)
	for i, node := range g.nodes {
		for _, id := range node.Provides {
			providerIndex[id] = append(providerIndex[id], i)
		}
	}

	deps = make([][]int, n)
	dependents = make([][]int, n)
	for i, node := range g.nodes {
		seen := make(map[int]bool)
		for _, id := range node.Consumes {
			for _, p := range providerIndex[id] {
				if p == i || seen[p] {
					continue
				}
				seen[p] = true
				deps[i] = append(deps[i], p)
				dependents[p] = append(dependents[p], i)
			}
		}
	}
	return deps, dependents
}

// DetectCircularDependency returns the node sequence n0 -> n1 -> ... -> nk
// where nk == n0 and each consumes an id the next one provides, or nil if
// the graph is acyclic.
func (g *Graph[T]) DetectCircularDependency() []*Node[T] {
	deps, _ := g.edges()
	n := len(g.nodes)

	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make([]int8, n)
	var path []int
	var cycle []int

	var dfs func(i int) bool
	dfs = func(i int) bool {
		state[i] = onStack
		path = append(path, i)
		for _, j := range deps[i] {
			if state[j] == onStack {
				start := 0
				for k, idx := range path {
					if idx == j {
						start = k
						break
					}
				}
				cycle = append(append([]int{}, path[start:]...), j)
				return true
			}
			if state[j] == unvisited && dfs(j) {
				return true
			}
		}
		path = path[:len(path)-1]
		state[i] = done
		return false
	}

	for i := 0; i < n; i++ {
		if state[i] == unvisited && dfs(i) {
			out := make([]*Node[T], len(cycle))
			for k, idx := range cycle {
				out[k] = g.nodes[idx]
			}
			return out
		}
	}
	return nil
}

// completion carries one visit's outcome back to the scheduling loop.
type completion struct {
	idx int
	err error
}

// Traverse visits every node exactly once, scheduling a node as soon as
// every node it depends on has completed, running ready nodes concurrently.
// Traverse assumes the graph is acyclic — call DetectCircularDependency
// first. If any visit fails, Traverse launches no further visits, still
// waits for the visits already running to finish (their results are
// discarded) and returns the first error.
func (g *Graph[T]) Traverse(ctx context.Context, visit func(context.Context, *Node[T]) error) error {
	n := len(g.nodes)
	if n == 0 {
		return nil
	}
	deps, dependents := g.edges()
	pending := make([]int, n)
	for i := range deps {
		pending[i] = len(deps[i])
	}

	done := make(chan completion, n)
	running := 0
	launch := func(i int) {
		running++
		go func() {
			done <- completion{idx: i, err: visit(ctx, g.nodes[i])}
		}()
	}

	for i := 0; i < n; i++ {
		if pending[i] == 0 {
			launch(i)
		}
	}

	var firstErr error
	for running > 0 {
		c := <-done
		running--
		if c.err != nil && firstErr == nil {
			firstErr = c.err
		}
		if firstErr != nil {
			continue
		}
		for _, d := range dependents[c.idx] {
			pending[d]--
			if pending[d] == 0 {
				launch(d)
			}
		}
	}
	return firstErr
}
