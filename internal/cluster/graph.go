package cluster

import (
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Graph is an undirected graph over record indices, backed by gonum. It
// remembers node insertion order so components come out deterministically.
type Graph struct {
	g     *simple.UndirectedGraph
	order []int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{g: simple.NewUndirectedGraph()}
}

// AddNode adds i if it is not already present. Insertion order drives
// component discovery order.
func (g *Graph) AddNode(i int) {
	if g.g.Node(int64(i)) != nil {
		return
	}
	g.g.AddNode(simple.Node(i))
	g.order = append(g.order, i)
}

// AddEdge connects i and j, adding either node if needed.
func (g *Graph) AddEdge(i, j int) {
	g.AddNode(i)
	g.AddNode(j)
	if i == j {
		return
	}
	g.g.SetEdge(g.g.NewEdge(simple.Node(i), simple.Node(j)))
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Components returns the connected components in discovery order, each
// sorted ascending. Membership is transitive: a-b and b-c put a, b and c in
// one component whether or not a-c was ever linked.
//
// gonum walks nodes in map order, so components are re-ordered by the
// earliest insertion position of any member.
func (g *Graph) Components() [][]int {
	pos := make(map[int]int, len(g.order))
	for p, n := range g.order {
		pos[n] = p
	}

	type component struct {
		first   int
		members []int
	}
	var comps []component
	for _, nodes := range topo.ConnectedComponents(g.g) {
		c := component{first: len(g.order), members: make([]int, len(nodes))}
		for k, n := range nodes {
			id := int(n.ID())
			c.members[k] = id
			c.first = min(c.first, pos[id])
		}
		slices.Sort(c.members)
		comps = append(comps, c)
	}
	slices.SortFunc(comps, func(a, b component) int { return a.first - b.first })

	out := make([][]int, len(comps))
	for k, c := range comps {
		out[k] = c.members
	}
	return out
}
