package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGraph_Components(t *testing.T) {
	g := NewGraph()
	for _, n := range []int{5, 1, 3, 2, 4} {
		g.AddNode(n)
	}
	g.AddEdge(3, 1)
	g.AddEdge(4, 2)

	assert.Equal(t, 5, g.Len())
	assert.Equal(t, [][]int{{5}, {1, 3}, {2, 4}}, g.Components())
}

func TestGraph_ChainIsOneComponent(t *testing.T) {
	g := NewGraph()
	g.AddEdge(0, 1)
	g.AddEdge(1, 2)
	g.AddEdge(2, 3)
	assert.Equal(t, [][]int{{0, 1, 2, 3}}, g.Components())
}

func TestGraph_DuplicateNodesAndSelfLoops(t *testing.T) {
	g := NewGraph()
	g.AddNode(1)
	g.AddNode(1)
	g.AddEdge(1, 1)
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, [][]int{{1}}, g.Components())
}

func TestGraph_Empty(t *testing.T) {
	assert.Empty(t, NewGraph().Components())
}

func TestGraph_ComponentsFollowInsertionOrder(t *testing.T) {
	g := NewGraph()
	for n := 49; n >= 0; n-- {
		g.AddNode(n)
	}
	for n := 0; n < 50; n += 2 {
		g.AddEdge(n, n+1)
	}

	want := make([][]int, 0, 25)
	for n := 48; n >= 0; n -= 2 {
		want = append(want, []int{n, n + 1})
	}
	for range 5 {
		assert.Equal(t, want, g.Components())
	}
}
