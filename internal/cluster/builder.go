// Package cluster groups duplicate records into clusters: an exact pass on
// a shared key, then fuzzy scoring inside blocks, then connected components.
package cluster

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-dedupe/internal/blocking"
	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/similarity"
)

// Result is the partition of a dataset into clusters.
type Result struct {
	Kind     model.EntityKind `json:"kind"`
	Clusters []model.Cluster  `json:"clusters"`
	// Assignments maps record index to cluster id.
	Assignments []int `json:"assignments"`
	// NextID is the id counter after the last cluster was assigned.
	NextID int `json:"next_id"`

	Blocks      int `json:"blocks"`
	Comparisons int `json:"comparisons"`
	Edges       int `json:"edges"`
}

// Duplicates returns the clusters with more than one member.
func (r *Result) Duplicates() []model.Cluster {
	var out []model.Cluster
	for _, c := range r.Clusters {
		if c.Size() > 1 {
			out = append(out, c)
		}
	}
	return out
}

// CountPhase counts clusters produced by the given phase.
func (r *Result) CountPhase(phase model.MatchPhase) int {
	n := 0
	for _, c := range r.Clusters {
		if c.Phase == phase {
			n++
		}
	}
	return n
}

// Builder clusters one dataset at a time.
type Builder struct {
	scorer  *similarity.Scorer
	workers int
}

// Option configures a Builder.
type Option func(*Builder)

// WithWorkers scores up to n blocks concurrently. n <= 1 scores serially.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		b.workers = n
	}
}

// NewBuilder creates a Builder around scorer.
func NewBuilder(scorer *similarity.Scorer, opts ...Option) *Builder {
	b := &Builder{scorer: scorer, workers: 1}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type exactGroup struct {
	key     string
	members []int
}

// Build partitions ds. Ids are assigned exact groups first (first-seen key
// order), then fuzzy components (discovery order), then singletons (index
// order), starting from 0.
func (b *Builder) Build(ctx context.Context, ds *model.Dataset) (*Result, error) {
	res := &Result{Kind: ds.Kind}
	n := ds.Len()
	if n == 0 {
		return res, nil
	}

	groups, remaining := exactGroups(ds)

	blocks := blocking.Build(ds.Kind, ds.Records, remaining)
	edges, err := b.scoreBlocks(ctx, ds, blocks)
	if err != nil {
		return nil, err
	}
	res.Blocks = len(blocks)
	res.Comparisons = blocking.Comparisons(blocks)

	g := NewGraph()
	for _, i := range remaining {
		g.AddNode(i)
	}
	for _, blockEdges := range edges {
		for _, e := range blockEdges {
			g.AddEdge(e[0], e[1])
			res.Edges++
		}
	}

	res.Assignments = make([]int, n)
	next := 0
	add := func(phase model.MatchPhase, members []int) {
		for _, m := range members {
			res.Assignments[m] = next
		}
		res.Clusters = append(res.Clusters, model.Cluster{ID: next, Phase: phase, Members: members})
		next++
	}

	for _, grp := range groups {
		add(model.PhaseExact, grp.members)
	}
	var singletons [][]int
	for _, comp := range g.Components() {
		if len(comp) == 1 {
			singletons = append(singletons, comp)
			continue
		}
		add(model.PhaseFuzzy, comp)
	}
	for _, s := range singletons {
		add(model.PhaseSingleton, s)
	}
	res.NextID = next

	zap.L().Debug("cluster: built",
		zap.String("kind", string(ds.Kind)),
		zap.Int("records", n),
		zap.Int("exact_groups", len(groups)),
		zap.Int("blocks", res.Blocks),
		zap.Int("comparisons", res.Comparisons),
		zap.Int("edges", res.Edges),
		zap.Int("clusters", len(res.Clusters)),
	)
	return res, nil
}

// exactGroups maps each non-empty exact key to its records in first-seen
// order and returns the indices left for the fuzzy pass.
func exactGroups(ds *model.Dataset) ([]exactGroup, []int) {
	pos := make(map[string]int)
	var groups []exactGroup
	var remaining []int
	for i, r := range ds.Records {
		key := similarity.ExactKey(ds.Kind, r)
		if key == "" {
			remaining = append(remaining, i)
			continue
		}
		p, ok := pos[key]
		if !ok {
			p = len(groups)
			pos[key] = p
			groups = append(groups, exactGroup{key: key})
		}
		groups[p].members = append(groups[p].members, i)
	}
	return groups, remaining
}

// scoreBlocks returns the matching pairs of each block, indexed like
// blocks, so the result does not depend on scheduling.
func (b *Builder) scoreBlocks(ctx context.Context, ds *model.Dataset, blocks []blocking.Block) ([][][2]int, error) {
	edges := make([][][2]int, len(blocks))

	if b.workers <= 1 {
		for i, blk := range blocks {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "cluster: score blocks")
			}
			edges[i] = b.scoreBlock(ds, blk)
		}
		return edges, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, blk := range blocks {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			edges[i] = b.scoreBlock(ds, blk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "cluster: score blocks")
	}
	return edges, nil
}

// scoreBlock compares every eligible pair inside one block.
func (b *Builder) scoreBlock(ds *model.Dataset, blk blocking.Block) [][2]int {
	var out [][2]int
	for x, i := range blk.Members {
		ri := ds.Records[i]
		if !b.scorer.Eligible(ds.Kind, ri) {
			continue
		}
		for _, j := range blk.Members[x+1:] {
			if b.scorer.Match(ds.Kind, ri, ds.Records[j]) {
				out = append(out, [2]int{i, j})
			}
		}
	}
	return out
}
