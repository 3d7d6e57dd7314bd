package cluster

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/normalize"
	"github.com/sells-group/crm-dedupe/internal/similarity"
)

// peopleDataset builds a people dataset from {first, last, email} rows.
func peopleDataset(rows ...[]string) *model.Dataset {
	tbl := &model.Table{
		SourceType: model.SourceLead,
		Columns:    []string{"first_name", "last_name", "email"},
		Rows:       rows,
	}
	return normalize.New().People(tbl, nil)
}

func accountsDataset(rows ...[]string) *model.Dataset {
	tbl := &model.Table{
		SourceType: model.SourceAccount,
		Columns:    []string{"account_name", "website"},
		Rows:       rows,
	}
	ds, _ := normalize.New().Accounts(tbl)
	return ds
}

func build(t *testing.T, ds *model.Dataset, opts ...Option) *Result {
	t.Helper()
	res, err := NewBuilder(similarity.NewScorer(), opts...).Build(context.Background(), ds)
	require.NoError(t, err)
	assertPartition(t, ds, res)
	return res
}

// assertPartition checks that clusters are disjoint and cover every record.
func assertPartition(t *testing.T, ds *model.Dataset, res *Result) {
	t.Helper()
	seen := make(map[int]int)
	for id, c := range res.Clusters {
		assert.Equal(t, id, c.ID)
		require.NotEmpty(t, c.Members)
		for _, m := range c.Members {
			seen[m]++
			assert.Equal(t, c.ID, res.Assignments[m])
		}
	}
	require.Len(t, seen, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		assert.Equal(t, 1, seen[i], "record %d", i)
	}
	assert.Equal(t, len(res.Clusters), res.NextID)
}

func sameCluster(res *Result, a, b int) bool {
	return res.Assignments[a] == res.Assignments[b]
}

func TestBuild_Empty(t *testing.T) {
	res, err := NewBuilder(similarity.NewScorer()).Build(context.Background(), &model.Dataset{Kind: model.KindPeople})
	require.NoError(t, err)
	assert.Empty(t, res.Clusters)
	assert.Zero(t, res.NextID)
}

func TestBuild_JonJonathanAnn(t *testing.T) {
	ds := peopleDataset(
		[]string{"Jon", "Smith", "jon@x.com"},
		[]string{"Jonathan", "Smith", ""},
		[]string{"Ann", "Lee", ""},
	)
	res := build(t, ds)

	require.Len(t, res.Clusters, 3)
	assert.False(t, sameCluster(res, 0, 1))
	assert.False(t, sameCluster(res, 1, 2))
	for _, c := range res.Clusters {
		assert.Equal(t, 1, c.Size())
	}
}

func TestBuild_ExactTransitivity(t *testing.T) {
	ds := peopleDataset(
		[]string{"Alpha", "One", "shared@x.com"},
		[]string{"Bravo", "Two", "other@x.com"},
		[]string{"Charlie", "Three", "SHARED@x.com"},
		[]string{"Delta", "Four", "shared@x.com"},
	)
	res := build(t, ds)

	assert.True(t, sameCluster(res, 0, 2))
	assert.True(t, sameCluster(res, 2, 3))
	assert.False(t, sameCluster(res, 0, 1))
	assert.Equal(t, model.Cluster{ID: 0, Phase: model.PhaseExact, Members: []int{0, 2, 3}}, res.Clusters[0])
	assert.Equal(t, model.Cluster{ID: 1, Phase: model.PhaseExact, Members: []int{1}}, res.Clusters[1])
}

func TestBuild_GmailTagsShareExactKey(t *testing.T) {
	ds := peopleDataset(
		[]string{"Al", "Li", "al+crm@gmail.com"},
		[]string{"Al", "Li", "al@gmail.com"},
	)
	res := build(t, ds)
	assert.True(t, sameCluster(res, 0, 1))
}

func TestBuild_AccountsExactDomain(t *testing.T) {
	ds := accountsDataset(
		[]string{"ACME, Inc.", "https://www.acme.com"},
		[]string{"acme incorporated!!", "acme.com/contact"},
		[]string{"Zeta Partners", ""},
	)
	res := build(t, ds)

	require.Len(t, res.Clusters, 2)
	assert.True(t, sameCluster(res, 0, 1))
	assert.Equal(t, model.PhaseExact, res.Clusters[0].Phase)
	assert.Equal(t, model.PhaseSingleton, res.Clusters[1].Phase)
}

func TestBuild_FuzzyPeople(t *testing.T) {
	ds := peopleDataset(
		[]string{"Daniel", "Smith", ""},
		[]string{"daniel", "SMITH", ""},
		[]string{"Danielle", "Smith", ""},
	)
	res := build(t, ds)

	assert.True(t, sameCluster(res, 0, 1))
	// "danielle" vs "daniel": 100*12/14 = 85.7, averaged with 100 -> 92.9.
	assert.True(t, sameCluster(res, 0, 2))
	assert.Equal(t, model.PhaseFuzzy, res.Clusters[0].Phase)
	assert.Equal(t, 3, res.Edges)
}

func TestBuild_FuzzyAccounts(t *testing.T) {
	ds := accountsDataset(
		[]string{"Acme Holdings", ""},
		[]string{"Acme, Holdings", ""},
		[]string{"Acme Partners", ""},
	)
	res := build(t, ds)

	assert.True(t, sameCluster(res, 0, 1))
	assert.False(t, sameCluster(res, 0, 2))
}

func TestBuild_ExactRecordsSkipFuzzy(t *testing.T) {
	ds := peopleDataset(
		[]string{"Daniel", "Smith", "dan@x.com"},
		[]string{"Daniel", "Smith", ""},
	)
	res := build(t, ds)

	assert.False(t, sameCluster(res, 0, 1))
	assert.Zero(t, res.Comparisons)
}

func TestBuild_ShortTokensNeverFuzzyMerge(t *testing.T) {
	ds := peopleDataset(
		[]string{"Al", "Li", ""},
		[]string{"Al", "Li", ""},
		[]string{"Bo", "Ng", "bo@ng.io"},
		[]string{"Bo", "Ng", "bo@ng.io"},
	)
	res := build(t, ds)

	assert.False(t, sameCluster(res, 0, 1))
	assert.True(t, sameCluster(res, 2, 3))
}

func TestBuild_DifferentBlocksNeverCompared(t *testing.T) {
	// Same person, but the first name initial differs after normalization.
	ds := peopleDataset(
		[]string{"Jonathan", "Smith", ""},
		[]string{"Yonathan", "Smith", ""},
	)
	res := build(t, ds)

	assert.False(t, sameCluster(res, 0, 1))
	assert.Equal(t, 2, res.Blocks)
	assert.Zero(t, res.Comparisons)
}

func TestBuild_ChainMergeIsTransitive(t *testing.T) {
	scores := map[[2]string]float64{
		{"aaron", "aaronb"}: 100,
		{"aaronb", "aaronc"}: 100,
		{"aaron", "aaronc"}:  0,
	}
	scorer := similarity.NewScorer()
	scorer.Similarity = func(a, b string) float64 {
		if a == b {
			return 100
		}
		if s, ok := scores[[2]string{a, b}]; ok {
			return s
		}
		return scores[[2]string{b, a}]
	}

	ds := peopleDataset(
		[]string{"Aaron", "Smith", ""},
		[]string{"AaronB", "Smith", ""},
		[]string{"AaronC", "Smith", ""},
	)
	assert.False(t, scorer.Match(model.KindPeople, ds.Records[0], ds.Records[2]))

	res, err := NewBuilder(scorer).Build(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, res.Clusters, 1)
	assert.Equal(t, []int{0, 1, 2}, res.Clusters[0].Members)
}

func TestBuild_IDOrder(t *testing.T) {
	ds := peopleDataset(
		[]string{"Zed", "Solo", ""},            // 0 singleton
		[]string{"Mary", "Major", "m@x.com"},   // 1 exact
		[]string{"Daniel", "Smith", ""},        // 2 fuzzy
		[]string{"Kim", "Park", "k@x.com"},     // 3 exact
		[]string{"Daniel", "Smith", ""},        // 4 fuzzy
		[]string{"Olga", "Ivanova", "m@x.com"}, // 5 exact with 1
	)
	res := build(t, ds)

	require.Len(t, res.Clusters, 4)
	assert.Equal(t, model.Cluster{ID: 0, Phase: model.PhaseExact, Members: []int{1, 5}}, res.Clusters[0])
	assert.Equal(t, model.Cluster{ID: 1, Phase: model.PhaseExact, Members: []int{3}}, res.Clusters[1])
	assert.Equal(t, model.Cluster{ID: 2, Phase: model.PhaseFuzzy, Members: []int{2, 4}}, res.Clusters[2])
	assert.Equal(t, model.Cluster{ID: 3, Phase: model.PhaseSingleton, Members: []int{0}}, res.Clusters[3])
	assert.Equal(t, 4, res.NextID)
	assert.Len(t, res.Duplicates(), 2)
	assert.Equal(t, 2, res.CountPhase(model.PhaseExact))
}

func syntheticPeople(n int) *model.Dataset {
	firsts := []string{"Daniel", "Danny", "Dan", "Maria", "Mariah", "Marie", "Jon", "John", "Jonathan"}
	lasts := []string{"Smith", "Smyth", "Smithe", "Lee", "Li", "Garcia", "Garcias"}
	rows := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		email := ""
		if i%5 == 0 {
			email = fmt.Sprintf("user%d@x.com", i%15)
		}
		rows = append(rows, []string{firsts[i%len(firsts)], lasts[(i/3)%len(lasts)], email})
	}
	return peopleDataset(rows...)
}

func TestBuild_Deterministic(t *testing.T) {
	ds := syntheticPeople(150)
	a := build(t, ds)
	b := build(t, ds)
	assert.Equal(t, a, b)
}

func TestBuild_ParallelMatchesSerial(t *testing.T) {
	ds := syntheticPeople(300)
	serial := build(t, ds)
	parallel := build(t, ds, WithWorkers(8))
	assert.Equal(t, serial, parallel)
}

func TestBuild_ContextCancelled(t *testing.T) {
	ds := syntheticPeople(20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(similarity.NewScorer()).Build(ctx, ds)
	require.Error(t, err)

	_, err = NewBuilder(similarity.NewScorer(), WithWorkers(4)).Build(ctx, ds)
	require.Error(t, err)
}
