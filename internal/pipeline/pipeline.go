// Package pipeline runs one batch of CRM records through normalization,
// clustering and survivorship.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-dedupe/internal/cluster"
	"github.com/sells-group/crm-dedupe/internal/config"
	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/normalize"
	"github.com/sells-group/crm-dedupe/internal/similarity"
	"github.com/sells-group/crm-dedupe/internal/survivorship"
)

// Stage names reported to a Recorder.
const (
	StageNormalize = "normalize"
	StageCluster   = "cluster"
	StageMerge     = "merge"
)

// Recorder receives stage timings and per-kind summaries.
type Recorder interface {
	ObserveStage(kind model.EntityKind, stage string, d time.Duration)
	ObserveKind(kind model.EntityKind, s *model.KindSummary)
}

// Input is one batch of loaded tables. Any table may be nil.
type Input struct {
	Leads    *model.Table
	Contacts *model.Table
	Accounts *model.Table

	SkipPeople   bool
	SkipAccounts bool
}

// KindResult is the outcome for one entity kind.
type KindResult struct {
	Dataset  *model.Dataset       `json:"dataset"`
	Clusters *cluster.Result      `json:"clusters"`
	Masters  []model.MasterRecord `json:"masters"`
	Summary  *model.KindSummary   `json:"summary"`
}

// Members returns the records of a cluster.
func (k *KindResult) Members(c model.Cluster) []model.NormalizedRecord {
	out := make([]model.NormalizedRecord, len(c.Members))
	for i, m := range c.Members {
		out[i] = k.Dataset.Records[m]
	}
	return out
}

// Result is the outcome of a full run. People or Accounts is nil when that
// kind had no input or was skipped.
type Result struct {
	People   *KindResult   `json:"people,omitempty"`
	Accounts *KindResult   `json:"accounts,omitempty"`
	Summary  model.Summary `json:"summary"`

	// AccountNames is reported from the normalized accounts even when
	// account de-duplication is skipped.
	AccountNames *AccountNameReport `json:"account_names,omitempty"`

	// Original input headers, used to restrict display columns.
	LeadColumns    []string `json:"lead_columns,omitempty"`
	ContactColumns []string `json:"contact_columns,omitempty"`
	AccountColumns []string `json:"account_columns,omitempty"`
}

// Pipeline wires the resolution stages together.
type Pipeline struct {
	normalizer *normalize.Normalizer
	builder    *cluster.Builder
	recorder   Recorder
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder reports stage timings to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// New creates a new Pipeline with all dependencies.
func New(normalizer *normalize.Normalizer, builder *cluster.Builder, opts ...Option) *Pipeline {
	p := &Pipeline{normalizer: normalizer, builder: builder}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromConfig builds a Pipeline from the dedupe settings and column mapping.
func FromConfig(cfg config.DedupeConfig, mapping normalize.Mapping, opts ...Option) *Pipeline {
	scorer := similarity.NewScorer()
	if cfg.PeopleThreshold > 0 {
		scorer.PeopleThreshold = cfg.PeopleThreshold
	}
	if cfg.AccountThreshold > 0 {
		scorer.AccountThreshold = cfg.AccountThreshold
	}
	if cfg.MinTokenLength > 0 {
		scorer.MinTokenLen = cfg.MinTokenLength
	}

	n := normalize.New(normalize.WithRegion(cfg.PhoneRegion), normalize.WithMapping(mapping))
	b := cluster.NewBuilder(scorer, cluster.WithWorkers(cfg.Workers))
	return New(n, b, opts...)
}

// Run resolves people (leads + contacts) and accounts independently. An
// entity kind with no rows, or one the caller skipped, is left nil.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	res := &Result{
		LeadColumns:    columns(in.Leads),
		ContactColumns: columns(in.Contacts),
		AccountColumns: columns(in.Accounts),
	}

	hasPeople := in.Leads.Len() > 0 || in.Contacts.Len() > 0
	switch {
	case hasPeople && in.SkipPeople:
		zap.L().Warn("pipeline: people de-duplication skipped")
		res.Summary.People = &model.KindSummary{Skipped: true}
	case hasPeople:
		t := time.Now()
		ds := p.normalizer.People(in.Leads, in.Contacts)
		p.observe(model.KindPeople, StageNormalize, time.Since(t))

		kr, err := p.resolve(ctx, ds, 0)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: people")
		}
		res.People = kr
		res.Summary.People = kr.Summary
	}

	if in.Accounts.Len() > 0 {
		t := time.Now()
		ds, dropped := p.normalizer.Accounts(in.Accounts)
		p.observe(model.KindAccounts, StageNormalize, time.Since(t))
		if dropped > 0 {
			zap.L().Info("pipeline: dropped accounts without name or domain", zap.Int("dropped", dropped))
		}
		res.AccountNames = countAccountNames(ds)

		if in.SkipAccounts {
			zap.L().Warn("pipeline: account de-duplication skipped")
			res.Summary.Accounts = &model.KindSummary{Skipped: true}
		} else {
			kr, err := p.resolve(ctx, ds, dropped)
			if err != nil {
				return nil, eris.Wrap(err, "pipeline: accounts")
			}
			res.Accounts = kr
			res.Summary.Accounts = kr.Summary
		}
	}

	res.Summary.TotalMs = time.Since(start).Milliseconds()
	zap.L().Info("pipeline: run complete", zap.Int64("total_ms", res.Summary.TotalMs))
	return res, nil
}

// resolve clusters and merges one dataset. An empty dataset (every account
// dropped) yields an empty result rather than an error.
func (p *Pipeline) resolve(ctx context.Context, ds *model.Dataset, dropped int) (*KindResult, error) {
	start := time.Now()
	log := zap.L().With(zap.String("kind", string(ds.Kind)))

	t := time.Now()
	cr, err := p.builder.Build(ctx, ds)
	if err != nil {
		return nil, err
	}
	p.observe(ds.Kind, StageCluster, time.Since(t))

	t = time.Now()
	masters := survivorship.Resolve(ds, cr.Clusters)
	p.observe(ds.Kind, StageMerge, time.Since(t))

	summary := &model.KindSummary{
		Records:           ds.Len(),
		Dropped:           dropped,
		Clusters:          len(cr.Clusters),
		DuplicateClusters: len(cr.Duplicates()),
		ExactClusters:     cr.CountPhase(model.PhaseExact),
		FuzzyClusters:     cr.CountPhase(model.PhaseFuzzy),
		Comparisons:       cr.Comparisons,
		Blocks:            cr.Blocks,
		DurationMs:        time.Since(start).Milliseconds(),
	}
	if p.recorder != nil {
		p.recorder.ObserveKind(ds.Kind, summary)
	}

	log.Info("pipeline: resolved",
		zap.Int("records", summary.Records),
		zap.Int("clusters", summary.Clusters),
		zap.Int("duplicate_clusters", summary.DuplicateClusters),
		zap.Int("comparisons", summary.Comparisons),
		zap.Int64("duration_ms", summary.DurationMs),
	)

	return &KindResult{Dataset: ds, Clusters: cr, Masters: masters, Summary: summary}, nil
}

func (p *Pipeline) observe(kind model.EntityKind, stage string, d time.Duration) {
	if p.recorder != nil {
		p.recorder.ObserveStage(kind, stage, d)
	}
}

func columns(t *model.Table) []string {
	if t == nil {
		return nil
	}
	return t.Columns
}
