package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-dedupe/internal/export"
	"github.com/sells-group/crm-dedupe/internal/fetcher"
	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/pipeline"
	"github.com/sells-group/crm-dedupe/internal/store"
	sfpkg "github.com/sells-group/crm-dedupe/pkg/salesforce"
)

const (
	originCLI        = "cli"
	originSalesforce = "salesforce"
)

// runOptions holds the flags of the run command.
type runOptions struct {
	Leads    string
	Contacts string
	Accounts string
	Out      string
	Encoding string
	Sheet    string

	SkipPeople   bool
	SkipAccounts bool

	Salesforce bool
	Limit      int

	MaxDownloadBytes int64
}

var runOpts runOptions

// runEnv holds the collaborators of a single run.
type runEnv struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	sf       sfpkg.Client // only for --salesforce
	out      io.Writer
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "De-duplicate leads, contacts and accounts exports",
	Long:  "Loads CSV or XLSX exports (local paths or URLs) or pulls them from Salesforce, clusters duplicate people and accounts, and writes the surviving master records plus per-record cluster assignments.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts := runOpts
		if opts.Out == "" {
			opts.Out = cfg.Output.Dir
		}
		if opts.Encoding == "" {
			opts.Encoding = cfg.Dedupe.Encoding
		}
		opts.MaxDownloadBytes = int64(cfg.Dedupe.MaxDownloadMB) << 20
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := initPipeline()
		if err != nil {
			return err
		}

		env := runEnv{store: st, pipeline: p, out: os.Stdout}
		if opts.Salesforce {
			env.sf, err = initSalesforce()
			if err != nil {
				return err
			}
		}

		_, err = executeRun(ctx, env, opts)
		return err
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.Leads, "leads", "", "leads export (path or URL)")
	f.StringVar(&runOpts.Contacts, "contacts", "", "contacts export (path or URL)")
	f.StringVar(&runOpts.Accounts, "accounts", "", "accounts export (path or URL)")
	f.StringVar(&runOpts.Out, "out", "", "output directory (default from config)")
	f.StringVar(&runOpts.Encoding, "encoding", "", "CSV input charset, e.g. windows-1252 (default from config)")
	f.StringVar(&runOpts.Sheet, "sheet", "", "XLSX worksheet name (default first sheet)")
	f.BoolVar(&runOpts.SkipPeople, "skip-people", false, "skip leads and contacts")
	f.BoolVar(&runOpts.SkipAccounts, "skip-accounts", false, "skip accounts")
	f.BoolVar(&runOpts.Salesforce, "salesforce", false, "pull leads, contacts and accounts from Salesforce")
	f.IntVar(&runOpts.Limit, "limit", 0, "max records per Salesforce object (0 = all)")
	rootCmd.AddCommand(runCmd)
}

// executeRun loads the input, runs the tracked pipeline and writes the
// output files.
func executeRun(ctx context.Context, env runEnv, opts runOptions) (*model.Run, error) {
	if !opts.Salesforce && opts.Leads == "" && opts.Contacts == "" && opts.Accounts == "" {
		return nil, eris.New("run: at least one of --leads, --contacts or --accounts is required")
	}
	if opts.Salesforce && env.sf == nil {
		return nil, eris.New("run: salesforce client not configured")
	}
	if err := export.EnsureOutDir(opts.Out); err != nil {
		return nil, err
	}

	origin := originCLI
	loadStart := time.Now()
	var (
		in  pipeline.Input
		err error
	)
	if opts.Salesforce {
		origin = originSalesforce
		in, err = pullInput(ctx, env.sf, opts.Limit)
	} else {
		in, err = loadInput(ctx, opts)
	}
	if err != nil {
		return nil, err
	}
	in.SkipPeople = opts.SkipPeople
	in.SkipAccounts = opts.SkipAccounts
	loadMs := time.Since(loadStart).Milliseconds()

	run, res, err := env.pipeline.Track(ctx, env.store, origin, in, loadMs)
	if err != nil {
		return run, err
	}

	paths, err := export.WriteAll(opts.Out, res)
	if err != nil {
		return run, eris.Wrap(err, "run: write output")
	}

	zap.L().Info("run complete",
		zap.String("run_id", run.ID),
		zap.Int("files", len(paths)),
		zap.Int64("total_ms", res.Summary.TotalMs),
	)
	if env.out != nil {
		formatRunSummary(env.out, run, paths)
	}
	return run, nil
}

// loadInput reads the given exports concurrently.
func loadInput(ctx context.Context, opts runOptions) (pipeline.Input, error) {
	var in pipeline.Input
	lo := fetcher.LoadOptions{
		Encoding: opts.Encoding,
		Sheet:    opts.Sheet,
		HTTP:     fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxBytes: opts.MaxDownloadBytes}),
	}

	g, gCtx := errgroup.WithContext(ctx)
	load := func(location string, source model.SourceType, dst **model.Table) {
		if location == "" {
			return
		}
		g.Go(func() error {
			t, err := fetcher.LoadTable(gCtx, location, source, lo)
			if err != nil {
				return eris.Wrapf(err, "run: load %s", source)
			}
			*dst = t
			return nil
		})
	}
	load(opts.Leads, model.SourceLead, &in.Leads)
	load(opts.Contacts, model.SourceContact, &in.Contacts)
	load(opts.Accounts, model.SourceAccount, &in.Accounts)

	if err := g.Wait(); err != nil {
		return pipeline.Input{}, err
	}
	return in, nil
}

// pullInput fetches all three objects from Salesforce.
func pullInput(ctx context.Context, c sfpkg.Client, limit int) (pipeline.Input, error) {
	pulled, err := sfpkg.PullAll(ctx, c, limit)
	if err != nil {
		return pipeline.Input{}, eris.Wrap(err, "run: salesforce pull")
	}
	return pipeline.Input{
		Leads:    pulled.Leads,
		Contacts: pulled.Contacts,
		Accounts: pulled.Accounts,
	}, nil
}

// formatRunSummary writes per-kind counts and the written files to w.
func formatRunSummary(out io.Writer, run *model.Run, paths []string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)

	if s := run.Summary; s != nil {
		writeKindSummary(w, "People", s.People)
		writeKindSummary(w, "Accounts", s.Accounts)
		_, _ = fmt.Fprintf(w, "Load:\t%dms\n", s.LoadMs)
		_, _ = fmt.Fprintf(w, "Total:\t%dms\n", s.TotalMs)
	}
	for _, p := range paths {
		_, _ = fmt.Fprintf(w, "Wrote:\t%s\n", filepath.Base(p))
	}
	_ = w.Flush()
}

func writeKindSummary(w io.Writer, label string, s *model.KindSummary) {
	switch {
	case s == nil:
		_, _ = fmt.Fprintf(w, "%s:\tno input\n", label)
	case s.Skipped:
		_, _ = fmt.Fprintf(w, "%s:\tskipped\n", label)
	default:
		_, _ = fmt.Fprintf(w, "%s:\t%d records, %d clusters (%d exact, %d fuzzy), %d with duplicates, %dms\n",
			label, s.Records, s.Clusters, s.ExactClusters, s.FuzzyClusters, s.DuplicateClusters, s.DurationMs)
		if s.Dropped > 0 {
			_, _ = fmt.Fprintf(w, "  dropped:\t%d\n", s.Dropped)
		}
	}
}
