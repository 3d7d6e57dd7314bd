// Package export writes resolved masters and cluster assignments as CSV.
package export

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/pipeline"
)

// Output file names.
const (
	FilePeople          = "people_deduped.csv"
	FileLeads           = "leads_deduped.csv"
	FileContacts        = "contacts_deduped.csv"
	FileAccounts        = "accounts_deduped.csv"
	FilePeopleClusters  = "people_clusters.csv"
	FileAccountClusters = "account_clusters.csv"
)

// ErrOutputDir is returned when the output directory cannot be created or
// written to. It is fatal for a run.
var ErrOutputDir = errors.New("export: output directory not writable")

// ErrUnknownFile is returned for a file name the result cannot produce.
var ErrUnknownFile = errors.New("export: unknown file")

// EnsureOutDir creates dir if needed and checks that it accepts new files.
func EnsureOutDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(ErrOutputDir, "%s: %v", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return eris.Wrapf(ErrOutputDir, "%s: %v", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// Files lists the output files res can produce, in write order.
func Files(res *pipeline.Result) []string {
	var out []string
	if res.People != nil {
		out = append(out, FilePeople)
		split := res.SplitPeople()
		if split.LeadColumns != nil {
			out = append(out, FileLeads)
		}
		if split.ContactColumns != nil {
			out = append(out, FileContacts)
		}
		out = append(out, FilePeopleClusters)
	}
	if res.Accounts != nil {
		out = append(out, FileAccounts, FileAccountClusters)
	}
	return out
}

// WriteFile renders one named output file to w.
func WriteFile(w io.Writer, res *pipeline.Result, name string) error {
	if !slices.Contains(Files(res), name) {
		return eris.Wrap(ErrUnknownFile, name)
	}
	switch name {
	case FilePeople:
		return WriteMasters(w, withClusterID(res.People.Dataset.Columns), res.People.Masters)
	case FileLeads:
		split := res.SplitPeople()
		return WriteMasters(w, withClusterID(split.LeadColumns), split.Leads)
	case FileContacts:
		split := res.SplitPeople()
		return WriteMasters(w, withClusterID(split.ContactColumns), split.Contacts)
	case FilePeopleClusters:
		return WriteAssignments(w, res.People)
	case FileAccounts:
		return WriteMasters(w, withClusterID(res.AccountDisplayColumns()), res.Accounts.Masters)
	default:
		return WriteAssignments(w, res.Accounts)
	}
}

// WriteAll writes every file res can produce into dir and returns their
// paths. dir must already pass EnsureOutDir.
func WriteAll(dir string, res *pipeline.Result) ([]string, error) {
	var paths []string
	for _, name := range Files(res) {
		path := filepath.Join(dir, name)
		if err := writePath(path, res, name); err != nil {
			return paths, err
		}
		paths = append(paths, path)
		zap.L().Info("export: wrote file", zap.String("path", path))
	}
	return paths, nil
}

func writePath(path string, res *pipeline.Result, name string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := WriteFile(f, res, name); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "export: close %s", path)
	}
	return nil
}

// WriteMasters writes one row per master record.
func WriteMasters(w io.Writer, cols []string, masters []model.MasterRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	row := make([]string, len(cols))
	for _, m := range masters {
		for i, c := range cols {
			row[i] = m.Get(c)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write master")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

// WriteAssignments writes the annotated per-record view: every normalized
// record in input order with the id of the cluster it landed in.
func WriteAssignments(w io.Writer, kr *pipeline.KindResult) error {
	cols := withClusterID(kr.Dataset.Columns)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	row := make([]string, len(cols))
	for _, rec := range kr.Dataset.Records {
		for i, c := range cols {
			if c == model.ColClusterID {
				row[i] = strconv.Itoa(kr.Clusters.Assignments[rec.Index])
				continue
			}
			row[i] = rec.Get(c)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "export: write record")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush")
}

// withClusterID appends cluster_id unless cols already carries it.
func withClusterID(cols []string) []string {
	if slices.Contains(cols, model.ColClusterID) {
		return cols
	}
	out := make([]string, 0, len(cols)+1)
	out = append(out, cols...)
	return append(out, model.ColClusterID)
}
