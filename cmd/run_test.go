package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-dedupe/internal/cluster"
	"github.com/sells-group/crm-dedupe/internal/export"
	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/normalize"
	"github.com/sells-group/crm-dedupe/internal/pipeline"
	"github.com/sells-group/crm-dedupe/internal/similarity"
	"github.com/sells-group/crm-dedupe/internal/store"
	sfpkg "github.com/sells-group/crm-dedupe/pkg/salesforce"
)

const (
	testLeadsCSV = "record_id,first_name,last_name,email,phone\n" +
		"L1,Daniel,Smith,,(415) 555-0100\n" +
		"L2,Ann,Lee,ann@lee.io,\n"
	testContactsCSV = "record_id,first_name,last_name,email,title\n" +
		"C1,Daniel,Smith,,VP\n" +
		"C2,Ann,Lee,ANN@lee.io,CFO\n"
	testAccountsCSV = "record_id,account_name,website,industry\n" +
		"A1,\"Acme, Inc.\",https://www.acme.com/about,Tools\n" +
		"A2,ACME INC,acme.com,\n" +
		"A3,Globex,,\n"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestRunEnv(buf *bytes.Buffer) (runEnv, *store.MemoryStore) {
	st := store.NewMemory()
	p := pipeline.New(normalize.New(), cluster.NewBuilder(similarity.NewScorer()))
	env := runEnv{store: st, pipeline: p}
	if buf != nil {
		env.out = buf
	}
	return env, st
}

func TestExecuteRun(t *testing.T) {
	in := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	var buf bytes.Buffer
	env, st := newTestRunEnv(&buf)

	run, err := executeRun(context.Background(), env, runOptions{
		Leads:    writeTestFile(t, in, "leads.csv", testLeadsCSV),
		Contacts: writeTestFile(t, in, "contacts.csv", testContactsCSV),
		Accounts: writeTestFile(t, in, "accounts.csv", testAccountsCSV),
		Out:      outDir,
	})
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, originCLI, run.Origin)

	for _, name := range []string{
		export.FilePeople, export.FileLeads, export.FileContacts, export.FilePeopleClusters,
		export.FileAccounts, export.FileAccountClusters,
	} {
		assert.FileExists(t, filepath.Join(outDir, name))
	}

	stored, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, stored.Status)
	require.NotNil(t, stored.Summary)
	require.NotNil(t, stored.Summary.People)
	assert.Equal(t, 4, stored.Summary.People.Records)
	assert.Equal(t, 2, stored.Summary.People.DuplicateClusters)
	require.NotNil(t, stored.Summary.Accounts)
	assert.Equal(t, 1, stored.Summary.Accounts.DuplicateClusters)

	output := buf.String()
	assert.Contains(t, output, run.ID)
	assert.Contains(t, output, "People:")
	assert.Contains(t, output, "4 records")
	assert.Contains(t, output, export.FileAccountClusters)
}

func TestExecuteRun_AccountsOnly(t *testing.T) {
	in := t.TempDir()
	outDir := t.TempDir()

	var buf bytes.Buffer
	env, _ := newTestRunEnv(&buf)

	run, err := executeRun(context.Background(), env, runOptions{
		Accounts: writeTestFile(t, in, "accounts.csv", testAccountsCSV),
		Out:      outDir,
	})
	require.NoError(t, err)
	require.NotNil(t, run.Summary)
	assert.Nil(t, run.Summary.People)

	assert.FileExists(t, filepath.Join(outDir, export.FileAccounts))
	assert.NoFileExists(t, filepath.Join(outDir, export.FilePeople))
	assert.Contains(t, buf.String(), "no input")
}

func TestExecuteRun_SkipPeople(t *testing.T) {
	in := t.TempDir()
	outDir := t.TempDir()

	var buf bytes.Buffer
	env, _ := newTestRunEnv(&buf)

	run, err := executeRun(context.Background(), env, runOptions{
		Leads:      writeTestFile(t, in, "leads.csv", testLeadsCSV),
		Accounts:   writeTestFile(t, in, "accounts.csv", testAccountsCSV),
		Out:        outDir,
		SkipPeople: true,
	})
	require.NoError(t, err)
	require.NotNil(t, run.Summary.People)
	assert.True(t, run.Summary.People.Skipped)
	assert.NoFileExists(t, filepath.Join(outDir, export.FilePeople))
	assert.Contains(t, buf.String(), "skipped")
}

func TestExecuteRun_NoInput(t *testing.T) {
	env, st := newTestRunEnv(nil)

	_, err := executeRun(context.Background(), env, runOptions{Out: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExecuteRun_OutDirNotWritable(t *testing.T) {
	in := t.TempDir()
	// A regular file cannot be used as the output directory.
	blocker := writeTestFile(t, in, "not-a-dir", "x")

	env, _ := newTestRunEnv(nil)
	_, err := executeRun(context.Background(), env, runOptions{
		Leads: writeTestFile(t, in, "leads.csv", testLeadsCSV),
		Out:   filepath.Join(blocker, "out"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, export.ErrOutputDir)
}

func TestExecuteRun_MissingFile(t *testing.T) {
	env, st := newTestRunEnv(nil)

	_, err := executeRun(context.Background(), env, runOptions{
		Leads: filepath.Join(t.TempDir(), "missing.csv"),
		Out:   t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run: load lead")

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs, "load failures happen before a run is recorded")
}

func TestExecuteRun_CancelledContext(t *testing.T) {
	in := t.TempDir()
	env, st := newTestRunEnv(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executeRun(ctx, env, runOptions{
		Leads: writeTestFile(t, in, "leads.csv", testLeadsCSV),
		Out:   t.TempDir(),
	})
	require.Error(t, err)

	runs, lerr := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, lerr)
	for _, r := range runs {
		assert.NotEqual(t, model.RunStatusComplete, r.Status)
	}
}

// fakeSalesforce answers PullAll queries from fixed records.
type fakeSalesforce struct {
	leads    []sfpkg.Lead
	contacts []sfpkg.Contact
	accounts []sfpkg.Account
	err      error
}

func (f *fakeSalesforce) Query(_ context.Context, _ string, out any) error {
	if f.err != nil {
		return f.err
	}
	switch v := out.(type) {
	case *[]sfpkg.Lead:
		*v = f.leads
	case *[]sfpkg.Contact:
		*v = f.contacts
	case *[]sfpkg.Account:
		*v = f.accounts
	}
	return nil
}

func TestExecuteRun_Salesforce(t *testing.T) {
	outDir := t.TempDir()

	var buf bytes.Buffer
	env, _ := newTestRunEnv(&buf)
	env.sf = &fakeSalesforce{
		leads: []sfpkg.Lead{
			{ID: "00Q1", FirstName: "Jon", LastName: "Smith", Email: "jon@smith.io"},
		},
		contacts: []sfpkg.Contact{
			{ID: "0031", FirstName: "Jon", LastName: "Smith", Email: "JON@smith.io", Title: "CEO"},
		},
		accounts: []sfpkg.Account{
			{ID: "0011", Name: "Acme Corp", Website: "acme.com"},
			{ID: "0012", Name: "ACME CORP", Website: "www.acme.com"},
		},
	}

	run, err := executeRun(context.Background(), env, runOptions{Out: outDir, Salesforce: true})
	require.NoError(t, err)
	assert.Equal(t, originSalesforce, run.Origin)
	require.NotNil(t, run.Summary.People)
	assert.Equal(t, 2, run.Summary.People.Records)
	assert.Equal(t, 1, run.Summary.People.DuplicateClusters)
	require.NotNil(t, run.Summary.Accounts)
	assert.Equal(t, 1, run.Summary.Accounts.DuplicateClusters)
	assert.FileExists(t, filepath.Join(outDir, export.FileAccounts))
}

func TestExecuteRun_SalesforceError(t *testing.T) {
	env, _ := newTestRunEnv(nil)
	env.sf = &fakeSalesforce{err: eris.New("INVALID_SESSION_ID")}

	_, err := executeRun(context.Background(), env, runOptions{Out: t.TempDir(), Salesforce: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run: salesforce pull")
}

func TestExecuteRun_SalesforceWithoutClient(t *testing.T) {
	env, _ := newTestRunEnv(nil)

	_, err := executeRun(context.Background(), env, runOptions{Out: t.TempDir(), Salesforce: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce client not configured")
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{
		"leads", "contacts", "accounts", "out", "encoding", "sheet",
		"skip-people", "skip-accounts", "salesforce", "limit",
	} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s flag", name)
	}
	assert.Equal(t, "false", runCmd.Flags().Lookup("skip-people").DefValue)
	assert.Equal(t, "0", runCmd.Flags().Lookup("limit").DefValue)
}

func TestFormatRunSummary(t *testing.T) {
	run := &model.Run{
		ID:     "abc12345-6789-0000-0000-000000000000",
		Status: model.RunStatusComplete,
		Summary: &model.Summary{
			People:   &model.KindSummary{Records: 10, Clusters: 7, ExactClusters: 6, FuzzyClusters: 1, DuplicateClusters: 2},
			Accounts: &model.KindSummary{Records: 5, Clusters: 4, DuplicateClusters: 1, Dropped: 2},
			LoadMs:   12,
			TotalMs:  40,
		},
	}

	var buf bytes.Buffer
	formatRunSummary(&buf, run, []string{"/tmp/out/people_deduped.csv"})

	output := buf.String()
	assert.Contains(t, output, "10 records, 7 clusters (6 exact, 1 fuzzy), 2 with duplicates")
	assert.Contains(t, output, "dropped:")
	assert.Contains(t, output, "40ms")
	assert.Contains(t, output, "people_deduped.csv")
	assert.NotContains(t, output, "/tmp/out")
}
