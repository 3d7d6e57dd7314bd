package pipeline

import (
	"slices"
	"sort"

	"github.com/sells-group/crm-dedupe/internal/model"
)

// PeopleSplit is the reviewer-facing view of merged people: contacts and
// leads separately, each restricted to the columns its source file had.
type PeopleSplit struct {
	Leads          []model.MasterRecord
	LeadColumns    []string
	Contacts       []model.MasterRecord
	ContactColumns []string
}

// SplitPeople partitions people masters by resolved source type. Leads
// whose record_id also appears on a surviving contact are dropped.
func (r *Result) SplitPeople() PeopleSplit {
	var split PeopleSplit
	if r.People == nil {
		return split
	}
	cols := r.People.Dataset.Columns
	split.LeadColumns = displayColumns(cols, r.LeadColumns)
	split.ContactColumns = displayColumns(cols, r.ContactColumns)

	contactIDs := make(map[string]bool)
	for _, m := range r.People.Masters {
		if m.SourceType == model.SourceContact {
			split.Contacts = append(split.Contacts, m)
			if id := m.Get(model.ColRecordID); id != "" {
				contactIDs[id] = true
			}
		}
	}

	checkIDs := slices.Contains(split.LeadColumns, model.ColRecordID) &&
		slices.Contains(split.ContactColumns, model.ColRecordID)
	for _, m := range r.People.Masters {
		if m.SourceType != model.SourceLead {
			continue
		}
		if checkIDs && contactIDs[m.Get(model.ColRecordID)] {
			continue
		}
		split.Leads = append(split.Leads, m)
	}
	return split
}

// NameCount is one row of the repeated-names report.
type NameCount struct {
	Name  string `json:"account_name"`
	Count int    `json:"count"`
}

// AccountNameReport counts normalized account names. Names are compared
// exactly after trimming, so "Acme" and "ACME" are distinct.
type AccountNameReport struct {
	Rows  int         `json:"rows"`
	Names []NameCount `json:"names"` // most frequent first, ties in first-seen order
}

func countAccountNames(ds *model.Dataset) *AccountNameReport {
	report := &AccountNameReport{Rows: ds.Len()}
	counts := make(map[string]int)
	var order []string
	for _, rec := range ds.Records {
		if rec.AccountName == "" {
			continue
		}
		if counts[rec.AccountName] == 0 {
			order = append(order, rec.AccountName)
		}
		counts[rec.AccountName]++
	}

	report.Names = make([]NameCount, len(order))
	for i, name := range order {
		report.Names[i] = NameCount{Name: name, Count: counts[name]}
	}
	sort.SliceStable(report.Names, func(i, j int) bool { return report.Names[i].Count > report.Names[j].Count })
	return report
}

// TopAccountNames returns the n most repeated account names. n <= 0 returns
// every name.
func (r *Result) TopAccountNames(n int) []NameCount {
	if r.AccountNames == nil {
		return nil
	}
	out := r.AccountNames.Names
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// UniqueAccountNames counts distinct non-empty account names.
func (r *Result) UniqueAccountNames() int {
	if r.AccountNames == nil {
		return 0
	}
	return len(r.AccountNames.Names)
}

// AccountDisplayColumns restricts merged accounts to the columns the input
// file had, plus account_name. Derived columns are left to the clusters file.
func (r *Result) AccountDisplayColumns() []string {
	if r.Accounts == nil {
		return nil
	}
	cols := r.Accounts.Dataset.Columns
	if r.AccountColumns == nil {
		return cols
	}
	var out []string
	for _, c := range cols {
		if c == model.ColAccountName || slices.Contains(r.AccountColumns, c) {
			out = append(out, c)
		}
	}
	return out
}

// Kind returns the result for an entity kind, or nil.
func (r *Result) Kind(kind model.EntityKind) *KindResult {
	if kind == model.KindAccounts {
		return r.Accounts
	}
	return r.People
}

// personColumns are always shown, even when a source used an alias header.
var personColumns = []string{
	model.ColFirstName, model.ColLastName, model.ColEmail, model.ColPhone, model.ColSourceType,
}

// displayColumns keeps the entries of cols that appear in the source headers
// or are person columns, in cols order. A nil source yields nil.
func displayColumns(cols, source []string) []string {
	if source == nil {
		return nil
	}
	var out []string
	for _, c := range cols {
		if slices.Contains(source, c) || slices.Contains(personColumns, c) {
			out = append(out, c)
		}
	}
	return out
}
