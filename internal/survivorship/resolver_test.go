package survivorship

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/normalize"
)

var peopleCols = []string{"record_id", "first_name", "last_name", "email", "phone", "company"}

func people(leads, contacts [][]string) *model.Dataset {
	var lt, ct *model.Table
	if len(leads) > 0 {
		lt = &model.Table{SourceType: model.SourceLead, Columns: peopleCols, Rows: leads}
	}
	if len(contacts) > 0 {
		ct = &model.Table{SourceType: model.SourceContact, Columns: peopleCols, Rows: contacts}
	}
	return normalize.New().People(lt, ct)
}

func all(ds *model.Dataset) model.Cluster {
	c := model.Cluster{ID: 7}
	for i := range ds.Records {
		c.Members = append(c.Members, i)
	}
	return c
}

func TestResolve_ContactBackfilledFromLead(t *testing.T) {
	ds := people(
		[][]string{{"L1", "Dan", "Smith", "dan@lead.com", "415-555-2671", "Acme"}},
		[][]string{{"C1", "Dan", "Smith", "dan@contact.com", "", ""}},
	)
	masters := Resolve(ds, []model.Cluster{all(ds)})

	require.Len(t, masters, 1)
	m := masters[0]
	assert.Equal(t, 7, m.ClusterID)
	assert.Equal(t, model.SourceContact, m.SourceType)
	assert.Equal(t, "contact", m.Get("source_type"))
	assert.Equal(t, "C1", m.Get("record_id"))
	assert.Equal(t, "dan@contact.com", m.Get("email"))
	assert.Equal(t, "+14155552671", m.Get("phone"))
	assert.Equal(t, "Acme", m.Get("company"))
	assert.Equal(t, "Dan", m.Get("first_name"))
	assert.Equal(t, []string{"L1", "C1"}, m.MemberIDs)
	assert.Equal(t, "7", m.Get("cluster_id"))
}

func TestResolve_MostCompleteContactWins(t *testing.T) {
	ds := people(nil, [][]string{
		{"C1", "Ann", "Lee", "", "", ""},
		{"C2", "Ann", "Lee", "ann@lee.io", "", "Beta"},
		{"C3", "Ann", "Lee", "ann@lee.io", "", "Gamma"},
	})
	m := Resolve(ds, []model.Cluster{all(ds)})[0]

	assert.Equal(t, "C2", m.Get("record_id"))
	assert.Equal(t, "Beta", m.Get("company"))
}

func TestResolve_BackfillUsesFirstNonEmptyLead(t *testing.T) {
	ds := people(
		[][]string{
			{"L1", "Kim", "Park", "", "", ""},
			{"L2", "Kim", "Park", "", "", "First Co"},
			{"L3", "Kim", "Park", "", "", "Second Co"},
		},
		[][]string{{"C1", "Kim", "Park", "kim@park.io", "", ""}},
	)
	m := Resolve(ds, []model.Cluster{all(ds)})[0]
	assert.Equal(t, "First Co", m.Get("company"))
}

func TestResolve_NameModeAcrossContactsAndLeads(t *testing.T) {
	ds := people(
		[][]string{
			{"L1", "Daniel", "Smith", "", "", ""},
			{"L2", "Daniel", "Smith", "", "", ""},
		},
		[][]string{{"C1", "Dan", "Smyth", "dan@x.com", "", ""}},
	)
	m := Resolve(ds, []model.Cluster{all(ds)})[0]

	assert.Equal(t, model.SourceContact, m.SourceType)
	assert.Equal(t, "Daniel", m.Get("first_name"))
	assert.Equal(t, "Smith", m.Get("last_name"))
	assert.Equal(t, "daniel", m.Get("first_name_alnum"))
	assert.Equal(t, "dan@x.com", m.Get("email"))
}

func TestResolve_NameModeTieFirstSeen(t *testing.T) {
	ds := people(
		[][]string{{"L1", "Daniel", "Smith", "", "", ""}},
		[][]string{{"C1", "Dan", "Smith", "", "", ""}},
	)
	m := Resolve(ds, []model.Cluster{all(ds)})[0]
	assert.Equal(t, "Daniel", m.Get("first_name"))
}

func TestResolve_EmptyNamesDoNotVote(t *testing.T) {
	ds := people(
		[][]string{
			{"L1", "", "", "x@y.com", "", ""},
			{"L2", "", "", "x@y.com", "", ""},
			{"L3", "Rae", "Cho", "x@y.com", "", ""},
		},
		nil,
	)
	m := Resolve(ds, []model.Cluster{all(ds)})[0]
	assert.Equal(t, "Rae", m.Get("first_name"))
	assert.Equal(t, "Cho", m.Get("last_name"))
}

func TestResolve_LeadsOnly(t *testing.T) {
	ds := people([][]string{
		{"L1", "Jo", "Ng", "", "", ""},
		{"L2", "Joe", "Ng", "jo@ng.io", "", "Acme"},
		{"L3", "Jo", "Ng", "", "", ""},
	}, nil)
	m := Resolve(ds, []model.Cluster{all(ds)})[0]

	assert.Equal(t, model.SourceLead, m.SourceType)
	assert.Equal(t, "L2", m.Get("record_id"))
	assert.Equal(t, "Jo", m.Get("first_name"))
	assert.Equal(t, "Acme", m.Get("company"))
}

func TestResolve_LeadsOnlyNoBackfill(t *testing.T) {
	ds := people([][]string{
		{"L1", "Joe", "Ng", "jo@ng.io", "", ""},
		{"L2", "Joe", "Ng", "", "", "Acme"},
	}, nil)
	m := Resolve(ds, []model.Cluster{all(ds)})[0]
	assert.Equal(t, "L1", m.Get("record_id"))
	assert.Equal(t, "", m.Get("company"))
}

func TestResolve_AccountsFirstMemberVerbatim(t *testing.T) {
	tbl := &model.Table{
		SourceType: model.SourceAccount,
		Columns:    []string{"record_id", "account_name", "website", "industry"},
		Rows: [][]string{
			{"A1", "Acme", "acme.com", ""},
			{"A2", "ACME Inc", "https://acme.com", "Retail"},
		},
	}
	ds, _ := normalize.New().Accounts(tbl)
	m := Resolve(ds, []model.Cluster{{ID: 0, Members: []int{0, 1}}})[0]

	assert.Equal(t, model.SourceAccount, m.SourceType)
	assert.Equal(t, "A1", m.Get("record_id"))
	assert.Equal(t, "Acme", m.Get("account_name"))
	assert.Equal(t, "", m.Get("industry"))
	assert.Equal(t, []string{"A1", "A2"}, m.MemberIDs)
}

func TestResolve_OnePerClusterInOrder(t *testing.T) {
	ds := people([][]string{
		{"L1", "Ann", "Lee", "", "", ""},
		{"L2", "Bob", "Ray", "", "", ""},
		{"L3", "Cy", "Oh", "", "", ""},
	}, nil)
	clusters := []model.Cluster{
		{ID: 0, Members: []int{2}},
		{ID: 1, Members: []int{0, 1}},
		{ID: 2},
	}
	masters := Resolve(ds, clusters)

	require.Len(t, masters, 2)
	assert.Equal(t, 0, masters[0].ClusterID)
	assert.Equal(t, "L3", masters[0].Get("record_id"))
	assert.Equal(t, 1, masters[1].ClusterID)
}

func TestResolve_Deterministic(t *testing.T) {
	ds := people(
		[][]string{{"L1", "Daniel", "Smith", "", "", "Acme"}},
		[][]string{{"C1", "Dan", "Smith", "d@x.com", "", ""}, {"C2", "Dan", "Smith", "d@x.com", "", ""}},
	)
	a := Resolve(ds, []model.Cluster{all(ds)})
	b := Resolve(ds, []model.Cluster{all(ds)})
	assert.Equal(t, a, b)
}
