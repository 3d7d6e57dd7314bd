package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-dedupe/internal/model"
)

// Lead represents an unconverted Salesforce Lead.
type Lead struct {
	ID         string `json:"Id" salesforce:"Id"`
	FirstName  string `json:"FirstName" salesforce:"FirstName"`
	LastName   string `json:"LastName" salesforce:"LastName"`
	Email      string `json:"Email" salesforce:"Email"`
	Phone      string `json:"Phone" salesforce:"Phone"`
	Company    string `json:"Company" salesforce:"Company"`
	Status     string `json:"Status" salesforce:"Status"`
	LeadSource string `json:"LeadSource" salesforce:"LeadSource"`
}

// Contact represents a Salesforce Contact.
type Contact struct {
	ID        string `json:"Id" salesforce:"Id"`
	FirstName string `json:"FirstName" salesforce:"FirstName"`
	LastName  string `json:"LastName" salesforce:"LastName"`
	Email     string `json:"Email" salesforce:"Email"`
	Phone     string `json:"Phone" salesforce:"Phone"`
	Title     string `json:"Title" salesforce:"Title"`
	AccountID string `json:"AccountId" salesforce:"AccountId"`
}

// Account represents a Salesforce Account.
type Account struct {
	ID           string `json:"Id" salesforce:"Id"`
	Name         string `json:"Name" salesforce:"Name"`
	Website      string `json:"Website" salesforce:"Website"`
	Phone        string `json:"Phone" salesforce:"Phone"`
	Industry     string `json:"Industry" salesforce:"Industry"`
	BillingCity  string `json:"BillingCity" salesforce:"BillingCity"`
	BillingState string `json:"BillingState" salesforce:"BillingState"`
}

var (
	leadFields    = []string{"Id", "FirstName", "LastName", "Email", "Phone", "Company", "Status", "LeadSource"}
	contactFields = []string{"Id", "FirstName", "LastName", "Email", "Phone", "Title", "AccountId"}
	accountFields = []string{"Id", "Name", "Website", "Phone", "Industry", "BillingCity", "BillingState"}
)

// Table column layouts. The headers already match the canonical names the
// normalizer reads.
var (
	leadColumns = []string{
		model.ColRecordID, model.ColFirstName, model.ColLastName, model.ColEmail, model.ColPhone,
		"company", "lead_status", "lead_source",
	}
	contactColumns = []string{
		model.ColRecordID, model.ColFirstName, model.ColLastName, model.ColEmail, model.ColPhone,
		"title", "account_id",
	}
	accountColumns = []string{
		model.ColRecordID, model.ColAccountName, "website", model.ColPhone,
		"industry", "billing_city", "billing_state",
	}
)

// buildSOQL selects fields from object ordered by creation. A where clause
// and a positive limit are optional.
func buildSOQL(object string, fields []string, where string, limit int) string {
	soql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(fields, ", "), object)
	if where != "" {
		soql += " WHERE " + where
	}
	soql += " ORDER BY CreatedDate"
	if limit > 0 {
		soql += fmt.Sprintf(" LIMIT %d", limit)
	}
	return soql
}

// PullLeads loads unconverted leads; converted leads already live on as
// contacts.
func PullLeads(ctx context.Context, c Client, limit int) (*model.Table, error) {
	var leads []Lead
	if err := c.Query(ctx, buildSOQL("Lead", leadFields, "IsConverted = false", limit), &leads); err != nil {
		return nil, eris.Wrap(err, "sf: pull leads")
	}

	t := &model.Table{Name: "salesforce:Lead", SourceType: model.SourceLead, Columns: leadColumns}
	for _, l := range leads {
		t.Rows = append(t.Rows, []string{
			l.ID, l.FirstName, l.LastName, l.Email, l.Phone, l.Company, l.Status, l.LeadSource,
		})
	}
	return t, nil
}

// PullContacts loads contacts.
func PullContacts(ctx context.Context, c Client, limit int) (*model.Table, error) {
	var contacts []Contact
	if err := c.Query(ctx, buildSOQL("Contact", contactFields, "", limit), &contacts); err != nil {
		return nil, eris.Wrap(err, "sf: pull contacts")
	}

	t := &model.Table{Name: "salesforce:Contact", SourceType: model.SourceContact, Columns: contactColumns}
	for _, ct := range contacts {
		t.Rows = append(t.Rows, []string{
			ct.ID, ct.FirstName, ct.LastName, ct.Email, ct.Phone, ct.Title, ct.AccountID,
		})
	}
	return t, nil
}

// PullAccounts loads accounts.
func PullAccounts(ctx context.Context, c Client, limit int) (*model.Table, error) {
	var accounts []Account
	if err := c.Query(ctx, buildSOQL("Account", accountFields, "", limit), &accounts); err != nil {
		return nil, eris.Wrap(err, "sf: pull accounts")
	}

	t := &model.Table{Name: "salesforce:Account", SourceType: model.SourceAccount, Columns: accountColumns}
	for _, a := range accounts {
		t.Rows = append(t.Rows, []string{
			a.ID, a.Name, a.Website, a.Phone, a.Industry, a.BillingCity, a.BillingState,
		})
	}
	return t, nil
}

// Pulled holds the three tables fetched by PullAll.
type Pulled struct {
	Leads    *model.Table
	Contacts *model.Table
	Accounts *model.Table
}

// PullAll fetches leads, contacts and accounts concurrently. The client's
// rate limiter still bounds the request rate.
func PullAll(ctx context.Context, c Client, limit int) (*Pulled, error) {
	var out Pulled
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := PullLeads(gCtx, c, limit)
		out.Leads = t
		return err
	})
	g.Go(func() error {
		t, err := PullContacts(gCtx, c, limit)
		out.Contacts = t
		return err
	})
	g.Go(func() error {
		t, err := PullAccounts(gCtx, c, limit)
		out.Accounts = t
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
