// Package model defines the records, clusters and run summaries shared by
// every stage of the de-duplication pipeline.
package model

import "strconv"

// SourceType tags where a record came from.
type SourceType string

const (
	SourceLead    SourceType = "lead"
	SourceContact SourceType = "contact"
	SourceAccount SourceType = "account"
)

// EntityKind selects which resolution rules apply to a dataset.
type EntityKind string

const (
	KindPeople   EntityKind = "people"
	KindAccounts EntityKind = "accounts"
)

// Canonical column names produced by normalization.
const (
	ColRecordID         = "record_id"
	ColSourceType       = "source_type"
	ColFirstName        = "first_name"
	ColLastName         = "last_name"
	ColEmail            = "email"
	ColPhone            = "phone"
	ColAccountName      = "account_name"
	ColWebsiteDomain    = "website_domain"
	ColFirstNameAlnum   = "first_name_alnum"
	ColLastNameAlnum    = "last_name_alnum"
	ColAccountNameAlnum = "account_name_alnum"
	ColClusterID        = "cluster_id"
)

// Table is one parsed tabular input. Column names are already cleaned by
// the loader (trimmed, lowercased, spaces replaced by underscores).
type Table struct {
	Name       string     `json:"name"`
	SourceType SourceType `json:"source_type"`
	Columns    []string   `json:"columns"`
	Rows       [][]string `json:"-"`
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Records converts the table rows into raw records. Short rows are padded
// with empty values.
func (t *Table) Records() []RawRecord {
	if t == nil {
		return nil
	}
	idCol := -1
	for i, c := range t.Columns {
		if c == ColRecordID {
			idCol = i
			break
		}
	}

	out := make([]RawRecord, 0, len(t.Rows))
	for n, row := range t.Rows {
		values := make(map[string]string, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(row) {
				values[c] = row[i]
			} else {
				values[c] = ""
			}
		}
		id := ""
		if idCol >= 0 && idCol < len(row) {
			id = row[idCol]
		}
		if id == "" {
			id = string(t.SourceType) + "-" + strconv.Itoa(n)
		}
		out = append(out, RawRecord{
			ID:         id,
			SourceType: t.SourceType,
			Columns:    t.Columns,
			Values:     values,
		})
	}
	return out
}

// RawRecord is an ingested row. It is never modified after creation.
type RawRecord struct {
	ID         string
	SourceType SourceType
	Columns    []string
	Values     map[string]string
}

// Get returns the value of a column, or "" when the column is absent.
func (r RawRecord) Get(col string) string {
	return r.Values[col]
}

// Has reports whether the record carries the column at all.
func (r RawRecord) Has(col string) bool {
	_, ok := r.Values[col]
	return ok
}

// NormalizedRecord is the fixed-shape, comparable view of a RawRecord.
type NormalizedRecord struct {
	Index      int        `json:"index"`
	ID         string     `json:"id"`
	SourceType SourceType `json:"source_type"`

	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	WebsiteDomain string `json:"website_domain,omitempty"`

	FirstNameAlnum   string `json:"first_name_alnum,omitempty"`
	LastNameAlnum    string `json:"last_name_alnum,omitempty"`
	AccountNameAlnum string `json:"account_name_alnum,omitempty"`

	// Attrs holds passthrough columns that normalization does not own.
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Get reads any output column by name.
func (r NormalizedRecord) Get(col string) string {
	switch col {
	case ColRecordID:
		if v, ok := r.Attrs[ColRecordID]; ok {
			return v
		}
		return r.ID
	case ColSourceType:
		return string(r.SourceType)
	case ColFirstName:
		return r.FirstName
	case ColLastName:
		return r.LastName
	case ColEmail:
		return r.Email
	case ColPhone:
		return r.Phone
	case ColAccountName:
		return r.AccountName
	case ColWebsiteDomain:
		return r.WebsiteDomain
	case ColFirstNameAlnum:
		return r.FirstNameAlnum
	case ColLastNameAlnum:
		return r.LastNameAlnum
	case ColAccountNameAlnum:
		return r.AccountNameAlnum
	default:
		return r.Attrs[col]
	}
}

// Values projects the record onto the given columns.
func (r NormalizedRecord) Values(cols []string) map[string]string {
	out := make(map[string]string, len(cols))
	for _, c := range cols {
		out[c] = r.Get(c)
	}
	return out
}

// Dataset is the ordered set of normalized records for one entity kind.
// Record i always has Index == i.
type Dataset struct {
	Kind    EntityKind         `json:"kind"`
	Columns []string           `json:"columns"`
	Records []NormalizedRecord `json:"records"`
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Empty reports whether there is nothing to resolve.
func (d *Dataset) Empty() bool {
	return d.Len() == 0
}
