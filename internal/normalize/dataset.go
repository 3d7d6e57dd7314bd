package normalize

import (
	"slices"

	"github.com/sells-group/crm-dedupe/internal/model"
)

// peopleCanonical are the person columns normalization owns.
var peopleCanonical = []string{
	model.ColFirstName, model.ColLastName, model.ColEmail, model.ColPhone, model.ColSourceType,
}

// Normalizer builds datasets from loaded tables.
type Normalizer struct {
	region  string
	mapping Mapping
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithRegion sets the default phone region (ISO 3166 alpha-2).
func WithRegion(region string) Option {
	return func(n *Normalizer) {
		if region != "" {
			n.region = region
		}
	}
}

// WithMapping replaces the default column aliases.
func WithMapping(m Mapping) Option {
	return func(n *Normalizer) {
		n.mapping = m
	}
}

// New creates a Normalizer with the US region and default aliases.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{region: DefaultRegion, mapping: DefaultMapping()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// People concatenates leads then contacts and normalizes name, email and
// phone. Missing canonical columns are synthesized as empty values. Nil or
// empty tables are skipped; when both are absent the dataset is empty.
func (n *Normalizer) People(leads, contacts *model.Table) *model.Dataset {
	ds := &model.Dataset{Kind: model.KindPeople}

	var tables []*model.Table
	for _, t := range []*model.Table{leads, contacts} {
		if t.Len() > 0 {
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 {
		return ds
	}

	ds.Columns = unionColumns(tables, peopleCanonical,
		model.ColFirstNameAlnum, model.ColLastNameAlnum)

	for _, t := range tables {
		src := make(map[string]string, len(peopleCanonical))
		for _, c := range peopleCanonical {
			src[c] = resolveColumn(t.Columns, c, n.mapping.People[c])
		}

		for _, raw := range t.Records() {
			first := Name(raw.Get(src[model.ColFirstName]))
			last := Name(raw.Get(src[model.ColLastName]))
			ds.Records = append(ds.Records, model.NormalizedRecord{
				Index:          len(ds.Records),
				ID:             raw.ID,
				SourceType:     sourceType(t, raw),
				FirstName:      first,
				LastName:       last,
				Email:          Email(raw.Get(src[model.ColEmail])),
				Phone:          Phone(raw.Get(src[model.ColPhone]), n.region),
				FirstNameAlnum: Alnum(first),
				LastNameAlnum:  Alnum(last),
				Attrs:          passthrough(raw, peopleCanonical),
			})
		}
	}
	return ds
}

// Accounts normalizes the account name and reduces the website to a bare
// domain. Rows with neither a name nor a domain carry no identity and are
// dropped; the number dropped is returned.
func (n *Normalizer) Accounts(accounts *model.Table) (*model.Dataset, int) {
	ds := &model.Dataset{Kind: model.KindAccounts}
	if accounts.Len() == 0 {
		return ds, 0
	}

	owned := []string{model.ColAccountName, model.ColSourceType}
	ds.Columns = unionColumns([]*model.Table{accounts}, owned,
		model.ColAccountNameAlnum, model.ColWebsiteDomain)

	nameCol := resolveColumn(accounts.Columns, model.ColAccountName, n.mapping.Accounts[model.ColAccountName])
	webCol := resolveColumn(accounts.Columns, websiteColumn, n.mapping.Accounts[websiteColumn])

	dropped := 0
	for _, raw := range accounts.Records() {
		name := Name(raw.Get(nameCol))
		domain := Domain(raw.Get(webCol))
		if name == "" && domain == "" {
			dropped++
			continue
		}
		ds.Records = append(ds.Records, model.NormalizedRecord{
			Index:            len(ds.Records),
			ID:               raw.ID,
			SourceType:       sourceType(accounts, raw),
			AccountName:      name,
			WebsiteDomain:    domain,
			AccountNameAlnum: Alnum(name),
			Attrs:            passthrough(raw, owned),
		})
	}
	return ds, dropped
}

// unionColumns merges table headers in first-seen order, then appends the
// owned columns that no table supplied, then the derived columns.
func unionColumns(tables []*model.Table, owned []string, derived ...string) []string {
	var cols []string
	for _, t := range tables {
		for _, c := range t.Columns {
			if !slices.Contains(cols, c) && !slices.Contains(derived, c) {
				cols = append(cols, c)
			}
		}
	}
	for _, c := range owned {
		if !slices.Contains(cols, c) {
			cols = append(cols, c)
		}
	}
	return append(cols, derived...)
}

// passthrough copies every column normalization does not own.
func passthrough(raw model.RawRecord, owned []string) map[string]string {
	attrs := make(map[string]string, len(raw.Values))
	for _, c := range raw.Columns {
		if slices.Contains(owned, c) {
			continue
		}
		attrs[c] = raw.Get(c)
	}
	return attrs
}

// sourceType prefers the loader's tag and falls back to a source_type column.
func sourceType(t *model.Table, raw model.RawRecord) model.SourceType {
	if t.SourceType != "" {
		return model.SourceType(Lower(string(t.SourceType)))
	}
	return model.SourceType(Lower(raw.Get(model.ColSourceType)))
}
