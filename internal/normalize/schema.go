package normalize

import (
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crm-dedupe/internal/model"
)

// Mapping lists, per canonical column, the header aliases accepted when the
// canonical column itself is missing from an input table.
type Mapping struct {
	People   map[string][]string `yaml:"people"`
	Accounts map[string][]string `yaml:"accounts"`
}

// websiteColumn is the account column a website URL is read from.
const websiteColumn = "website"

// DefaultMapping returns the built-in aliases for common CRM exports.
func DefaultMapping() Mapping {
	return Mapping{
		People: map[string][]string{
			model.ColFirstName: {"firstname", "first", "given_name"},
			model.ColLastName:  {"lastname", "last", "surname", "family_name"},
			model.ColEmail:     {"email_address", "e-mail", "primary_email"},
			model.ColPhone:     {"phone_number", "mobile", "mobile_phone"},
		},
		Accounts: map[string][]string{
			model.ColAccountName: {"accountname", "name", "company"},
			websiteColumn:        {"url", "site"},
		},
	}
}

// LoadMapping reads a YAML alias file and merges it over the defaults.
// An empty path returns the defaults.
func LoadMapping(path string) (Mapping, error) {
	m := DefaultMapping()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return m, eris.Wrapf(err, "normalize: read mapping %s", path)
	}

	var override Mapping
	if err := yaml.Unmarshal(data, &override); err != nil {
		return m, eris.Wrap(err, "normalize: parse mapping")
	}

	for col, aliases := range override.People {
		m.People[col] = cleanAliases(aliases)
	}
	for col, aliases := range override.Accounts {
		m.Accounts[col] = cleanAliases(aliases)
	}
	return m, nil
}

func cleanAliases(aliases []string) []string {
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if h := Header(a); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// resolveColumn picks the input column that feeds canonical. It returns ""
// when neither the canonical name nor any alias is present.
func resolveColumn(columns []string, canonical string, aliases []string) string {
	if slices.Contains(columns, canonical) {
		return canonical
	}
	for _, a := range aliases {
		if slices.Contains(columns, a) {
			return a
		}
	}
	return ""
}
