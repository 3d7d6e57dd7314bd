// Package normalize turns raw CRM rows into comparable, fixed-shape records.
// Every function here is pure: the same input always yields the same output
// and a malformed value degrades to "" instead of failing.
package normalize

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used to parse phone numbers written without a country code.
const DefaultRegion = "US"

// gmailDomains ignore "+tag" suffixes in the local part.
var gmailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// Name trims surrounding whitespace. Display casing is preserved; callers
// lowercase for comparison.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Lower trims and lowercases.
func Lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Email lowercases an address and drops gmail "+tag" suffixes. Values
// without an "@" pass through lowercased.
func Email(s string) string {
	e := Lower(s)
	if e == "" {
		return ""
	}
	local, domain, ok := strings.Cut(e, "@")
	if !ok {
		return e
	}
	if gmailDomains[domain] {
		local, _, _ = strings.Cut(local, "+")
	}
	return local + "@" + domain
}

// Phone parses a number against region and formats it as E.164. Numbers
// that cannot be parsed or are not possible numbers normalize to "".
func Phone(s, region string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if region == "" {
		region = DefaultRegion
	}
	num, err := phonenumbers.Parse(s, strings.ToUpper(region))
	if err != nil {
		return ""
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// Domain reduces a URL to its bare host:
//
//	"https://www.Acme.co.uk/path?q=1" -> "acme.co.uk"
func Domain(s string) string {
	d := Lower(s)
	if d == "" {
		return ""
	}
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d, _, _ = strings.Cut(d, "/")
	for strings.HasPrefix(d, "www.") {
		d = strings.TrimPrefix(d, "www.")
	}
	return d
}

// Alnum is the blocking-key projection: lowercase, only [a-z0-9] kept.
func Alnum(s string) string {
	s = Lower(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Header cleans a column header the way the loaders do: trimmed,
// lowercased, spaces replaced by underscores.
func Header(s string) string {
	return strings.ReplaceAll(Lower(s), " ", "_")
}
