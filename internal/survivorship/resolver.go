// Package survivorship reduces each duplicate cluster to one master record.
package survivorship

import (
	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/normalize"
)

// nameFields are overridden by the most common value in the cluster.
var nameFields = []string{model.ColFirstName, model.ColLastName}

// Resolve returns one master record per cluster, in cluster order. People
// clusters prefer contacts over leads; account clusters keep their first
// member.
func Resolve(ds *model.Dataset, clusters []model.Cluster) []model.MasterRecord {
	out := make([]model.MasterRecord, 0, len(clusters))
	for _, c := range clusters {
		if len(c.Members) == 0 {
			continue
		}
		if ds.Kind == model.KindAccounts {
			out = append(out, resolveAccount(ds, c))
		} else {
			out = append(out, resolvePeople(ds, c))
		}
	}
	return out
}

// resolvePeople picks the most complete contact (or lead, when the cluster
// has no contact), backfills its blanks from leads, and replaces the names
// with the cluster's most common spelling.
func resolvePeople(ds *model.Dataset, c model.Cluster) model.MasterRecord {
	var contacts, leads, all []model.NormalizedRecord
	for _, i := range c.Members {
		r := ds.Records[i]
		all = append(all, r)
		if r.SourceType == model.SourceContact {
			contacts = append(contacts, r)
		} else {
			leads = append(leads, r)
		}
	}

	source := model.SourceLead
	pool, voters := leads, leads
	if len(contacts) > 0 {
		source = model.SourceContact
		pool, voters = contacts, all
	}

	values := mostComplete(pool, ds.Columns).Values(ds.Columns)

	if source == model.SourceContact {
		for _, col := range ds.Columns {
			if values[col] != "" {
				continue
			}
			for _, l := range leads {
				if v := l.Get(col); v != "" {
					values[col] = v
					break
				}
			}
		}
	}

	for _, f := range nameFields {
		if m := mode(voters, f); m != "" {
			values[f] = m
		}
	}
	values[model.ColFirstNameAlnum] = normalize.Alnum(values[model.ColFirstName])
	values[model.ColLastNameAlnum] = normalize.Alnum(values[model.ColLastName])
	values[model.ColSourceType] = string(source)

	return model.MasterRecord{
		ClusterID:  c.ID,
		SourceType: source,
		MemberIDs:  memberIDs(ds, c),
		Values:     values,
	}
}

// resolveAccount keeps the lowest-index member verbatim.
func resolveAccount(ds *model.Dataset, c model.Cluster) model.MasterRecord {
	first := ds.Records[c.Members[0]]
	return model.MasterRecord{
		ClusterID:  c.ID,
		SourceType: first.SourceType,
		MemberIDs:  memberIDs(ds, c),
		Values:     first.Values(ds.Columns),
	}
}

// mostComplete returns the record with the most non-empty columns; the
// earliest record wins ties.
func mostComplete(records []model.NormalizedRecord, cols []string) model.NormalizedRecord {
	best, bestScore := records[0], completeness(records[0], cols)
	for _, r := range records[1:] {
		if s := completeness(r, cols); s > bestScore {
			best, bestScore = r, s
		}
	}
	return best
}

func completeness(r model.NormalizedRecord, cols []string) int {
	n := 0
	for _, c := range cols {
		if r.Get(c) != "" {
			n++
		}
	}
	return n
}

// mode returns the most frequent non-empty value of col; the value seen
// first wins ties.
func mode(records []model.NormalizedRecord, col string) string {
	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		v := r.Get(col)
		if v == "" {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

func memberIDs(ds *model.Dataset, c model.Cluster) []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = ds.Records[m].ID
	}
	return ids
}
