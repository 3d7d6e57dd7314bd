// Package blocking partitions records into small candidate groups so only
// records sharing a block are compared pairwise.
package blocking

import "github.com/sells-group/crm-dedupe/internal/model"

// Block is a group of record indices sharing a key, in index order.
type Block struct {
	Key     string `json:"key"`
	Members []int  `json:"members"`
}

// Pairs returns the number of within-block comparisons.
func (b Block) Pairs() int {
	n := len(b.Members)
	return n * (n - 1) / 2
}

// Key returns the block key of a record: the first letter of the last name
// followed by the first letter of the first name for people ("sd" for
// Smith, Daniel), the first two characters of the name for accounts.
func Key(kind model.EntityKind, r model.NormalizedRecord) string {
	if kind == model.KindAccounts {
		return prefix(r.AccountNameAlnum, 2)
	}
	return prefix(r.LastNameAlnum, 1) + prefix(r.FirstNameAlnum, 1)
}

// Build assigns each of the given record indices to exactly one block.
// Blocks come back in first-seen key order; records with an empty key
// share the "" block.
func Build(kind model.EntityKind, records []model.NormalizedRecord, indices []int) []Block {
	pos := make(map[string]int)
	var blocks []Block
	for _, i := range indices {
		k := Key(kind, records[i])
		p, ok := pos[k]
		if !ok {
			p = len(blocks)
			pos[k] = p
			blocks = append(blocks, Block{Key: k})
		}
		blocks[p].Members = append(blocks[p].Members, i)
	}
	return blocks
}

// Comparisons totals the pairwise comparisons across blocks.
func Comparisons(blocks []Block) int {
	n := 0
	for _, b := range blocks {
		n += b.Pairs()
	}
	return n
}

// prefix is byte-based; alnum keys are ASCII.
func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
