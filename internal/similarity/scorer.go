package similarity

import (
	"strings"

	"github.com/sells-group/crm-dedupe/internal/model"
)

// Default thresholds favour precision: a weak link between two clusters
// would merge them transitively.
const (
	DefaultPeopleThreshold  = 88.0
	DefaultAccountThreshold = 90.0
	DefaultMinTokenLen      = 3
)

// Scorer decides whether two records of the same kind are duplicates.
type Scorer struct {
	PeopleThreshold  float64
	AccountThreshold float64
	MinTokenLen      int
	Similarity       Func
}

// NewScorer returns a Scorer using token-sort similarity and the default
// thresholds.
func NewScorer() *Scorer {
	return &Scorer{
		PeopleThreshold:  DefaultPeopleThreshold,
		AccountThreshold: DefaultAccountThreshold,
		MinTokenLen:      DefaultMinTokenLen,
		Similarity:       TokenSortRatio,
	}
}

// ExactKey returns the key used for unconditional pre-clustering: the email
// for people, the website domain for accounts. "" means no exact key.
func ExactKey(kind model.EntityKind, r model.NormalizedRecord) string {
	if kind == model.KindAccounts {
		return r.WebsiteDomain
	}
	return r.Email
}

// Eligible reports whether a record's name tokens are long enough to be
// fuzzy-scored at all.
func (s *Scorer) Eligible(kind model.EntityKind, r model.NormalizedRecord) bool {
	if kind == model.KindAccounts {
		return len(r.AccountNameAlnum) >= s.MinTokenLen
	}
	return len(r.FirstNameAlnum) >= s.MinTokenLen && len(r.LastNameAlnum) >= s.MinTokenLen
}

// Score returns the fuzzy similarity of a and b. ok is false when either
// record is not eligible, in which case the pair is never a match.
func (s *Scorer) Score(kind model.EntityKind, a, b model.NormalizedRecord) (score float64, ok bool) {
	if !s.Eligible(kind, a) || !s.Eligible(kind, b) {
		return 0, false
	}
	if kind == model.KindAccounts {
		return s.Similarity(strings.ToLower(a.AccountName), strings.ToLower(b.AccountName)), true
	}
	first := s.Similarity(strings.ToLower(a.FirstName), strings.ToLower(b.FirstName))
	last := s.Similarity(strings.ToLower(a.LastName), strings.ToLower(b.LastName))
	return (first + last) / 2, true
}

// Threshold returns the minimum score for a match of the given kind.
func (s *Scorer) Threshold(kind model.EntityKind) float64 {
	if kind == model.KindAccounts {
		return s.AccountThreshold
	}
	return s.PeopleThreshold
}

// Match reports whether a and b are judged the same entity.
func (s *Scorer) Match(kind model.EntityKind, a, b model.NormalizedRecord) bool {
	score, ok := s.Score(kind, a, b)
	return ok && score >= s.Threshold(kind)
}
