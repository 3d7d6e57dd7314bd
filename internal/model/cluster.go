package model

import "strconv"

// MatchPhase records which pass produced a cluster.
type MatchPhase string

const (
	PhaseExact     MatchPhase = "exact"
	PhaseFuzzy     MatchPhase = "fuzzy"
	PhaseSingleton MatchPhase = "singleton"
)

// Cluster is one connected component of the candidate graph. Members are
// record indices in ascending order.
type Cluster struct {
	ID      int        `json:"cluster_id"`
	Phase   MatchPhase `json:"phase"`
	Members []int      `json:"members"`
}

// Size returns the member count.
func (c Cluster) Size() int {
	return len(c.Members)
}

// MasterRecord is the surviving record for a cluster. Values covers every
// dataset column.
type MasterRecord struct {
	ClusterID  int               `json:"cluster_id"`
	SourceType SourceType        `json:"source_type"`
	MemberIDs  []string          `json:"member_ids"`
	Values     map[string]string `json:"values"`
}

// Get returns a field of the master record.
func (m MasterRecord) Get(col string) string {
	switch col {
	case ColSourceType:
		return string(m.SourceType)
	case ColClusterID:
		return strconv.Itoa(m.ClusterID)
	}
	return m.Values[col]
}
