// Package nodestore defines the NodeStore contract consumed by the Pass
// Controller (spec.md §6.2) and a leveldb-backed reference implementation
// adapted from the teacher's ethdb.LDBDatabase.
package nodestore

import "time"

// NodeRecord is the full attribute set the flush step writes per node
// (spec.md §4.5 step 5).
type NodeRecord struct {
	IP        string
	Port      uint16
	Status    string
	LastSeen  time.Time
	FirstSeen time.Time
	TimesSeen int

	ProtocolVersion *int32
	Services        *uint64
	StartHeight     *int32
	UserAgentRaw    *string
	ClientName      string
	ClientVersion   string
	LatencyMs       *float64
	IsCurrentVersion bool

	CountryCode string
	CountryName string
	Region      string
	City        string
	Latitude    float64
	Longitude   float64
	Timezone    string
	ISP         string
	Org         string
	ASN         uint32
	ASNOrg      string
}

// SeedCandidate is what GetAllNodes returns for re-seed decisions.
type SeedCandidate struct {
	IP       string
	Port     uint16
	Status   string
	LastSeen time.Time
}

// NodeStore is the persistence contract the Pass Controller relies on
// (spec.md §6.2). Implementations must be safe for concurrent use.
type NodeStore interface {
	GetAllNodes() ([]SeedCandidate, error)
	UpsertNode(rec NodeRecord) (nodeID string, err error)
	CreateNodeSnapshot(nodeID string, isOnline bool, responseTimeMs *float64, blockHeight *int32) error
	CreateNetworkSnapshot() error
	PruneStaleNodes(hours int) error
	Close() error
}
