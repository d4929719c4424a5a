package nodestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dingocoin/dingocoin-nodes-map/log"
)

const (
	nodePrefix         = "node:"
	snapshotPrefix     = "snapshot:"
	networkSnapPrefix  = "netsnapshot:"
)

// storedRecord is NodeRecord plus the generated node ID, as persisted.
type storedRecord struct {
	ID string `json:"id"`
	NodeRecord
}

// LevelNodeStore is a leveldb-backed reference NodeStore, adapted from the
// teacher's ethdb.LDBDatabase: same cache/handle sizing and the same
// per-operation rcrowley/go-metrics instruments, repointed from raw blobs at
// JSON-encoded node records keyed by "node:ip:port". The teacher's
// background compaction-stats poller is not carried forward: nothing in
// this repo exports or logs those counters, so it would be dead machinery
// rather than adapted code (see DESIGN.md).
type LevelNodeStore struct {
	fn string
	db *leveldb.DB

	putTimer   gometrics.Timer
	delTimer   gometrics.Timer
	missMeter  gometrics.Meter
	writeMeter gometrics.Meter
}

// Open opens (or creates) the leveldb file at path.
func Open(path string, cache, handles int) (*LevelNodeStore, error) {
	if cache < 16 {
		cache = 16
	}
	if handles < 16 {
		handles = 16
	}
	log.Infow("opening node store", "path", path, "cacheMB", cache, "handles", handles)

	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
	})
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("nodestore: open %s: %w", path, err)
	}
	s := &LevelNodeStore{fn: path, db: db}
	s.initMetrics("nodestore/")
	return s, nil
}

// initMetrics registers the per-operation rcrowley/go-metrics instruments
// that UpsertNode and PruneStaleNodes mark on every call.
func (s *LevelNodeStore) initMetrics(prefix string) {
	s.putTimer = gometrics.NewRegisteredTimer(prefix+"puts", nil)
	s.delTimer = gometrics.NewRegisteredTimer(prefix+"dels", nil)
	s.missMeter = gometrics.NewRegisteredMeter(prefix+"misses", nil)
	s.writeMeter = gometrics.NewRegisteredMeter(prefix+"writes", nil)
}

func nodeKey(ip string, port uint16) []byte {
	return []byte(fmt.Sprintf("%s%s:%d", nodePrefix, ip, port))
}

// GetAllNodes lists every stored node, used for re-seed decisions.
func (s *LevelNodeStore) GetAllNodes() ([]SeedCandidate, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(nodePrefix)), nil)
	defer iter.Release()

	var out []SeedCandidate
	for iter.Next() {
		var rec storedRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		out = append(out, SeedCandidate{
			IP: rec.IP, Port: rec.Port, Status: rec.Status, LastSeen: rec.LastSeen,
		})
	}
	return out, iter.Error()
}

// UpsertNode writes the full attribute set for one node, preserving
// first_seen across upserts (spec.md §9 "History continuity depends
// entirely on the external store preserving first_seen across upserts").
func (s *LevelNodeStore) UpsertNode(rec NodeRecord) (string, error) {
	if s.putTimer != nil {
		defer s.putTimer.UpdateSince(time.Now())
	}
	key := nodeKey(rec.IP, rec.Port)

	id := ""
	if existing, err := s.db.Get(key, nil); err == nil {
		var prev storedRecord
		if json.Unmarshal(existing, &prev) == nil {
			id = prev.ID
			if !prev.FirstSeen.IsZero() && (rec.FirstSeen.IsZero() || prev.FirstSeen.Before(rec.FirstSeen)) {
				rec.FirstSeen = prev.FirstSeen
			}
		}
	} else if s.missMeter != nil {
		s.missMeter.Mark(1)
	}
	if id == "" {
		id = uuid.NewString()
	}

	blob, err := json.Marshal(storedRecord{ID: id, NodeRecord: rec})
	if err != nil {
		return "", fmt.Errorf("nodestore: marshal node: %w", err)
	}
	if s.writeMeter != nil {
		s.writeMeter.Mark(int64(len(blob)))
	}
	if err := s.db.Put(key, blob, nil); err != nil {
		return "", fmt.Errorf("nodestore: put node: %w", err)
	}
	return id, nil
}

// CreateNodeSnapshot appends a history entry for one node.
func (s *LevelNodeStore) CreateNodeSnapshot(nodeID string, isOnline bool, responseTimeMs *float64, blockHeight *int32) error {
	type snapshot struct {
		NodeID         string     `json:"nodeId"`
		IsOnline       bool       `json:"isOnline"`
		ResponseTimeMs *float64   `json:"responseTimeMs,omitempty"`
		BlockHeight    *int32     `json:"blockHeight,omitempty"`
		RecordedAt     time.Time  `json:"recordedAt"`
	}
	now := time.Now().UTC()
	key := []byte(fmt.Sprintf("%s%s:%d", snapshotPrefix, nodeID, now.UnixNano()))
	blob, err := json.Marshal(snapshot{NodeID: nodeID, IsOnline: isOnline, ResponseTimeMs: responseTimeMs, BlockHeight: blockHeight, RecordedAt: now})
	if err != nil {
		return fmt.Errorf("nodestore: marshal snapshot: %w", err)
	}
	return s.db.Put(key, blob, nil)
}

// CreateNetworkSnapshot writes one pass-level aggregate, idempotent within
// the current hour.
func (s *LevelNodeStore) CreateNetworkSnapshot() error {
	hourBucket := time.Now().UTC().Truncate(time.Hour)
	key := []byte(networkSnapPrefix + hourBucket.Format(time.RFC3339))

	if _, err := s.db.Get(key, nil); err == nil {
		return nil // already snapshotted this hour.
	}

	nodes, err := s.GetAllNodes()
	if err != nil {
		return err
	}
	counts := map[string]int{}
	for _, n := range nodes {
		counts[n.Status]++
	}
	blob, err := json.Marshal(struct {
		RecordedAt time.Time      `json:"recordedAt"`
		Counts     map[string]int `json:"statusCounts"`
	}{RecordedAt: hourBucket, Counts: counts})
	if err != nil {
		return fmt.Errorf("nodestore: marshal network snapshot: %w", err)
	}
	return s.db.Put(key, blob, nil)
}

// PruneStaleNodes deletes nodes whose last_seen predates hours ago.
func (s *LevelNodeStore) PruneStaleNodes(hours int) error {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	iter := s.db.NewIterator(util.BytesPrefix([]byte(nodePrefix)), nil)
	defer iter.Release()

	var toDelete [][]byte
	for iter.Next() {
		var rec storedRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.LastSeen.Before(cutoff) {
			key := append([]byte(nil), iter.Key()...)
			toDelete = append(toDelete, key)
		}
	}
	if err := iter.Error(); err != nil {
		return err
	}
	for _, key := range toDelete {
		if s.delTimer != nil {
			s.delTimer.UpdateSince(time.Now())
		}
		if err := s.db.Delete(key, nil); err != nil {
			log.Warnw("prune delete failed", "key", string(key), "error", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *LevelNodeStore) Close() error {
	return s.db.Close()
}
