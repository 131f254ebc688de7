/*
snapshot.go - Versioned balance snapshot stored on requests

PURPOSE:
  Every request carries the balance state observed at submission time,
  for audit and export. The snapshot is an opaque, versioned structured
  value rather than a generic map, so a change in ledger shape does not
  silently break historical snapshots. Once stored it is never mutated
  by later balance changes; serialize-then-reload equality holds
  indefinitely.

SEE ALSO:
  - ledger/pools.go: Snapshot() builds one from the live ledger
  - policy package: strategies validate requests against a snapshot
*/
package leave

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotVersion identifies the current snapshot wire shape.
const SnapshotVersion = 1

// PoolSnapshot is the balance state for one user and one vacation type
// at a point in time.
type PoolSnapshot struct {
	Version int                 `json:"version"`
	TakenAt time.Time           `json:"taken_at"`
	Pools   []PoolSnapshotEntry `json:"pools,omitempty"`
}

// PoolSnapshotEntry is one pool's contribution to the snapshot.
type PoolSnapshotEntry struct {
	PoolName     string          `json:"pool"`
	VacationType string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	DateStart    time.Time       `json:"date_start"`
	DateEnd      time.Time       `json:"date_end"`
}

// Total returns the summed balance across all pools in the snapshot.
func (s PoolSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, e := range s.Pools {
		total = total.Add(e.Amount)
	}
	return total
}

// Entry returns the entry for the named pool, or nil.
func (s PoolSnapshot) Entry(poolName string) *PoolSnapshotEntry {
	for i := range s.Pools {
		if s.Pools[i].PoolName == poolName {
			return &s.Pools[i]
		}
	}
	return nil
}

// Empty reports whether the snapshot carries no pools at all.
func (s PoolSnapshot) Empty() bool { return len(s.Pools) == 0 }

// MarshalSnapshot serializes a snapshot for persistence.
func MarshalSnapshot(s PoolSnapshot) (string, error) {
	if s.Version == 0 {
		s.Version = SnapshotVersion
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalSnapshot reloads a persisted snapshot. An empty payload yields
// an empty snapshot, not an error, so pre-snapshot rows keep loading.
func UnmarshalSnapshot(payload string) (PoolSnapshot, error) {
	if payload == "" {
		return PoolSnapshot{Version: SnapshotVersion}, nil
	}
	var s PoolSnapshot
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return PoolSnapshot{}, err
	}
	return s, nil
}
